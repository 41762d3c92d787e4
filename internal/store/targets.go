package store

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/review-harvester/internal/harvest"
)

// Input CSV column headers.
const (
	ColumnCity   = "CITY"
	ColumnName   = "NAME"
	ColumnReview = "REVIEW"
)

type columnIndex struct {
	city, name, review int
}

func locateColumns(header []string) (columnIndex, error) {
	idx := columnIndex{city: -1, name: -1, review: -1}
	for i, raw := range header {
		col := strings.TrimSpace(strings.TrimPrefix(raw, "\ufeff"))
		switch {
		case strings.EqualFold(col, ColumnCity) && idx.city < 0:
			idx.city = i
		case strings.EqualFold(col, ColumnName) && idx.name < 0:
			idx.name = i
		case strings.EqualFold(col, ColumnReview) && idx.review < 0:
			idx.review = i
		}
	}
	var missing []string
	if idx.city < 0 {
		missing = append(missing, ColumnCity)
	}
	if idx.name < 0 {
		missing = append(missing, ColumnName)
	}
	if idx.review < 0 {
		missing = append(missing, ColumnReview)
	}
	if len(missing) > 0 {
		return idx, fmt.Errorf("input is missing column(s) %s", strings.Join(missing, ", "))
	}
	return idx, nil
}

func field(row []string, i int) string {
	if i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// ParseTargets reads the target list. Cities come out in ascending order;
// targets keep their input order within a city. Blank rows are skipped,
// incomplete rows and repeated (city, name) pairs are skipped with a warning.
func ParseTargets(r io.Reader, base *url.URL, logger *zap.Logger) ([]harvest.Target, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("input is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	idx, err := locateColumns(header)
	if err != nil {
		return nil, err
	}

	var targets []harvest.Target
	seen := make(map[string]struct{})
	line := 1
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", line, err)
		}

		city, name, review := field(row, idx.city), field(row, idx.name), field(row, idx.review)
		if city == "" && name == "" && review == "" {
			continue
		}
		if city == "" || name == "" || review == "" {
			logger.Warn("skipping incomplete row", zap.Int("row", line), zap.String("city", city), zap.String("hotel", name))
			continue
		}
		ref, err := url.Parse(review)
		if err != nil {
			logger.Warn("skipping row with bad review path", zap.Int("row", line), zap.String("review", review), zap.Error(err))
			continue
		}
		target := harvest.Target{City: city, Name: name, SeedURL: base.ResolveReference(ref).String()}
		if _, dup := seen[target.Key()]; dup {
			logger.Warn("skipping duplicate target", zap.Int("row", line), zap.String("city", city), zap.String("hotel", name))
			continue
		}
		seen[target.Key()] = struct{}{}
		targets = append(targets, target)
	}

	sort.SliceStable(targets, func(i, j int) bool {
		return targets[i].City < targets[j].City
	})
	return targets, nil
}
