package store

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"net/url"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/review-harvester/internal/harvest"
	"github.com/JakeFAU/review-harvester/internal/storage/local"
)

const csvContentType = "text/csv"

// Config controls where the store reads targets from.
type Config struct {
	// InputPath is the CSV listing CITY, NAME and REVIEW columns.
	InputPath string
	// BaseURL is resolved against each REVIEW value to build the seed.
	BaseURL string
}

// CitySummary counts the targets of one city by completion state.
type CitySummary struct {
	City     string
	Total    int
	Complete int
	Pending  int
}

// Store persists harvest results under the output root owned by artifacts.
// An optional mirror receives a copy of every artifact written.
type Store struct {
	cfg       Config
	base      *url.URL
	artifacts *local.BlobStore
	mirror    harvest.BlobStore
	failures  *FailureCollector
	logger    *zap.Logger

	flushMu sync.Mutex
	flushed bool
}

// New constructs a Store. mirror may be nil.
func New(cfg Config, artifacts *local.BlobStore, mirror harvest.BlobStore, logger *zap.Logger) (*Store, error) {
	if artifacts == nil {
		return nil, fmt.Errorf("artifact store is required")
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if !base.IsAbs() {
		return nil, fmt.Errorf("base url %q must be absolute", cfg.BaseURL)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		cfg:       cfg,
		base:      base,
		artifacts: artifacts,
		mirror:    mirror,
		failures:  NewFailureCollector(),
		logger:    logger.Named("store"),
	}, nil
}

// Failures exposes the run's failure collector.
func (s *Store) Failures() *FailureCollector {
	return s.failures
}

// LoadTargets reads and groups the configured target list.
func (s *Store) LoadTargets(ctx context.Context) ([]harvest.Target, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(s.cfg.InputPath)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	defer func() { _ = f.Close() }()

	targets, err := ParseTargets(f, s.base, s.logger)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", s.cfg.InputPath, err)
	}
	s.logger.Info("targets loaded", zap.String("input", s.cfg.InputPath), zap.Int("targets", len(targets)))
	return targets, nil
}

// IsComplete reports whether the target's workbook already exists.
func (s *Store) IsComplete(target harvest.Target) bool {
	return s.artifacts.Exists(ArtifactPath(target))
}

// Persist records a finished target. Done and empty outcomes produce a
// workbook; empty and failed outcomes land in the failure report. Failed
// targets leave no workbook so the next run retries them.
func (s *Store) Persist(ctx context.Context, outcome harvest.Outcome) error {
	target := outcome.Target
	switch outcome.Status() {
	case harvest.OutcomeFailed:
		s.failures.AddFailed(target, outcome.Err)
		s.logger.Debug("recorded failure",
			zap.String("city", target.City),
			zap.String("hotel", target.Name),
			zap.String("kind", failureKind(outcome.Err)),
			zap.Error(outcome.Err),
		)
		return nil
	case harvest.OutcomeEmpty:
		s.failures.AddEmpty(target)
	}
	return s.writeWorkbook(ctx, target, outcome.Records)
}

func (s *Store) writeWorkbook(ctx context.Context, target harvest.Target, records []harvest.Record) error {
	rel := ArtifactPath(target)
	data, err := EncodeWorkbook(records)
	if err != nil {
		return &harvest.PersistError{Target: target, Path: rel, Err: err}
	}
	uri, err := s.artifacts.PutObject(ctx, rel, workbookContentType, bytes.NewReader(data))
	if err != nil {
		return &harvest.PersistError{Target: target, Path: rel, Err: err}
	}
	s.logger.Debug("workbook written", zap.String("uri", uri), zap.Int("records", len(records)))
	s.mirrorObject(ctx, rel, workbookContentType, data)
	return nil
}

func (s *Store) mirrorObject(ctx context.Context, rel, contentType string, data []byte) {
	if s.mirror == nil {
		return
	}
	uri, err := s.mirror.PutObject(ctx, rel, contentType, bytes.NewReader(data))
	if err != nil {
		s.logger.Warn("mirror upload failed", zap.String("path", rel), zap.Error(err))
		return
	}
	s.logger.Debug("mirrored", zap.String("uri", uri))
}

// FlushFailureReport writes the failure reports at the output root. Only the
// first call writes; it is a no-op when nothing failed.
func (s *Store) FlushFailureReport(ctx context.Context) error {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()
	if s.flushed {
		return nil
	}
	s.flushed = true

	seeds := s.failures.Seeds()
	if len(seeds) == 0 {
		return nil
	}

	rows := make([][]string, 0, len(seeds)+1)
	rows = append(rows, []string{"URLs with no reviews"})
	for _, seed := range seeds {
		rows = append(rows, []string{seed})
	}
	if err := s.writeReport(ctx, NoRecordsReportName, rows); err != nil {
		return err
	}

	failures := s.failures.Failures()
	if len(failures) == 0 {
		return nil
	}
	rows = make([][]string, 0, len(failures)+1)
	rows = append(rows, []string{"url", "city", "name", "error"})
	for _, f := range failures {
		rows = append(rows, []string{f.Target.SeedURL, f.Target.City, f.Target.Name, f.Reason})
	}
	return s.writeReport(ctx, FetchErrorsReportName, rows)
}

func (s *Store) writeReport(ctx context.Context, name string, rows [][]string) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.WriteAll(rows); err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	data := buf.Bytes()
	uri, err := s.artifacts.PutObject(ctx, name, csvContentType, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	s.logger.Info("failure report written", zap.String("uri", uri), zap.Int("rows", len(rows)-1))
	s.mirrorObject(ctx, name, csvContentType, data)
	return nil
}

// Summary counts targets per city, in the order cities first appear.
func (s *Store) Summary(targets []harvest.Target) []CitySummary {
	var out []CitySummary
	pos := make(map[string]int)
	for _, t := range targets {
		i, ok := pos[t.City]
		if !ok {
			i = len(out)
			pos[t.City] = i
			out = append(out, CitySummary{City: t.City})
		}
		out[i].Total++
		if s.IsComplete(t) {
			out[i].Complete++
		} else {
			out[i].Pending++
		}
	}
	return out
}
