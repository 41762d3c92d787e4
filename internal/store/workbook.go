package store

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/JakeFAU/review-harvester/internal/harvest"
)

const (
	workbookSheet       = "Sheet1"
	workbookContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// WorkbookHeader is the first row of every artifact.
var WorkbookHeader = []string{
	"review date",
	"reviewer name",
	"review score",
	"review title",
	"review content",
	"reviewer staydate",
}

// EncodeWorkbook renders records as an xlsx document. An empty slice yields
// a header-only workbook.
func EncodeWorkbook(records []harvest.Record) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	header := make([]any, len(WorkbookHeader))
	for i, h := range WorkbookHeader {
		header[i] = h
	}
	if err := f.SetSheetRow(workbookSheet, "A1", &header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}

	for i, rec := range records {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, fmt.Errorf("cell for row %d: %w", i+2, err)
		}
		row := []any{rec.Date, rec.ReviewerName, rec.Score, rec.Title, rec.Content, rec.StayDate}
		if err := f.SetSheetRow(workbookSheet, cell, &row); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("encode workbook: %w", err)
	}
	return buf.Bytes(), nil
}
