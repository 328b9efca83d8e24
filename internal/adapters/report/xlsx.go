// Package report provides the spreadsheet adapter for lookup results.
package report

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/MyCarrier-DevOps/adcheck/internal/domain"
)

// SheetName is the name of the single worksheet in the report.
const SheetName = "Sheet1"

// Column headers in report order.
var (
	baseColumns  = []string{"Email", "Name", "Office", "Department", "Title"}
	aliasColumns = append(append([]string{}, baseColumns...), "Aliases")
)

// XLSXWriter implements domain.ReportWriter using excelize.
type XLSXWriter struct {
	includeAliases bool
}

// NewXLSXWriter creates a writer. includeAliases adds the Aliases column.
func NewXLSXWriter(includeAliases bool) *XLSXWriter {
	return &XLSXWriter{includeAliases: includeAliases}
}

// Columns returns the header row written by w.
func (w *XLSXWriter) Columns() []string {
	if w.includeAliases {
		return aliasColumns
	}
	return baseColumns
}

// Write encodes results as a workbook with a header row followed by one row
// per result, in the given order. The whole workbook is built in memory.
func (w *XLSXWriter) Write(results []domain.LookupResult) ([]byte, error) {
	f := excelize.NewFile()
	defer func() {
		// Close only removes temp files of an in-memory workbook.
		_ = f.Close()
	}()

	sw, err := f.NewStreamWriter(SheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheet writer: %w", err)
	}

	if err := sw.SetRow("A1", toRow(w.Columns())); err != nil {
		return nil, fmt.Errorf("failed to write header: %w", err)
	}

	for i, r := range results {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, fmt.Errorf("failed to address row %d: %w", i+2, err)
		}
		if err := sw.SetRow(cell, toRow(w.values(r))); err != nil {
			return nil, fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	if err := sw.Flush(); err != nil {
		return nil, fmt.Errorf("failed to flush sheet: %w", err)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to encode workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func (w *XLSXWriter) values(r domain.LookupResult) []string {
	row := []string{r.Email, r.Name, r.Office, r.Department, r.Title}
	if w.includeAliases {
		row = append(row, r.Aliases)
	}
	return row
}

func toRow(values []string) []interface{} {
	row := make([]interface{}, len(values))
	for i, v := range values {
		row[i] = v
	}
	return row
}
