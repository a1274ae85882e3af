// Package export produces XLSX workbooks from record store contents.
package export

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/MaxwellCole9/Digital-Promise-PRISM/internal/records"
)

const sheetName = "Studies"

// Service turns fetched records into XLSX bytes.
type Service struct {
	logger *slog.Logger
}

// NewService creates an export service. A nil logger falls back to
// slog.Default().
func NewService(logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{logger: logger}
}

// WorkbookXLSX renders all records into one sheet. Columns are the union
// of the records' field names in sorted order, prefixed by the record ID;
// attachment fields render as their first URL.
func (s *Service) WorkbookXLSX(recs []records.Record) ([]byte, error) {
	start := time.Now()

	columns := collectColumns(recs)

	f := excelize.NewFile()
	if _, err := f.NewSheet(sheetName); err != nil {
		return nil, err
	}
	activeIndex, _ := f.GetSheetIndex(sheetName)
	f.SetActiveSheet(activeIndex)

	write := func(col, row int, v any) {
		cell, _ := excelize.CoordinatesToCellName(col, row)
		_ = f.SetCellValue(sheetName, cell, v)
	}

	write(1, 1, "AirtableID")
	for i, name := range columns {
		write(i+2, 1, name)
	}

	for rowIdx, rec := range recs {
		row := rowIdx + 2
		write(1, row, rec.ID)
		for i, name := range columns {
			write(i+2, row, cellValue(rec.Fields[name]))
		}
	}

	_ = f.SetColWidth(sheetName, "A", "A", 18)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"rows", len(recs),
		"columns", len(columns)+1,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

// Filename returns a timestamped export file name.
func Filename(now time.Time) string {
	return fmt.Sprintf("airtable_export_%s.xlsx", now.Format("2006-01-02_150405"))
}

func collectColumns(recs []records.Record) []string {
	seen := make(map[string]bool)
	for _, rec := range recs {
		for name := range rec.Fields {
			seen[name] = true
		}
	}
	columns := make([]string, 0, len(seen))
	for name := range seen {
		columns = append(columns, name)
	}
	sort.Strings(columns)
	return columns
}

// cellValue flattens a field for a spreadsheet cell. Attachment lists
// render as the first attachment URL.
func cellValue(v any) any {
	switch t := v.(type) {
	case nil:
		return ""
	case []any:
		if len(t) == 0 {
			return ""
		}
		if att, ok := t[0].(map[string]any); ok {
			if url, ok := att["url"].(string); ok {
				return url
			}
		}
		return fmt.Sprintf("%v", t)
	case map[string]any:
		return fmt.Sprintf("%v", t)
	default:
		return t
	}
}
