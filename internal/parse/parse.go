// Package parse reads CSV and XLSX source files into raw rows for the
// import pipeline. Header order is preserved so downstream alias matching
// stays deterministic.
package parse

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/propertydigital/pdimport/pkg/core"
)

// Table is a parsed source file: ordered headers plus one RawRecord per
// data row. Rows shorter than the header row are padded with blanks; longer
// rows have their extra cells dropped.
type Table struct {
	Headers []string
	Rows    []core.RawRecord
}

// ParseFile reads a source file, dispatching on its extension.
func ParseFile(path string) (*Table, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".csv":
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", path, err)
		}
		defer f.Close()
		return ParseCSV(f)
	case ".xlsx":
		return ParseXLSX(path)
	default:
		return nil, fmt.Errorf("unsupported file type %q (want .csv or .xlsx)", ext)
	}
}

// ParseCSV reads comma-separated data. The first row is the header row; a
// UTF-8 BOM on the first header is stripped, since Hebrew spreadsheets
// exported from Excel usually carry one.
func ParseCSV(r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse csv: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("file has no header row")
	}

	headers := records[0]
	if len(headers) > 0 {
		headers[0] = strings.TrimPrefix(headers[0], "\uFEFF")
	}
	return buildTable(headers, records[1:])
}

// ParseXLSX reads the first sheet of an Excel workbook.
func ParseXLSX(path string) (*Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("file has no header row")
	}
	return buildTable(rows[0], rows[1:])
}

func buildTable(headers []string, rows [][]string) (*Table, error) {
	trimmed := make([]string, len(headers))
	for i, h := range headers {
		trimmed[i] = strings.TrimSpace(h)
	}

	table := &Table{Headers: trimmed}
	for _, row := range rows {
		if isEmptyRow(row) {
			continue
		}
		record := make(core.RawRecord, len(trimmed))
		for i, header := range trimmed {
			if header == "" {
				continue
			}
			if i < len(row) {
				record[header] = row[i]
			} else {
				record[header] = ""
			}
		}
		table.Rows = append(table.Rows, record)
	}
	return table, nil
}

func isEmptyRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
