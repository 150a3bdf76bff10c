// Package excel reads study inputs from Excel workbooks and CSV files:
// the observed choice panels, respondent covariates, and optional explicit
// scenario designs. Both formats share one tabular reader; the format is
// picked from the file extension.
package excel

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"flexwta/internal/logging"
)

// RowData is one data row keyed by column header
type RowData map[string]string

// TableData is a parsed sheet: ordered headers plus string-valued rows
type TableData struct {
	Headers []string
	Rows    []RowData
}

// SheetReader handles reading Excel and CSV files
type SheetReader struct {
	filePath string
	fileType string // "xlsx" or "csv"
}

// NewSheetReader creates a reader that handles both Excel and CSV files
func NewSheetReader(filePath string) *SheetReader {
	ext := strings.ToLower(filepath.Ext(filePath))
	fileType := "xlsx"
	if ext == ".csv" {
		fileType = "csv"
	}
	return &SheetReader{filePath: filePath, fileType: fileType}
}

// ReadTable reads the file into structured form
func (r *SheetReader) ReadTable() (*TableData, error) {
	logging.Debug("[SheetReader] Starting to read %s file: %s", r.fileType, r.filePath)

	if _, err := os.Stat(r.filePath); os.IsNotExist(err) {
		return nil, fmt.Errorf("%s file not found: %s", strings.ToUpper(r.fileType), r.filePath)
	}

	switch r.fileType {
	case "csv":
		return r.readCSVRows()
	case "xlsx":
		return r.readExcelRows()
	default:
		return nil, fmt.Errorf("unsupported file type: %s", r.fileType)
	}
}

// readExcelRows reads Sheet1 into structured form
func (r *SheetReader) readExcelRows() (*TableData, error) {
	startTime := time.Now()
	f, err := excelize.OpenFile(r.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	// Always use Sheet1
	rows, err := f.GetRows("Sheet1")
	if err != nil {
		return nil, fmt.Errorf("failed to read Sheet1: %w", err)
	}
	readTime := time.Since(startTime)
	logging.Debug("[SheetReader] Sheet1 read in %.2fms (%d rows)", float64(readTime.Nanoseconds())/1e6, len(rows))

	if len(rows) < 2 {
		return nil, fmt.Errorf("Excel file must have at least a header row and one data row")
	}

	return processRows(rows)
}

// readCSVRows reads CSV data into structured form
func (r *SheetReader) readCSVRows() (*TableData, error) {
	file, err := os.Open(r.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	startTime := time.Now()
	reader := csv.NewReader(file)
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV file: %w", err)
	}
	readTime := time.Since(startTime)
	logging.Debug("[SheetReader] CSV file read in %.2fms (%d rows)", float64(readTime.Nanoseconds())/1e6, len(rows))

	if len(rows) < 2 {
		return nil, fmt.Errorf("CSV file must have at least a header row and one data row")
	}

	return processRows(rows)
}

// processRows converts raw string rows into TableData form
func processRows(rows [][]string) (*TableData, error) {
	headerRow := rows[0]
	headers := make([]string, len(headerRow))
	for i, header := range headerRow {
		headers[i] = strings.TrimSpace(header)
	}

	var dataRows []RowData
	for i := 1; i < len(rows); i++ {
		row := rows[i]
		rowData := make(RowData)

		for j, cell := range row {
			if j < len(headers) {
				rowData[headers[j]] = strings.TrimSpace(cell)
			}
		}

		dataRows = append(dataRows, rowData)
	}

	return &TableData{
		Headers: headers,
		Rows:    dataRows,
	}, nil
}

// requireColumns checks that every named column appears in the headers
func (d *TableData) requireColumns(columns ...string) error {
	present := make(map[string]bool, len(d.Headers))
	for _, h := range d.Headers {
		present[h] = true
	}
	for _, c := range columns {
		if !present[c] {
			return fmt.Errorf("missing required column %q (have %s)", c, strings.Join(d.Headers, ", "))
		}
	}
	return nil
}

// floatCell parses a required numeric cell
func floatCell(row RowData, column string, rowIdx int) (float64, error) {
	raw, ok := row[column]
	if !ok || raw == "" {
		return 0, fmt.Errorf("row %d: empty value in column %q", rowIdx+1, column)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("row %d: column %q value %q is not numeric", rowIdx+1, column, raw)
	}
	return v, nil
}

// boolCell parses a required 0/1 or true/false cell
func boolCell(row RowData, column string, rowIdx int) (bool, error) {
	raw, ok := row[column]
	if !ok || raw == "" {
		return false, fmt.Errorf("row %d: empty value in column %q", rowIdx+1, column)
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("row %d: column %q value %q is not a 0/1 flag", rowIdx+1, column, raw)
	}
	return v, nil
}

// stringCell reads a required non-empty text cell
func stringCell(row RowData, column string, rowIdx int) (string, error) {
	raw, ok := row[column]
	if !ok || raw == "" {
		return "", fmt.Errorf("row %d: empty value in column %q", rowIdx+1, column)
	}
	return raw, nil
}
