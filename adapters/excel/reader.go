package excel

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"crimestats/domain/core"
	"crimestats/domain/crime"
	"crimestats/internal"
)

// DataReader handles reading Excel and CSV files
type DataReader struct {
	filePath string
	fileType string // "xlsx" or "csv"
	sheet    string
}

// NewDataReader creates a new data reader that handles both Excel and CSV files
func NewDataReader(filePath string) *DataReader {
	ext := strings.ToLower(filepath.Ext(filePath))
	fileType := "csv"
	if ext == ".xlsx" || ext == ".xlsm" {
		fileType = "xlsx"
	}
	return &DataReader{filePath: filePath, fileType: fileType}
}

// WithSheet selects a worksheet by name; the first sheet is used otherwise.
func (r *DataReader) WithSheet(sheet string) *DataReader {
	r.sheet = sheet
	return r
}

// IsSpreadsheetPath reports whether a source identifier names a file this reader handles.
func IsSpreadsheetPath(source string) bool {
	switch strings.ToLower(filepath.Ext(source)) {
	case ".csv", ".tsv", ".txt", ".xlsx", ".xlsm":
		return true
	}
	return false
}

// ReadData reads data from Excel or CSV files into structured format
func (r *DataReader) ReadData() (*crime.RawTable, error) {
	internal.DefaultLogger.Debug("[DataReader] Starting to read %s file: %s", r.fileType, r.filePath)

	if _, err := os.Stat(r.filePath); err != nil {
		if os.IsNotExist(err) {
			return nil, core.NewSourceNotFoundError(r.filePath, nil)
		}
		return nil, core.NewSourceNotFoundError(r.filePath, err)
	}

	switch r.fileType {
	case "csv":
		return r.readCSVData()
	case "xlsx":
		return r.readExcelData()
	default:
		return nil, fmt.Errorf("unsupported file type: %s", r.fileType)
	}
}

// readExcelData reads the selected sheet into structured format
func (r *DataReader) readExcelData() (*crime.RawTable, error) {
	startTime := time.Now()
	f, err := excelize.OpenFile(r.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	sheet := r.sheet
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("Excel file has no sheets")
		}
		sheet = sheets[0]
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheet, err)
	}
	internal.DefaultLogger.Debug("[DataReader] sheet %s read in %.2fms (%d rows)", sheet, float64(time.Since(startTime).Nanoseconds())/1e6, len(rows))

	return r.processRows(rows)
}

// readCSVData reads CSV data into structured format
func (r *DataReader) readCSVData() (*crime.RawTable, error) {
	file, err := os.Open(r.filePath)
	if err != nil {
		return nil, core.NewSourceNotFoundError(r.filePath, err)
	}
	defer file.Close()

	delimiter := ','
	if strings.ToLower(filepath.Ext(r.filePath)) == ".tsv" {
		delimiter = '\t'
	}
	return r.ReadCSV(file, delimiter)
}

// ReadCSV parses delimited text from any reader.
func (r *DataReader) ReadCSV(in io.Reader, delimiter rune) (*crime.RawTable, error) {
	reader := csv.NewReader(in)
	reader.Comma = delimiter
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	readStart := time.Now()
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV file: %w", err)
	}
	internal.DefaultLogger.Debug("[DataReader] CSV read in %.2fms (%d rows)", float64(time.Since(readStart).Nanoseconds())/1e6, len(rows))

	return r.processRows(rows)
}

// processRows converts raw string rows into a RawTable. Short rows leave the
// trailing columns empty; a leading unnamed index column is dropped.
func (r *DataReader) processRows(rows [][]string) (*crime.RawTable, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("%s file has no header row", strings.ToUpper(r.fileType))
	}

	headerRow := rows[0]
	headers := make([]string, len(headerRow))
	for i, header := range headerRow {
		headers[i] = strings.TrimSpace(strings.TrimPrefix(header, "\ufeff"))
	}

	skipFirst := len(headers) > 0 && (headers[0] == "" || headers[0] == "Unnamed: 0")

	dataRows := make([]crime.RawRow, 0, len(rows)-1)
	for i := 1; i < len(rows); i++ {
		row := rows[i]
		rowData := make(crime.RawRow, len(headers))
		for j, header := range headers {
			if skipFirst && j == 0 {
				continue
			}
			if j < len(row) {
				rowData[header] = strings.TrimSpace(row[j])
			} else {
				rowData[header] = ""
			}
		}
		dataRows = append(dataRows, rowData)
	}

	if skipFirst {
		headers = headers[1:]
	}

	internal.DefaultLogger.Debug("[DataReader] %s file processed (%d columns, %d rows)",
		strings.ToUpper(r.fileType), len(headers), len(dataRows))

	return &crime.RawTable{
		Source:  r.filePath,
		Headers: headers,
		Rows:    dataRows,
	}, nil
}

// ReadRaw implements ports.RawSource.
func (r *DataReader) ReadRaw(ctx context.Context) (*crime.RawTable, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return r.ReadData()
}

// Describe names the file for logs and table metadata.
func (r *DataReader) Describe() string {
	return r.filePath
}
