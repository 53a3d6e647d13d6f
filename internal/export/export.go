// Package export writes aggregated series, change records and report tables as CSV or
// XLSX downloads. No index column is ever written.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Format is a download format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ParseFormat accepts csv or xlsx, case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatCSV, FormatXLSX:
		return f, nil
	}
	return "", fmt.Errorf("unsupported export format %q", s)
}

// ContentType is the MIME type served for the format.
func (f Format) ContentType() string {
	if f == FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv; charset=utf-8"
}

// Filename appends the format's extension to base.
func (f Format) Filename(base string) string {
	return base + "." + string(f)
}

// Sheet is one exported table. Cells hold strings, ints or float64s; a NaN cell is
// written empty.
type Sheet struct {
	Name    string
	Headers []string
	Rows    [][]interface{}
}

// Write encodes sheets in the given format. CSV carries only the first sheet.
func Write(w io.Writer, format Format, sheets ...Sheet) error {
	if len(sheets) == 0 {
		return fmt.Errorf("nothing to export")
	}
	switch format {
	case FormatCSV:
		return WriteCSV(w, sheets[0])
	case FormatXLSX:
		return WriteXLSX(w, sheets...)
	}
	return fmt.Errorf("unsupported export format %q", format)
}

// WriteCSV writes the header row followed by the data rows.
func WriteCSV(w io.Writer, s Sheet) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(s.Headers); err != nil {
		return err
	}
	record := make([]string, len(s.Headers))
	for _, row := range s.Rows {
		record = record[:0]
		for _, v := range row {
			record = append(record, cellText(v))
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteXLSX writes one worksheet per sheet, numbers kept numeric.
func WriteXLSX(w io.Writer, sheets ...Sheet) error {
	f := excelize.NewFile()
	defer f.Close()

	const defaultSheet = "Sheet1"
	for i, s := range sheets {
		name := sheetName(s.Name, i)
		if i == 0 {
			if err := f.SetSheetName(defaultSheet, name); err != nil {
				return err
			}
		} else if _, err := f.NewSheet(name); err != nil {
			return err
		}

		header := make([]interface{}, len(s.Headers))
		for c, h := range s.Headers {
			header[c] = h
		}
		if err := f.SetSheetRow(name, "A1", &header); err != nil {
			return err
		}
		for r, row := range s.Rows {
			cells := make([]interface{}, len(row))
			for c, v := range row {
				cells[c] = cellValue(v)
			}
			cell, err := excelize.CoordinatesToCellName(1, r+2)
			if err != nil {
				return err
			}
			if err := f.SetSheetRow(name, cell, &cells); err != nil {
				return err
			}
		}
	}
	f.SetActiveSheet(0)
	_, err := f.WriteTo(w)
	return err
}

// sheetName trims to Excel's 31 character limit and fills in blanks.
func sheetName(name string, i int) string {
	name = strings.TrimSpace(name)
	if name == "" {
		name = fmt.Sprintf("Sheet%d", i+1)
	}
	if len(name) > 31 {
		name = name[:31]
	}
	return name
}

func cellText(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return ""
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}

func cellValue(v interface{}) interface{} {
	if x, ok := v.(float64); ok && (math.IsNaN(x) || math.IsInf(x, 0)) {
		return nil
	}
	return v
}
