package excel

// ExcelConfig holds configuration for a spreadsheet data source
type ExcelConfig struct {
	FilePath string `json:"file_path" yaml:"file_path"`
	Sheet    string `json:"sheet" yaml:"sheet"`
}

// DefaultExcelConfig returns sensible defaults for spreadsheet processing
func DefaultExcelConfig() ExcelConfig {
	return ExcelConfig{}
}

// NewReader builds a DataReader for the configured file.
func (c ExcelConfig) NewReader() *DataReader {
	return NewDataReader(c.FilePath).WithSheet(c.Sheet)
}
