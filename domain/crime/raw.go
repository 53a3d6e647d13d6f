package crime

// RawRow is one source row as column name to cell text, before coercion.
type RawRow map[string]string

// RawTable is a tabular dataset as read from a file or database.
type RawTable struct {
	Source  string   // File path or DSN the rows came from
	Headers []string // Column headers
	Rows    []RawRow // Data rows
}

// Column returns every value of one column in row order.
func (t *RawTable) Column(header string) []string {
	values := make([]string, len(t.Rows))
	for i, row := range t.Rows {
		values[i] = row[header]
	}
	return values
}

// HasColumn reports whether the header row contains the column.
func (t *RawTable) HasColumn(header string) bool {
	for _, h := range t.Headers {
		if h == header {
			return true
		}
	}
	return false
}
