package crime

import (
	"sort"

	"crimestats/domain/core"
)

// Record is one row of the source table: a jurisdiction in a given year.
type Record struct {
	Jurisdiction string             `json:"jurisdiction" db:"jurisdiction"`
	Year         int                `json:"year" db:"year"`
	Population   int64              `json:"population" db:"population"`
	Values       map[Metric]float64 `json:"values"`
}

// Value resolves a metric for the record, including derived metrics.
// The second result is false when the record has no value for it.
func (r Record) Value(m Metric) (float64, bool) {
	switch m {
	case Population:
		return float64(r.Population), true
	case TotalCrime:
		return r.totalCrime(), true
	case CrimeRate:
		if r.Population <= 0 {
			return 0, false
		}
		return r.totalCrime() * RateBase / float64(r.Population), true
	}
	v, ok := r.Values[m]
	return v, ok
}

func (r Record) totalCrime() float64 {
	total := 0.0
	for _, m := range CrimeTypes {
		total += r.Values[m]
	}
	return total
}

// Schema is the set of numeric metrics available on a table's records.
type Schema struct {
	metrics map[Metric]struct{}
	order   []Metric
}

// NewSchema builds a schema from numeric column names. Derived metrics are always present.
func NewSchema(columns []Metric) *Schema {
	s := &Schema{metrics: make(map[Metric]struct{})}
	for _, m := range columns {
		s.add(m)
	}
	s.add(Population)
	s.add(TotalCrime)
	s.add(CrimeRate)
	return s
}

// DefaultSchema is the full catalog, used when no table has been loaded.
func DefaultSchema() *Schema {
	return NewSchema(Catalog())
}

func (s *Schema) add(m Metric) {
	if _, ok := s.metrics[m]; ok {
		return
	}
	s.metrics[m] = struct{}{}
	s.order = append(s.order, m)
}

// Has reports whether the metric exists in the schema.
func (s *Schema) Has(m Metric) bool {
	if s == nil {
		return DefaultSchema().Has(m)
	}
	_, ok := s.metrics[m]
	return ok
}

// Metrics returns the schema's metrics in insertion order.
func (s *Schema) Metrics() []Metric {
	return append([]Metric(nil), s.order...)
}

// LoadStats counts what the loader kept and dropped.
type LoadStats struct {
	RowsRead         int      `json:"rows_read"`
	RowsKept         int      `json:"rows_kept"`
	DroppedMissing   int      `json:"dropped_missing"`
	DroppedBadYear   int      `json:"dropped_bad_year"`
	DroppedDuplicate int      `json:"dropped_duplicate"`
	DroppedInvalid   int      `json:"dropped_invalid"`
	TextColumns      []string `json:"text_columns,omitempty"`
}

// Table is a loaded, cleaned dataset. Records are read-only after load.
type Table struct {
	Source  string             `json:"source"`
	Version core.SourceVersion `json:"version"`
	Records []Record           `json:"-"`
	Schema  *Schema            `json:"-"`
	Stats   LoadStats          `json:"stats"`
}

// EmptyTable is the "no data available" result.
func EmptyTable(source string) *Table {
	return &Table{Source: source, Schema: DefaultSchema()}
}

// IsEmpty reports whether the table has no records.
func (t *Table) IsEmpty() bool {
	return t == nil || len(t.Records) == 0
}

// Years returns the distinct years in ascending order.
func (t *Table) Years() []int {
	seen := make(map[int]struct{})
	for _, r := range t.Records {
		seen[r.Year] = struct{}{}
	}
	years := make([]int, 0, len(seen))
	for y := range seen {
		years = append(years, y)
	}
	sort.Ints(years)
	return years
}

// Jurisdictions returns the distinct jurisdictions in ascending order.
func (t *Table) Jurisdictions() []string {
	seen := make(map[string]struct{})
	for _, r := range t.Records {
		seen[r.Jurisdiction] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for j := range seen {
		out = append(out, j)
	}
	sort.Strings(out)
	return out
}

// Filter returns the records that satisfy keep, preserving order.
func (t *Table) Filter(keep func(Record) bool) []Record {
	var out []Record
	for _, r := range t.Records {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}
