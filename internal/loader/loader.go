// Package loader turns a raw crime table into cleaned, typed records.
package loader

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"crimestats/adapters/datareadiness/coercer"
	"crimestats/adapters/excel"
	"crimestats/adapters/postgres"
	"crimestats/domain/core"
	"crimestats/domain/crime"
	"crimestats/internal"
	"crimestats/internal/config"
	"crimestats/ports"
)

// Loader cleans raw tables. It holds no state between calls; every Load re-reads.
type Loader struct {
	coercer *coercer.TypeCoercer
	logger  *internal.Logger
}

// New creates a loader with the given coercion rules.
func New(cfg coercer.CoercionConfig, logger *internal.Logger) *Loader {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &Loader{coercer: coercer.NewTypeCoercer(cfg), logger: logger}
}

// Open resolves the configured source to a RawSource: a .csv/.tsv/.xlsx path or a
// postgres DSN, in which case Table names the relation to read. The returned closer
// releases the database handle and is never nil.
func Open(ctx context.Context, data config.DataConfig) (ports.RawSource, io.Closer, error) {
	source := data.Source
	if postgres.IsDSN(source) {
		db, err := sqlx.ConnectContext(ctx, "postgres", source)
		if err != nil {
			return nil, nopCloser{}, core.NewSourceNotFoundError(redactDSN(source), err)
		}
		repo, err := postgres.NewRecordRepository(db, data.Table)
		if err != nil {
			db.Close()
			return nil, nopCloser{}, err
		}
		return repo, db, nil
	}
	if !excel.IsSpreadsheetPath(source) {
		return nil, nopCloser{}, fmt.Errorf("unsupported data source %q", source)
	}
	xc := excel.DefaultExcelConfig()
	xc.FilePath = source
	xc.Sheet = data.Sheet
	return xc.NewReader(), nopCloser{}, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func redactDSN(dsn string) string {
	if at := strings.LastIndex(dsn, "@"); at >= 0 {
		if scheme := strings.Index(dsn, "://"); scheme >= 0 && scheme < at {
			return dsn[:scheme+3] + "***" + dsn[at:]
		}
	}
	return dsn
}

// Load reads and cleans the source. A missing source returns core.ErrSourceNotFound.
func (l *Loader) Load(ctx context.Context, src ports.RawSource) (*crime.Table, error) {
	raw, err := src.ReadRaw(ctx)
	if err != nil {
		return nil, err
	}
	table, err := l.Build(raw)
	if err != nil {
		return nil, err
	}
	if table.Source == "" {
		table.Source = src.Describe()
	}
	l.logger.Info("loaded %s: %d of %d rows kept (missing=%d bad_year=%d duplicate=%d invalid=%d)",
		table.Source, table.Stats.RowsKept, table.Stats.RowsRead, table.Stats.DroppedMissing,
		table.Stats.DroppedBadYear, table.Stats.DroppedDuplicate, table.Stats.DroppedInvalid)
	return table, nil
}

// LoadOrEmpty degrades a missing source to an empty table with a warning, so callers
// can render "no data available". Other errors are still returned.
func (l *Loader) LoadOrEmpty(ctx context.Context, src ports.RawSource) (*crime.Table, error) {
	table, err := l.Load(ctx, src)
	if err != nil {
		if core.IsSourceNotFound(err) {
			l.logger.Warn("no data available: %v", err)
			return crime.EmptyTable(src.Describe()), nil
		}
		return nil, err
	}
	return table, nil
}

// Build applies the cleaning rules to an already-read table.
func (l *Loader) Build(raw *crime.RawTable) (*crime.Table, error) {
	if raw == nil {
		return crime.EmptyTable(""), nil
	}
	strict := l.coercer.Config().Policy == coercer.PolicyStrict

	tracked := make(map[string]bool)
	for _, col := range crime.TrackedColumns() {
		tracked[col] = true
	}

	var numeric []string
	var textColumns []string
	for _, col := range raw.Headers {
		if col == crime.ColumnJurisdiction || col == crime.ColumnYear {
			continue
		}
		analysis := l.coercer.AnalyzeColumn(col, raw.Column(col))
		if strict && analysis.FirstBadValue != "" {
			return nil, core.NewCoercionError(col, analysis.FirstBadValue)
		}
		if tracked[col] || analysis.Numeric {
			numeric = append(numeric, col)
			continue
		}
		textColumns = append(textColumns, col)
		l.logger.Debug("column %s kept as text (%.0f%% numeric)", col, analysis.NumericRatio*100)
	}

	for _, col := range crime.TrackedColumns() {
		if !raw.HasColumn(col) {
			l.logger.Warn("source %s has no %s column; every row will be dropped", raw.Source, col)
		}
	}

	stats := crime.LoadStats{RowsRead: len(raw.Rows), TextColumns: textColumns}
	seen := make(map[string]struct{}, len(raw.Rows))
	records := make([]crime.Record, 0, len(raw.Rows))

	for _, row := range raw.Rows {
		rec, reason := l.buildRecord(row, numeric)
		switch reason {
		case dropMissing:
			stats.DroppedMissing++
			continue
		case dropBadYear:
			stats.DroppedBadYear++
			continue
		case dropInvalid:
			stats.DroppedInvalid++
			continue
		}

		key := rec.Jurisdiction + "\x00" + strconv.Itoa(rec.Year)
		if _, dup := seen[key]; dup {
			stats.DroppedDuplicate++
			continue
		}
		seen[key] = struct{}{}
		records = append(records, rec)
	}
	stats.RowsKept = len(records)

	columns := make([]crime.Metric, 0, len(numeric))
	for _, col := range numeric {
		columns = append(columns, crime.Metric(col))
	}

	return &crime.Table{
		Source:  raw.Source,
		Version: fingerprint(records, columns),
		Records: records,
		Schema:  crime.NewSchema(columns),
		Stats:   stats,
	}, nil
}

type dropReason int

const (
	keep dropReason = iota
	dropMissing
	dropBadYear
	dropInvalid
)

func (l *Loader) buildRecord(row crime.RawRow, numeric []string) (crime.Record, dropReason) {
	jurisdiction := strings.TrimSpace(row[crime.ColumnJurisdiction])
	if coercer.IsMissing(jurisdiction) {
		return crime.Record{}, dropMissing
	}

	yearText := row[crime.ColumnYear]
	if coercer.IsMissing(yearText) {
		return crime.Record{}, dropMissing
	}

	popText := row[string(crime.Population)]
	if _, ok := l.coercer.ParseFloat(popText); !ok {
		return crime.Record{}, dropMissing
	}

	rec := crime.Record{
		Jurisdiction: jurisdiction,
		Values:       make(map[crime.Metric]float64, len(numeric)),
	}
	for _, col := range numeric {
		m := crime.Metric(col)
		v, ok := l.coercer.ParseFloat(row[col])
		if !ok {
			if crime.IsCount(m) {
				return crime.Record{}, dropMissing
			}
			continue
		}
		if m != crime.Population {
			rec.Values[m] = v
		}
	}
	for _, m := range crime.CrimeTypes {
		if _, ok := rec.Values[m]; !ok {
			return crime.Record{}, dropMissing
		}
	}

	year, ok := l.coercer.ParseYear(yearText)
	if !ok {
		return crime.Record{}, dropBadYear
	}
	rec.Year = year

	// a population must be a non-negative whole number of residents
	population, ok := l.coercer.ParseInt(popText)
	if !ok || population < 0 {
		return crime.Record{}, dropInvalid
	}
	rec.Population = population
	for _, m := range crime.CrimeTypes {
		if rec.Values[m] < 0 {
			return crime.Record{}, dropInvalid
		}
	}
	return rec, keep
}

// fingerprint hashes the cleaned content so any change to the data changes the version.
func fingerprint(records []crime.Record, columns []crime.Metric) core.SourceVersion {
	cols := append([]crime.Metric(nil), columns...)
	sort.Slice(cols, func(i, j int) bool { return cols[i] < cols[j] })

	var b strings.Builder
	for _, c := range cols {
		b.WriteString(string(c))
		b.WriteByte(',')
	}
	b.WriteByte('\n')
	for _, r := range records {
		b.WriteString(r.Jurisdiction)
		b.WriteByte('|')
		b.WriteString(strconv.Itoa(r.Year))
		b.WriteByte('|')
		b.WriteString(strconv.FormatInt(r.Population, 10))
		for _, c := range cols {
			b.WriteByte('|')
			if v, ok := r.Values[c]; ok {
				b.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
			}
		}
		b.WriteByte('\n')
	}
	return core.NewSourceVersion([]byte(b.String()))
}
