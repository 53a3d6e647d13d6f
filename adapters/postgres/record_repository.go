package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"crimestats/domain/core"
	"crimestats/domain/crime"
	"crimestats/internal"
)

// DefaultTable is used when DATA_TABLE is not set.
const DefaultTable = "crime_stats"

// undefined_table
const pqUndefinedTable = "42P01"

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// RecordRepository reads and writes the crime table in PostgreSQL.
type RecordRepository struct {
	db    *sqlx.DB
	table string
}

// NewRecordRepository creates a repository over one table. The table name must be a
// plain identifier.
func NewRecordRepository(db *sqlx.DB, table string) (*RecordRepository, error) {
	if table == "" {
		table = DefaultTable
	}
	if !identPattern.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &RecordRepository{db: db, table: table}, nil
}

// IsDSN reports whether a source identifier is a PostgreSQL connection string.
func IsDSN(source string) bool {
	return strings.HasPrefix(source, "postgres://") || strings.HasPrefix(source, "postgresql://")
}

// Describe names the table for logs and table metadata.
func (r *RecordRepository) Describe() string {
	return "postgres:" + r.table
}

// ReadRaw selects every row of the table as text cells.
func (r *RecordRepository) ReadRaw(ctx context.Context) (*crime.RawTable, error) {
	query := fmt.Sprintf("SELECT * FROM %s", pq.QuoteIdentifier(r.table))

	rows, err := r.db.QueryxContext(ctx, query)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUndefinedTable {
			return nil, core.NewSourceNotFoundError(r.Describe(), nil)
		}
		return nil, core.NewSourceNotFoundError(r.Describe(), err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}

	table := &crime.RawTable{Source: r.Describe(), Headers: columns}
	for rows.Next() {
		values, err := rows.SliceScan()
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		row := make(crime.RawRow, len(columns))
		for i, col := range columns {
			row[col] = cellText(values[i])
		}
		table.Rows = append(table.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}

	internal.DefaultLogger.Debug("[RecordRepository] read %d rows from %s", len(table.Rows), r.table)
	return table, nil
}

func cellText(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(val)
	case string:
		return val
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	default:
		return fmt.Sprint(val)
	}
}

// StoredMetrics are the metric columns persisted besides the identifiers and population.
func StoredMetrics() []crime.Metric {
	metrics := append([]crime.Metric{}, crime.CrimeTypes...)
	metrics = append(metrics, crime.RateTypes()...)
	return append(metrics, crime.OverallCrimeRatePer100k)
}

// EnsureSchema creates the table if it does not exist.
func (r *RecordRepository) EnsureSchema(ctx context.Context) error {
	cols := []string{
		pq.QuoteIdentifier(crime.ColumnJurisdiction) + " TEXT NOT NULL",
		pq.QuoteIdentifier(crime.ColumnYear) + " INTEGER NOT NULL",
		pq.QuoteIdentifier(string(crime.Population)) + " BIGINT NOT NULL",
	}
	for _, m := range StoredMetrics() {
		cols = append(cols, pq.QuoteIdentifier(string(m))+" DOUBLE PRECISION")
	}
	cols = append(cols, fmt.Sprintf("PRIMARY KEY (%s, %s)",
		pq.QuoteIdentifier(crime.ColumnJurisdiction), pq.QuoteIdentifier(crime.ColumnYear)))

	query := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)", pq.QuoteIdentifier(r.table), strings.Join(cols, ",\n\t"))
	if _, err := r.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create table %s: %w", r.table, err)
	}
	return nil
}

// InsertRecords writes records in one transaction. Rows whose (jurisdiction, year)
// already exist are skipped; the count of inserted rows is returned.
func (r *RecordRepository) InsertRecords(ctx context.Context, records []crime.Record) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	metrics := StoredMetrics()
	columns := []string{
		pq.QuoteIdentifier(crime.ColumnJurisdiction),
		pq.QuoteIdentifier(crime.ColumnYear),
		pq.QuoteIdentifier(string(crime.Population)),
	}
	for _, m := range metrics {
		columns = append(columns, pq.QuoteIdentifier(string(m)))
	}
	placeholders := make([]string, len(columns))
	for i := range placeholders {
		placeholders[i] = "$" + strconv.Itoa(i+1)
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT DO NOTHING",
		pq.QuoteIdentifier(r.table), strings.Join(columns, ", "), strings.Join(placeholders, ", "))

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, rec := range records {
		args := make([]interface{}, 0, len(columns))
		args = append(args, rec.Jurisdiction, rec.Year, rec.Population)
		for _, m := range metrics {
			if v, ok := rec.Values[m]; ok {
				args = append(args, v)
			} else {
				args = append(args, nil)
			}
		}
		res, err := stmt.ExecContext(ctx, args...)
		if err != nil {
			return 0, fmt.Errorf("failed to insert %s %d: %w", rec.Jurisdiction, rec.Year, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += int(n)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit: %w", err)
	}
	return inserted, nil
}
