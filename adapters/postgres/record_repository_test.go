package postgres

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crimestats/domain/core"
	"crimestats/domain/crime"
)

func newMockRepo(t *testing.T) (*RecordRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo, err := NewRecordRepository(sqlx.NewDb(db, "postgres"), "")
	require.NoError(t, err)
	return repo, mock
}

func TestReadRaw(t *testing.T) {
	repo, mock := newMockRepo(t)

	rows := sqlmock.NewRows([]string{"Jurisdiction", "Year", "Murder"}).
		AddRow("Kent County", int64(2019), 3.5).
		AddRow([]byte("Cecil County"), []byte("2020"), nil)
	mock.ExpectQuery(`SELECT \* FROM "crime_stats"`).WillReturnRows(rows)

	table, err := repo.ReadRaw(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "postgres:crime_stats", table.Source)
	assert.Equal(t, []string{"Jurisdiction", "Year", "Murder"}, table.Headers)
	require.Len(t, table.Rows, 2)
	assert.Equal(t, crime.RawRow{"Jurisdiction": "Kent County", "Year": "2019", "Murder": "3.5"}, table.Rows[0])
	assert.Equal(t, "", table.Rows[1]["Murder"])
	assert.Equal(t, "Cecil County", table.Rows[1]["Jurisdiction"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReadRaw_MissingTable(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery(`SELECT \* FROM "crime_stats"`).WillReturnError(&pq.Error{Code: pqUndefinedTable})

	_, err := repo.ReadRaw(context.Background())
	assert.ErrorIs(t, err, core.ErrSourceNotFound)
}

func TestEnsureSchema(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS "crime_stats"`).WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.EnsureSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertRecords(t *testing.T) {
	repo, mock := newMockRepo(t)

	records := []crime.Record{
		{Jurisdiction: "Kent County", Year: 2019, Population: 19000, Values: map[crime.Metric]float64{crime.Murder: 1}},
		{Jurisdiction: "Kent County", Year: 2020, Population: 19100, Values: map[crime.Metric]float64{crime.Murder: 2}},
	}

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(`INSERT INTO "crime_stats"`)
	prep.ExpectExec().WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	n, err := repo.InsertRecords(context.Background(), records)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "conflicting row is skipped")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewRecordRepository_RejectsBadTable(t *testing.T) {
	_, err := NewRecordRepository(nil, "crime; DROP TABLE x")
	assert.Error(t, err)
}

func TestIsDSN(t *testing.T) {
	assert.True(t, IsDSN("postgres://u@localhost/db"))
	assert.True(t, IsDSN("postgresql://u@localhost/db"))
	assert.False(t, IsDSN("data/crime.csv"))
}
