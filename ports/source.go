package ports

import (
	"context"

	"crimestats/domain/crime"
)

// RawSource reads one crime table as uncoerced text cells.
// Implementations return core.ErrSourceNotFound when the file or table is absent.
type RawSource interface {
	ReadRaw(ctx context.Context) (*crime.RawTable, error)
	// Describe names the source for logs and table metadata.
	Describe() string
}

// RecordWriter stores cleaned records; used by the migrate command.
type RecordWriter interface {
	EnsureSchema(ctx context.Context) error
	InsertRecords(ctx context.Context, records []crime.Record) (int, error)
}
