package ports

import (
	"context"
	"time"

	"crimestats/domain/crime"
)

// SeriesCache memoises aggregated series by key. A miss returns (nil, false, nil).
type SeriesCache interface {
	Get(ctx context.Context, key string) (*crime.Series, bool, error)
	Set(ctx context.Context, key string, series *crime.Series, ttl time.Duration) error
	Close() error
}
