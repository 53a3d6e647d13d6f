package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crimestats/domain/crime"
	"crimestats/ports"
)

var (
	_ ports.SeriesCache = (*MemoryCache)(nil)
	_ ports.SeriesCache = (*RedisCache)(nil)
)

func sampleSeries() *crime.Series {
	return &crime.Series{
		Spec:    crime.GroupSpec{By: crime.GroupByYear, Func: crime.AggSum, Order: crime.OrderKeyAsc},
		Metrics: []crime.Metric{crime.Murder},
		Entries: []crime.SeriesEntry{
			{Key: crime.YearKey(2019), Values: map[crime.Metric]float64{crime.Murder: 3}, Count: 2},
		},
	}
}

func TestMemoryCache_RoundTrip(t *testing.T) {
	ctx := context.Background()
	c := NewMemory()

	_, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "k", sampleSeries(), 0))
	got, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, sampleSeries(), got)

	got.Entries[0].Values[crime.Murder] = 99
	again, _, _ := c.Get(ctx, "k")
	assert.Equal(t, 3.0, again.Entries[0].Values[crime.Murder], "cached value is not aliased")
}

func TestMemoryCache_Expiry(t *testing.T) {
	ctx := context.Background()
	c := NewMemory()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(ctx, "k", sampleSeries(), time.Minute))
	now = now.Add(2 * time.Minute)

	_, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestNewRedis_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	_, err := NewRedis(ctx, WithAddress("127.0.0.1:1"), WithDB(0), WithPassword(""), WithPrefix("t:"))
	assert.Error(t, err)
}
