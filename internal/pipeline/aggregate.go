// Package pipeline is the crime-metric aggregation and capped rate-of-change core.
// Every function is pure: it reads the records it is given and returns new values.
package pipeline

import (
	"math"
	"sort"

	"github.com/montanaflynn/stats"

	"crimestats/domain/core"
	"crimestats/domain/crime"
)

type group struct {
	key    crime.GroupValue
	values map[crime.Metric][]float64
	count  int
}

// Aggregate groups records by spec.By and combines each metric with spec.Func.
// Metrics are validated against the full catalog; use AggregateTable to validate
// against a loaded table's schema instead.
func Aggregate(records []crime.Record, metrics []crime.Metric, spec crime.GroupSpec) (*crime.Series, error) {
	return aggregate(records, metrics, spec, crime.DefaultSchema())
}

// AggregateTable aggregates a loaded table, validating metrics against its schema.
func AggregateTable(t *crime.Table, metrics []crime.Metric, spec crime.GroupSpec) (*crime.Series, error) {
	if t == nil {
		return aggregate(nil, metrics, spec, crime.DefaultSchema())
	}
	return aggregate(t.Records, metrics, spec, t.Schema)
}

func aggregate(records []crime.Record, metrics []crime.Metric, spec crime.GroupSpec, schema *crime.Schema) (*crime.Series, error) {
	if err := crime.ValidateMetrics(schema, metrics); err != nil {
		return nil, err
	}
	spec = normalizeSpec(spec)

	series := &crime.Series{
		Spec:    spec,
		Metrics: append([]crime.Metric(nil), metrics...),
		Entries: []crime.SeriesEntry{},
	}
	if len(records) == 0 {
		return series, nil
	}

	groups := make(map[crime.GroupValue]*group)
	var order []crime.GroupValue
	for _, r := range records {
		key := crime.KeyOf(spec.By, r)
		g, ok := groups[key]
		if !ok {
			g = &group{key: key, values: make(map[crime.Metric][]float64)}
			groups[key] = g
			order = append(order, key)
		}
		g.count++
		for _, m := range metrics {
			v, ok := r.Value(m)
			if !ok || math.IsNaN(v) {
				continue
			}
			g.values[m] = append(g.values[m], v)
		}
	}

	sort.SliceStable(order, func(i, j int) bool { return order[i].Less(order[j]) })

	for _, key := range order {
		g := groups[key]
		entry := crime.SeriesEntry{
			Key:    key,
			Values: make(map[crime.Metric]float64, len(metrics)),
			Count:  g.count,
		}
		for _, m := range metrics {
			vals := g.values[m]
			if len(vals) == 0 {
				continue
			}
			entry.Values[m] = combine(spec.Func, vals)
		}
		series.Entries = append(series.Entries, entry)
	}

	if spec.Order == crime.OrderValueDesc {
		SortByValueDesc(series, metrics[0])
	}
	return series, nil
}

func normalizeSpec(spec crime.GroupSpec) crime.GroupSpec {
	if spec.By == "" {
		spec.By = crime.GroupByYear
	}
	if spec.Func == "" {
		spec.Func = crime.AggSum
	}
	if spec.Order == "" {
		spec.Order = crime.OrderKeyAsc
	}
	return spec
}

func combine(fn crime.AggFunc, vals []float64) float64 {
	var (
		v   float64
		err error
	)
	if fn == crime.AggMean {
		v, err = stats.Mean(vals)
	} else {
		v, err = stats.Sum(vals)
	}
	if err != nil {
		return 0
	}
	return v
}

// SortByValueDesc reorders entries by metric, largest first. Entries missing the
// metric go last; ties keep their current order.
func SortByValueDesc(series *crime.Series, metric crime.Metric) {
	series.Spec.Order = crime.OrderValueDesc
	sort.SliceStable(series.Entries, func(i, j int) bool {
		vi, iok := series.Entries[i].Values[metric]
		vj, jok := series.Entries[j].Values[metric]
		if iok != jok {
			return iok
		}
		return vi > vj
	})
}

// Total sums one metric across the series, the ungrouped equivalent of a sum aggregation.
func Total(series *crime.Series, metric crime.Metric) float64 {
	total := 0.0
	for _, e := range series.Entries {
		total += e.Values[metric]
	}
	return total
}

// Values returns one metric's values in series order with their keys, skipping groups
// that have no value for it.
func Values(series *crime.Series, metric crime.Metric) ([]crime.GroupValue, []float64) {
	var keys []crime.GroupValue
	var vals []float64
	for _, e := range series.Entries {
		v, ok := e.Values[metric]
		if !ok {
			continue
		}
		keys = append(keys, e.Key)
		vals = append(vals, v)
	}
	return keys, vals
}

// Melt flattens a series into long rows, metric by metric in series order.
func Melt(series *crime.Series) []crime.LongRow {
	rows := make([]crime.LongRow, 0, series.Len()*len(series.Metrics))
	for _, m := range series.Metrics {
		for _, e := range series.Entries {
			v, ok := e.Values[m]
			if !ok {
				continue
			}
			rows = append(rows, crime.LongRow{Key: e.Key, Metric: m, Value: v})
		}
	}
	return rows
}

// Lookup finds the entry for a key.
func Lookup(series *crime.Series, key crime.GroupValue) (crime.SeriesEntry, bool) {
	for _, e := range series.Entries {
		if e.Key == key {
			return e, true
		}
	}
	return crime.SeriesEntry{}, false
}

// Vectors extracts aligned x and y values from records that have both metrics.
func Vectors(records []crime.Record, x, y crime.Metric) ([]float64, []float64) {
	xs := make([]float64, 0, len(records))
	ys := make([]float64, 0, len(records))
	for _, r := range records {
		xv, xok := r.Value(x)
		yv, yok := r.Value(y)
		if !xok || !yok || math.IsNaN(xv) || math.IsNaN(yv) {
			continue
		}
		xs = append(xs, xv)
		ys = append(ys, yv)
	}
	return xs, ys
}

// requireKeyOrder guards operations that only make sense on a series of years in
// ascending order. Jurisdiction keys have no period to compare against.
func requireKeyOrder(series *crime.Series) error {
	if series.Spec.Order == crime.OrderValueDesc || series.Spec.By != crime.GroupByYear {
		return core.ErrUnorderedSeries
	}
	return nil
}
