package pipeline

import (
	"fmt"
	"math"
	"sort"

	"crimestats/domain/core"
	"crimestats/domain/crime"
)

// DefaultChangeCap bounds a change at ±1000%, expressed as a fraction.
const DefaultChangeCap = 10.0

// PercentChange is the uncapped fractional change from prev to cur. It is undefined
// when prev is zero or either value is NaN.
func PercentChange(prev, cur float64) (float64, bool) {
	if prev == 0 || math.IsNaN(prev) || math.IsNaN(cur) {
		return 0, false
	}
	return (cur - prev) / prev, true
}

// CappedPercentChange computes the period-over-period change of every metric in a
// key-ordered series, clipped to [-cap, +cap]. Changes are fractions (0.5 is +50%).
// The first period and periods whose predecessor is zero or missing are omitted.
// Records are emitted metric by metric, periods ascending.
func CappedPercentChange(series *crime.Series, cap float64) ([]crime.ChangeRecord, error) {
	if cap <= 0 || math.IsNaN(cap) {
		return nil, fmt.Errorf("%w: %v", core.ErrInvalidCap, cap)
	}
	if err := requireKeyOrder(series); err != nil {
		return nil, err
	}

	changes := []crime.ChangeRecord{}
	for _, m := range series.Metrics {
		for i := 1; i < len(series.Entries); i++ {
			prev, pok := series.Entries[i-1].Values[m]
			cur, cok := series.Entries[i].Values[m]
			if !pok || !cok {
				continue
			}
			raw, ok := PercentChange(prev, cur)
			if !ok {
				continue
			}
			clipped := Clip(raw, cap)
			changes = append(changes, crime.ChangeRecord{
				Key:    series.Entries[i].Key,
				Metric: m,
				Change: clipped,
				Capped: clipped != raw,
			})
		}
	}
	return changes, nil
}

// Clip bounds v to the closed interval [-cap, cap].
func Clip(v, cap float64) float64 {
	return math.Max(-cap, math.Min(cap, v))
}

// RankChanges returns the topN largest increases (change > 0) and the topN largest
// decreases (change < 0) among changes for the given metrics. An empty metric subset
// selects every metric. Ties keep the input order.
func RankChanges(changes []crime.ChangeRecord, metrics []crime.Metric, topN int) (increases, decreases []crime.ChangeRecord, err error) {
	if topN < 1 {
		return nil, nil, fmt.Errorf("%w: %d", core.ErrInvalidTopN, topN)
	}

	selected := FilterChanges(changes, metrics)

	var up, down []crime.ChangeRecord
	for _, c := range selected {
		switch {
		case c.Change > 0:
			up = append(up, c)
		case c.Change < 0:
			down = append(down, c)
		}
	}

	sort.SliceStable(up, func(i, j int) bool { return up[i].Change > up[j].Change })
	sort.SliceStable(down, func(i, j int) bool { return down[i].Change < down[j].Change })

	return head(up, topN), head(down, topN), nil
}

// FilterChanges keeps the changes whose metric is in metrics; an empty list keeps all.
func FilterChanges(changes []crime.ChangeRecord, metrics []crime.Metric) []crime.ChangeRecord {
	if len(metrics) == 0 {
		return append([]crime.ChangeRecord(nil), changes...)
	}
	want := make(map[crime.Metric]struct{}, len(metrics))
	for _, m := range metrics {
		want[m] = struct{}{}
	}
	out := make([]crime.ChangeRecord, 0, len(changes))
	for _, c := range changes {
		if _, ok := want[c.Metric]; ok {
			out = append(out, c)
		}
	}
	return out
}

func head(changes []crime.ChangeRecord, n int) []crime.ChangeRecord {
	if len(changes) > n {
		changes = changes[:n]
	}
	if changes == nil {
		return []crime.ChangeRecord{}
	}
	return changes
}

// FormatChange renders a fractional change as a percentage. Values at the cap are shown
// as open bounds, e.g. ">1000%" for a cap of 10.
func FormatChange(value, cap float64) string {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return "N/A"
	}
	if cap > 0 {
		if value >= cap {
			return fmt.Sprintf(">%s%%", formatPercentNumber(cap*100))
		}
		if value <= -cap {
			return fmt.Sprintf("<-%s%%", formatPercentNumber(cap*100))
		}
	}
	return fmt.Sprintf("%.2f%%", value*100)
}

func formatPercentNumber(v float64) string {
	if v == math.Trunc(v) {
		return fmt.Sprintf("%.0f", v)
	}
	return fmt.Sprintf("%.2f", v)
}
