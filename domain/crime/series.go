package crime

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// GroupKey is the dimension records are grouped by.
type GroupKey string

const (
	GroupByYear         GroupKey = "year"
	GroupByJurisdiction GroupKey = "jurisdiction"
)

// AggFunc is how a metric is combined within a group.
type AggFunc string

const (
	AggSum  AggFunc = "sum"
	AggMean AggFunc = "mean"
)

// SeriesOrder controls the entry order of an aggregated series.
type SeriesOrder string

const (
	// OrderKeyAsc orders by the grouping key: ascending year or jurisdiction name.
	OrderKeyAsc SeriesOrder = "key_asc"
	// OrderValueDesc orders by the first metric's aggregate, largest first.
	OrderValueDesc SeriesOrder = "value_desc"
)

// ParseGroupKey validates a grouping dimension, defaulting to year.
func ParseGroupKey(s string) (GroupKey, error) {
	switch GroupKey(s) {
	case "", GroupByYear:
		return GroupByYear, nil
	case GroupByJurisdiction:
		return GroupByJurisdiction, nil
	}
	return "", fmt.Errorf("unknown group key %q", s)
}

// ParseAggFunc validates an aggregation, defaulting to sum.
func ParseAggFunc(s string) (AggFunc, error) {
	switch AggFunc(s) {
	case "", AggSum:
		return AggSum, nil
	case AggMean:
		return AggMean, nil
	}
	return "", fmt.Errorf("unknown aggregation %q", s)
}

// ParseSeriesOrder validates an order, defaulting to key order.
func ParseSeriesOrder(s string) (SeriesOrder, error) {
	switch SeriesOrder(s) {
	case "", OrderKeyAsc:
		return OrderKeyAsc, nil
	case OrderValueDesc:
		return OrderValueDesc, nil
	}
	return "", fmt.Errorf("unknown series order %q", s)
}

// GroupSpec describes one aggregation request.
type GroupSpec struct {
	By    GroupKey    `json:"by"`
	Func  AggFunc     `json:"func"`
	Order SeriesOrder `json:"order"`
}

// KeyOf returns the grouping value of a record for the given dimension.
func KeyOf(by GroupKey, r Record) GroupValue {
	if by == GroupByJurisdiction {
		return JurisdictionKey(r.Jurisdiction)
	}
	return YearKey(r.Year)
}

// GroupValue is a year or a jurisdiction. It encodes as a JSON number or string.
type GroupValue struct {
	Year         int
	Jurisdiction string
	IsYear       bool
}

// YearKey builds a year group value.
func YearKey(year int) GroupValue { return GroupValue{Year: year, IsYear: true} }

// JurisdictionKey builds a jurisdiction group value.
func JurisdictionKey(name string) GroupValue { return GroupValue{Jurisdiction: name} }

func (g GroupValue) MarshalJSON() ([]byte, error) {
	if g.IsYear {
		return json.Marshal(g.Year)
	}
	return json.Marshal(g.Jurisdiction)
}

func (g *GroupValue) UnmarshalJSON(data []byte) error {
	var year int
	if err := json.Unmarshal(data, &year); err == nil {
		*g = YearKey(year)
		return nil
	}
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return fmt.Errorf("group value must be a year or a jurisdiction: %w", err)
	}
	*g = JurisdictionKey(name)
	return nil
}

func (g GroupValue) String() string {
	if g.IsYear {
		return strconv.Itoa(g.Year)
	}
	return g.Jurisdiction
}

// Less orders years numerically and jurisdictions lexically.
func (g GroupValue) Less(other GroupValue) bool {
	if g.IsYear && other.IsYear {
		return g.Year < other.Year
	}
	return g.Jurisdiction < other.Jurisdiction
}

// SeriesEntry is one group of an aggregated series.
type SeriesEntry struct {
	Key    GroupValue         `json:"key"`
	Values map[Metric]float64 `json:"values"`
	Count  int                `json:"count"`
}

// Series is an AggregatedSeries: group key to aggregate per metric, in a defined order.
type Series struct {
	Spec    GroupSpec     `json:"spec"`
	Metrics []Metric      `json:"metrics"`
	Entries []SeriesEntry `json:"entries"`
}

// Len returns the number of groups.
func (s *Series) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Entries)
}

// ChangeRecord is a capped period-over-period change for one metric.
// Change is a fraction: 0.5 means +50%.
type ChangeRecord struct {
	Key    GroupValue `json:"key"`
	Metric Metric     `json:"metric"`
	Change float64    `json:"change"`
	Capped bool       `json:"capped"`
}

// LongRow is a melted (key, metric, value) triple used for exports and charts.
type LongRow struct {
	Key    GroupValue `json:"key"`
	Metric Metric     `json:"metric"`
	Value  float64    `json:"value"`
}
