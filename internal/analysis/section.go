// Package analysis computes the dashboard sections over a loaded crime table: trends,
// distribution, geography, hotspots, population correlation and rate changes. Each
// section returns plain data plus narrative insights derived from that data.
package analysis

import (
	"fmt"
	"math"
	"strconv"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"crimestats/domain/core"
	"crimestats/domain/crime"
	"crimestats/internal/pipeline"
)

// Section carries the narrative and the per-value problems of one analysis.
// Warnings never abort a section.
type Section struct {
	Insights []string `json:"insights"`
	Warnings []string `json:"warnings,omitempty"`
}

func (s *Section) insight(format string, args ...interface{}) {
	s.Insights = append(s.Insights, printer.Sprintf(format, args...))
}

func (s *Section) warn(format string, args ...interface{}) {
	s.Warnings = append(s.Warnings, printer.Sprintf(format, args...))
}

// Options are the defaults a full report runs every section with.
type Options struct {
	ChangeCap         float64
	TopN              int
	ChangeTopN        int
	Hotspot           HotspotPolicy
	TrendRates        []crime.Metric
	CorrelationMetric crime.Metric
	// Year for the distribution breakdown; 0 selects the latest year.
	Year int
}

// DefaultOptions mirror the dashboard defaults.
func DefaultOptions() Options {
	return Options{
		ChangeCap:         pipeline.DefaultChangeCap,
		TopN:              10,
		ChangeTopN:        5,
		Hotspot:           DefaultHotspotPolicy(),
		TrendRates:        []crime.Metric{crime.MurderPer100k, crime.RobberyPer100k},
		CorrelationMetric: crime.MurderPer100k,
	}
}

// YearValue is one point of a yearly series.
type YearValue struct {
	Year  int     `json:"year"`
	Value float64 `json:"value"`
}

// MetricValue pairs a metric with a value.
type MetricValue struct {
	Metric crime.Metric `json:"metric"`
	Value  float64      `json:"value"`
}

var printer = message.NewPrinter(language.English)

func requireData(t *crime.Table) error {
	if t.IsEmpty() {
		return core.NewInsufficientDataError("no records loaded")
	}
	return nil
}

// yearLabel keeps years out of the locale printer, which would group their digits.
func yearLabel(year int) string {
	return strconv.Itoa(year)
}

func percent(fraction float64) string {
	return fmt.Sprintf("%+.2f%%", fraction*100)
}

func clampTopN(n, size int) int {
	if n < 1 {
		n = 1
	}
	if n > size {
		n = size
	}
	return n
}

func yearSeries(series *crime.Series, metric crime.Metric) []YearValue {
	out := make([]YearValue, 0, series.Len())
	for _, e := range series.Entries {
		v, ok := e.Values[metric]
		if !ok || math.IsNaN(v) {
			continue
		}
		out = append(out, YearValue{Year: e.Key.Year, Value: v})
	}
	return out
}

// validateCrimeTypes accepts only the seven count metrics.
func validateCrimeTypes(schema *crime.Schema, metrics []crime.Metric) error {
	if err := crime.ValidateMetrics(schema, metrics); err != nil {
		return err
	}
	for _, m := range metrics {
		if !crime.IsCount(m) {
			return fmt.Errorf("%w: %q is not a crime type", core.ErrUnknownMetric, m)
		}
	}
	return nil
}
