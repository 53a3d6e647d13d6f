package crime

import (
	"strings"

	"crimestats/domain/core"
)

// Metric names a numeric column of the crime table.
type Metric string

// Count metrics as they appear in the source table.
const (
	Murder            Metric = "Murder"
	Rape              Metric = "Rape"
	Robbery           Metric = "Robbery"
	AggAssault        Metric = "AggAssault"
	BreakAndEnter     Metric = "BreakAndEnter"
	LarcenyTheft      Metric = "LarcenyTheft"
	MotorVehicleTheft Metric = "MotorVehicleTheft"
)

// Per-100k rate metrics as they appear in the source table.
const (
	MurderPer100k            Metric = "MurderPer100k"
	RapePer100k              Metric = "RapePer100k"
	RobberyPer100k           Metric = "RobberyPer100k"
	AggAssaultPer100k        Metric = "AggAssaultPer100k"
	BreakAndEnterPer100k     Metric = "BreakAndEnterPer100k"
	LarcenyTheftPer100k      Metric = "LarcenyTheftPer100k"
	MotorVehicleTheftPer100k Metric = "MotorVehicleTheftPer100k"
)

// Rate and population metrics.
const (
	Population              Metric = "Population"
	OverallCrimeRatePer100k Metric = "OverallCrimeRatePer100k"

	// Derived per row, never read from the source.
	TotalCrime Metric = "TotalCrime"
	CrimeRate  Metric = "CrimeRate"
)

// Identifier columns.
const (
	ColumnJurisdiction = "Jurisdiction"
	ColumnYear         = "Year"
)

// RateSuffix turns a count column into its per-100k counterpart.
const RateSuffix = "Per100k"

// RateBase is the population base used for normalised rates.
const RateBase = 100000.0

// CrimeTypes lists the count metrics in display order.
var CrimeTypes = []Metric{Murder, Rape, Robbery, AggAssault, BreakAndEnter, LarcenyTheft, MotorVehicleTheft}

// RateOf returns the per-100k metric for a count metric.
func RateOf(m Metric) Metric {
	return Metric(string(m) + RateSuffix)
}

// CountOf strips the per-100k suffix; the second result is false for non-rate metrics.
func CountOf(m Metric) (Metric, bool) {
	s := string(m)
	if !strings.HasSuffix(s, RateSuffix) || m == OverallCrimeRatePer100k {
		return "", false
	}
	return Metric(strings.TrimSuffix(s, RateSuffix)), true
}

// RateTypes lists the per-100k counterparts of CrimeTypes.
func RateTypes() []Metric {
	rates := make([]Metric, len(CrimeTypes))
	for i, m := range CrimeTypes {
		rates[i] = RateOf(m)
	}
	return rates
}

// IsCount reports whether m is one of the seven crime-count metrics.
func IsCount(m Metric) bool {
	for _, c := range CrimeTypes {
		if c == m {
			return true
		}
	}
	return false
}

// TrackedColumns are the columns a row must carry to be kept by the loader.
func TrackedColumns() []string {
	cols := []string{ColumnJurisdiction, ColumnYear, string(Population)}
	for _, m := range CrimeTypes {
		cols = append(cols, string(m))
	}
	return cols
}

// Catalog returns every metric the schema knows without looking at data.
func Catalog() []Metric {
	metrics := append([]Metric{}, CrimeTypes...)
	metrics = append(metrics, RateTypes()...)
	return append(metrics, OverallCrimeRatePer100k, Population, TotalCrime, CrimeRate)
}

// ParseMetrics splits a comma separated list, trimming blanks. It does not validate.
func ParseMetrics(s string) []Metric {
	var out []Metric
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, Metric(part))
		}
	}
	return out
}

// ValidateMetrics checks every metric against the schema.
func ValidateMetrics(schema *Schema, metrics []Metric) error {
	if len(metrics) == 0 {
		return core.ErrNoMetrics
	}
	for _, m := range metrics {
		if !schema.Has(m) {
			return core.NewUnknownMetricError(string(m))
		}
	}
	return nil
}
