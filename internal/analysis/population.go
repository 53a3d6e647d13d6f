package analysis

import (
	"fmt"
	"math"

	"crimestats/domain/crime"
	"crimestats/internal/pipeline"
)

// CorrelationResult relates population to per-100k crime rates.
type CorrelationResult struct {
	Matrix     *pipeline.CorrelationMatrix `json:"matrix"`
	Metric     crime.Metric                `json:"metric"`
	R          *float64                    `json:"r,omitempty"`
	Strength   pipeline.Strength           `json:"strength,omitempty"`
	Regression *pipeline.Regression        `json:"regression,omitempty"`
	Top        []JurisdictionValue         `json:"top"`
	Section
}

// JurisdictionValue is one jurisdiction's mean of a metric.
type JurisdictionValue struct {
	Jurisdiction string  `json:"jurisdiction"`
	Value        float64 `json:"value"`
}

// CorrelationMetrics are the columns of the population correlation matrix.
func CorrelationMetrics() []crime.Metric {
	return append([]crime.Metric{crime.Population}, crime.RateTypes()...)
}

// PopulationCorrelation builds the correlation matrix of population and the seven rates,
// then details one rate: Pearson r, its strength band, an OLS fit against population
// and the five jurisdictions with the highest mean rate.
func PopulationCorrelation(t *crime.Table, metric crime.Metric) (*CorrelationResult, error) {
	if err := requireData(t); err != nil {
		return nil, err
	}
	if metric == "" {
		metric = crime.MurderPer100k
	}
	if err := crime.ValidateMetrics(t.Schema, []crime.Metric{metric}); err != nil {
		return nil, err
	}

	result := &CorrelationResult{Metric: metric}

	var columns []crime.Metric
	for _, m := range CorrelationMetrics() {
		if t.Schema.Has(m) {
			columns = append(columns, m)
		} else {
			result.warn("%s is not in the source and is left out of the matrix", m)
		}
	}
	matrix, err := pipeline.NewCorrelationMatrix(t.Records, columns)
	if err != nil {
		return nil, err
	}
	result.Matrix = matrix
	for i, a := range matrix.Metrics {
		for j := i + 1; j < len(matrix.Metrics); j++ {
			if !matrix.Cells[i][j].Defined {
				result.warn("correlation of %s and %s is undefined", a, matrix.Metrics[j])
			}
		}
	}

	x, y := pipeline.Vectors(t.Records, crime.Population, metric)
	if r, err := pipeline.Correlation(x, y); err != nil {
		result.warn("correlation of Population and %s: %v", metric, err)
	} else {
		result.R = &r
		result.Strength = pipeline.ClassifyCorrelation(r)
		if reg, err := pipeline.LinearRegression(x, y); err == nil {
			result.Regression = &reg
		} else {
			result.warn("regression of %s on Population: %v", metric, err)
		}
	}

	ranked, err := pipeline.AggregateTable(t, []crime.Metric{metric},
		crime.GroupSpec{By: crime.GroupByJurisdiction, Func: crime.AggMean, Order: crime.OrderValueDesc})
	if err != nil {
		return nil, err
	}
	for _, e := range ranked.Entries {
		if len(result.Top) == 5 {
			break
		}
		if v, ok := e.Values[metric]; ok {
			result.Top = append(result.Top, JurisdictionValue{Jurisdiction: e.Key.Jurisdiction, Value: v})
		}
	}

	result.describe()
	return result, nil
}

func (r *CorrelationResult) describe() {
	if r.R != nil {
		r.insight("The correlation coefficient between Population and %s is %.2f, a %s correlation.",
			r.Metric, *r.R, r.Strength)
	}
	if r.Regression != nil && r.Regression.N > 2 {
		significance := "not statistically significant"
		if r.Regression.PValue < 0.05 {
			significance = "statistically significant"
		}
		r.insight("Each additional 100,000 residents is associated with a change of %.3f in %s (p = %s, %s).",
			r.Regression.Slope*crime.RateBase, r.Metric, formatP(r.Regression.PValue), significance)
	}

	if r.Matrix != nil {
		var strongest crime.Metric
		best := -1.0
		for j, m := range r.Matrix.Metrics {
			if m == crime.Population {
				continue
			}
			cell, ok := r.Matrix.At(crime.Population, m)
			if !ok || !cell.Defined {
				continue
			}
			if abs := math.Abs(cell.R); abs > best {
				best, strongest = abs, r.Matrix.Metrics[j]
			}
		}
		if strongest != "" {
			r.insight("%s is the rate most strongly correlated with population (|r| = %.2f).", strongest, best)
		}
	}

	if len(r.Top) > 0 {
		r.insight("%s has the highest mean %s at %.2f.", r.Top[0].Jurisdiction, r.Metric, r.Top[0].Value)
	}
	r.insight("Correlation does not imply causation; other factors likely shape these rates.")
}

func formatP(p float64) string {
	if p < 0.001 {
		return "< 0.001"
	}
	return fmt.Sprintf("%.3f", p)
}
