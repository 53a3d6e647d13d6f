package analysis

import (
	"crimestats/domain/core"
	"crimestats/domain/crime"
	"crimestats/internal/pipeline"
)

// JurisdictionRate is a jurisdiction's mean per-row crime rate, population and total crime.
type JurisdictionRate struct {
	Jurisdiction string  `json:"jurisdiction"`
	CrimeRate    float64 `json:"crime_rate"`
	Population   float64 `json:"population"`
	TotalCrime   float64 `json:"total_crime"`
}

// GeographyResult compares jurisdictions by average crime rate.
type GeographyResult struct {
	Ranking      []JurisdictionRate `json:"ranking"` // highest rate first
	Top          []JurisdictionRate `json:"top"`
	Bottom       []JurisdictionRate `json:"bottom"`
	Jurisdiction string             `json:"jurisdiction"`
	Breakdown    []MetricValue      `json:"breakdown"` // mean count per crime type
	RateSeries   []YearValue        `json:"rate_series"`
	Section
}

// Geography ranks jurisdictions by mean CrimeRate and details one jurisdiction
// (the highest-rate one when jurisdiction is empty). n is clamped to the number of
// jurisdictions.
func Geography(t *crime.Table, n int, jurisdiction string) (*GeographyResult, error) {
	if err := requireData(t); err != nil {
		return nil, err
	}
	result := &GeographyResult{}

	skipped := 0
	for _, r := range t.Records {
		if r.Population <= 0 {
			skipped++
		}
	}
	if skipped > 0 {
		result.warn("%v rows with a non-positive population have no crime rate", skipped)
	}

	metrics := []crime.Metric{crime.CrimeRate, crime.Population, crime.TotalCrime}
	spec := crime.GroupSpec{By: crime.GroupByJurisdiction, Func: crime.AggMean, Order: crime.OrderValueDesc}
	series, err := pipeline.AggregateTable(t, metrics, spec)
	if err != nil {
		return nil, err
	}

	for _, e := range series.Entries {
		rate, ok := e.Values[crime.CrimeRate]
		if !ok {
			result.warn("%s has no rows with a positive population", e.Key.Jurisdiction)
			continue
		}
		result.Ranking = append(result.Ranking, JurisdictionRate{
			Jurisdiction: e.Key.Jurisdiction,
			CrimeRate:    rate,
			Population:   e.Values[crime.Population],
			TotalCrime:   e.Values[crime.TotalCrime],
		})
	}
	if len(result.Ranking) == 0 {
		return nil, core.NewInsufficientDataError("no jurisdiction has a crime rate")
	}

	n = clampTopN(n, len(result.Ranking))
	result.Top = result.Ranking[:n]
	result.Bottom = result.Ranking[len(result.Ranking)-n:]

	if jurisdiction == "" {
		jurisdiction = result.Ranking[0].Jurisdiction
	}
	rows := t.Filter(func(r crime.Record) bool { return r.Jurisdiction == jurisdiction })
	if len(rows) == 0 {
		return nil, core.NewUnknownJurisdictionError(jurisdiction)
	}
	result.Jurisdiction = jurisdiction

	breakdown, err := pipeline.Aggregate(rows, crime.CrimeTypes, crime.GroupSpec{By: crime.GroupByJurisdiction, Func: crime.AggMean})
	if err != nil {
		return nil, err
	}
	for _, m := range crime.CrimeTypes {
		result.Breakdown = append(result.Breakdown, MetricValue{Metric: m, Value: breakdown.Entries[0].Values[m]})
	}

	overTime, err := pipeline.Aggregate(rows, []crime.Metric{crime.CrimeRate}, crime.GroupSpec{By: crime.GroupByYear, Func: crime.AggMean})
	if err != nil {
		return nil, err
	}
	result.RateSeries = yearSeries(overTime, crime.CrimeRate)

	result.describe()
	return result, nil
}

func (r *GeographyResult) describe() {
	highest, lowest := r.Ranking[0], r.Ranking[len(r.Ranking)-1]
	r.insight("%s has the highest average crime rate at %.2f crimes per 100,000 residents.",
		highest.Jurisdiction, highest.CrimeRate)
	r.insight("%s has the lowest average crime rate at %.2f crimes per 100,000 residents.",
		lowest.Jurisdiction, lowest.CrimeRate)

	if lowest.CrimeRate > 0 {
		r.insight("The highest rate is %.1f times the lowest.", highest.CrimeRate/lowest.CrimeRate)
	}

	var rates, pops []float64
	for _, j := range r.Ranking {
		rates = append(rates, j.CrimeRate)
		pops = append(pops, j.Population)
	}
	if corr, err := pipeline.Correlation(pops, rates); err == nil {
		r.insight("Across jurisdictions, average population and crime rate show a %s correlation (r = %.2f).",
			pipeline.ClassifyCorrelation(corr), corr)
	}

	if len(r.RateSeries) >= 2 {
		first, last := r.RateSeries[0], r.RateSeries[len(r.RateSeries)-1]
		if change, ok := pipeline.PercentChange(first.Value, last.Value); ok {
			r.insight("In %s the crime rate changed by %s from %s to %s.", r.Jurisdiction, percent(change),
				yearLabel(first.Year), yearLabel(last.Year))
		}
	}
}
