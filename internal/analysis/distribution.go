package analysis

import (
	"sort"

	"crimestats/domain/core"
	"crimestats/domain/crime"
	"crimestats/internal/pipeline"
)

// TypeShare is one crime type's count in a year and its percent of that year's total.
type TypeShare struct {
	Metric  crime.Metric `json:"metric"`
	Count   float64      `json:"count"`
	Percent float64      `json:"percent"`
	Defined bool         `json:"defined"`
}

// DistributionResult is the count distribution of crime types over the years.
type DistributionResult struct {
	Selected   []crime.Metric  `json:"selected"`
	Counts     []crime.LongRow `json:"counts"` // selected types, summed per year
	Totals     []YearValue     `json:"totals"` // all seven types, summed per year
	Year       int             `json:"year"`
	YearTotal  float64         `json:"year_total"`
	Breakdown  []TypeShare     `json:"breakdown"`
	Focus      crime.Metric    `json:"focus"`
	FocusTrend []YearValue     `json:"focus_trend"`
	Section
}

// Distribution sums crime counts per year. year selects the breakdown (0 for the latest
// year); focus selects the single-type trend (empty for the first selected type).
func Distribution(t *crime.Table, selected []crime.Metric, year int, focus crime.Metric) (*DistributionResult, error) {
	if err := requireData(t); err != nil {
		return nil, err
	}
	if err := validateCrimeTypes(t.Schema, selected); err != nil {
		return nil, err
	}
	if focus == "" {
		focus = selected[0]
	}
	if err := validateCrimeTypes(t.Schema, []crime.Metric{focus}); err != nil {
		return nil, err
	}

	spec := crime.GroupSpec{By: crime.GroupByYear, Func: crime.AggSum, Order: crime.OrderKeyAsc}
	series, err := pipeline.AggregateTable(t, crime.CrimeTypes, spec)
	if err != nil {
		return nil, err
	}

	years := t.Years()
	if year == 0 {
		year = years[len(years)-1]
	}
	entry, ok := pipeline.Lookup(series, crime.YearKey(year))
	if !ok {
		return nil, core.NewUnknownYearError(year)
	}

	result := &DistributionResult{
		Selected: append([]crime.Metric(nil), selected...),
		Year:     year,
		Focus:    focus,
	}

	want := make(map[crime.Metric]bool, len(selected))
	for _, m := range selected {
		want[m] = true
	}
	for _, row := range pipeline.Melt(series) {
		if want[row.Metric] {
			result.Counts = append(result.Counts, row)
		}
	}

	result.Totals = make([]YearValue, 0, series.Len())
	for _, e := range series.Entries {
		total := 0.0
		for _, m := range crime.CrimeTypes {
			total += e.Values[m]
		}
		result.Totals = append(result.Totals, YearValue{Year: e.Key.Year, Value: total})
	}

	for _, m := range crime.CrimeTypes {
		result.YearTotal += entry.Values[m]
	}
	for _, m := range crime.CrimeTypes {
		share := TypeShare{Metric: m, Count: entry.Values[m]}
		if result.YearTotal > 0 {
			share.Percent = share.Count / result.YearTotal * 100
			share.Defined = true
		}
		result.Breakdown = append(result.Breakdown, share)
	}
	if result.YearTotal == 0 {
		result.warn("no crimes recorded in %s; shares are undefined", yearLabel(year))
	}

	result.FocusTrend = yearSeries(series, focus)

	result.describe()
	return result, nil
}

func (r *DistributionResult) describe() {
	r.insight("%.0f crimes were reported in %s.", r.YearTotal, yearLabel(r.Year))

	shares := append([]TypeShare(nil), r.Breakdown...)
	sort.SliceStable(shares, func(i, j int) bool { return shares[i].Count > shares[j].Count })
	if len(shares) > 0 && shares[0].Defined {
		r.insight("%s was the most common crime type in %s at %.2f%% of the total.",
			shares[0].Metric, yearLabel(r.Year), shares[0].Percent)
	}

	property := 0.0
	for _, s := range r.Breakdown {
		switch s.Metric {
		case crime.BreakAndEnter, crime.LarcenyTheft, crime.MotorVehicleTheft:
			property += s.Percent
		}
	}
	if r.YearTotal > 0 {
		r.insight("Property crimes made up %.2f%% of reported crimes in %s.", property, yearLabel(r.Year))
	}

	if len(r.FocusTrend) >= 2 {
		first, last := r.FocusTrend[0], r.FocusTrend[len(r.FocusTrend)-1]
		if change, ok := pipeline.PercentChange(first.Value, last.Value); ok {
			r.insight("%s counts changed by %s from %s to %s.", r.Focus, percent(change),
				yearLabel(first.Year), yearLabel(last.Year))
		}
	}
}
