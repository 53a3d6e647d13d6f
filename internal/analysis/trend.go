package analysis

import (
	"crimestats/domain/crime"
	"crimestats/internal/pipeline"
)

// TrendPoint is the mean overall rate of one year and its change from the previous year.
type TrendPoint struct {
	Year   int      `json:"year"`
	Rate   float64  `json:"rate"`
	Change *float64 `json:"change,omitempty"` // fraction; nil for the first year or a zero predecessor
}

// TrendResult is the overall and per-type crime rate trend.
type TrendResult struct {
	Metric        crime.Metric  `json:"metric"`
	Points        []TrendPoint  `json:"points"`
	FirstYear     int           `json:"first_year"`
	LastYear      int           `json:"last_year"`
	FirstRate     float64       `json:"first_rate"`
	LastRate      float64       `json:"last_rate"`
	OverallChange *float64      `json:"overall_change,omitempty"`
	Specific      *crime.Series `json:"specific,omitempty"`
	Section
}

// Trend averages the overall crime rate per 100k by year, with year-over-year changes,
// and the mean trend of each requested rate metric.
func Trend(t *crime.Table, rates []crime.Metric) (*TrendResult, error) {
	if err := requireData(t); err != nil {
		return nil, err
	}
	result := &TrendResult{Metric: crime.OverallCrimeRatePer100k}
	if !t.Schema.Has(crime.OverallCrimeRatePer100k) {
		result.Metric = crime.CrimeRate
		result.warn("%s is not in the source; using the rate derived from counts", crime.OverallCrimeRatePer100k)
	}

	spec := crime.GroupSpec{By: crime.GroupByYear, Func: crime.AggMean, Order: crime.OrderKeyAsc}
	series, err := pipeline.AggregateTable(t, []crime.Metric{result.Metric}, spec)
	if err != nil {
		return nil, err
	}

	points := yearSeries(series, result.Metric)
	if len(points) == 0 {
		result.warn("no year has a %s value", result.Metric)
		result.Points = []TrendPoint{}
		return result, nil
	}

	result.Points = make([]TrendPoint, len(points))
	for i, p := range points {
		result.Points[i] = TrendPoint{Year: p.Year, Rate: p.Value}
		if i == 0 {
			continue
		}
		if change, ok := pipeline.PercentChange(points[i-1].Value, p.Value); ok {
			c := change
			result.Points[i].Change = &c
		} else {
			result.warn("change for %s omitted: previous year's rate is zero", yearLabel(p.Year))
		}
	}

	first, last := points[0], points[len(points)-1]
	result.FirstYear, result.FirstRate = first.Year, first.Value
	result.LastYear, result.LastRate = last.Year, last.Value
	if change, ok := pipeline.PercentChange(first.Value, last.Value); ok {
		result.OverallChange = &change
	}

	if len(rates) > 0 {
		specific, err := pipeline.AggregateTable(t, rates, spec)
		if err != nil {
			return nil, err
		}
		result.Specific = specific
	}

	result.describe()
	return result, nil
}

func (r *TrendResult) describe() {
	if r.OverallChange != nil {
		direction := "rose"
		if *r.OverallChange < 0 {
			direction = "fell"
		}
		r.insight("The mean crime rate %s from %.2f in %s to %.2f per 100,000 in %s (%s).",
			direction, r.FirstRate, yearLabel(r.FirstYear), r.LastRate, yearLabel(r.LastYear), percent(*r.OverallChange))
	}

	var up, down *TrendPoint
	increases := 0
	for i := range r.Points {
		p := &r.Points[i]
		if p.Change == nil {
			continue
		}
		if *p.Change > 0 {
			increases++
		}
		if up == nil || *p.Change > *up.Change {
			up = p
		}
		if down == nil || *p.Change < *down.Change {
			down = p
		}
	}
	if up != nil && *up.Change > 0 {
		r.insight("The sharpest yearly increase was in %s (%s).", yearLabel(up.Year), percent(*up.Change))
	}
	if down != nil && *down.Change < 0 {
		r.insight("The sharpest yearly decrease was in %s (%s).", yearLabel(down.Year), percent(*down.Change))
	}
	if n := len(r.Points) - 1; n > 0 {
		r.insight("The rate increased in %v of %v year-over-year comparisons.", increases, n)
	}

	if r.Specific == nil {
		return
	}
	for _, m := range r.Specific.Metrics {
		points := yearSeries(r.Specific, m)
		if len(points) < 2 {
			continue
		}
		if change, ok := pipeline.PercentChange(points[0].Value, points[len(points)-1].Value); ok {
			r.insight("%s changed by %s between %s and %s.", m, percent(change),
				yearLabel(points[0].Year), yearLabel(points[len(points)-1].Year))
		}
	}
}
