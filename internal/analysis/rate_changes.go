package analysis

import (
	"crimestats/domain/core"
	"crimestats/domain/crime"
	"crimestats/internal/pipeline"
)

// LabeledChange is a change record with its display label, e.g. ">1000%".
type LabeledChange struct {
	crime.ChangeRecord
	Label string `json:"label"`
}

// RateChangesResult holds capped yearly changes of the crime-type counts.
type RateChangesResult struct {
	Cap       float64              `json:"cap"`
	Selected  []crime.Metric       `json:"selected"`
	All       []crime.ChangeRecord `json:"all"`     // every crime type, for download
	Changes   []crime.ChangeRecord `json:"changes"` // selected crime types
	Increases []LabeledChange      `json:"increases"`
	Decreases []LabeledChange      `json:"decreases"`
	Section
}

// RateChanges sums each crime type per year, computes capped period-over-period changes
// and ranks the topN largest increases and decreases among the selected types.
func RateChanges(t *crime.Table, selected []crime.Metric, topN int, cap float64) (*RateChangesResult, error) {
	if err := requireData(t); err != nil {
		return nil, err
	}
	if len(selected) == 0 {
		return nil, core.ErrNoMetrics
	}
	if err := validateCrimeTypes(t.Schema, selected); err != nil {
		return nil, err
	}

	series, err := pipeline.AggregateTable(t, crime.CrimeTypes,
		crime.GroupSpec{By: crime.GroupByYear, Func: crime.AggSum, Order: crime.OrderKeyAsc})
	if err != nil {
		return nil, err
	}
	all, err := pipeline.CappedPercentChange(series, cap)
	if err != nil {
		return nil, err
	}
	increases, decreases, err := pipeline.RankChanges(all, selected, topN)
	if err != nil {
		return nil, err
	}

	result := &RateChangesResult{
		Cap:       cap,
		Selected:  append([]crime.Metric(nil), selected...),
		All:       all,
		Changes:   pipeline.FilterChanges(all, selected),
		Increases: label(increases, cap),
		Decreases: label(decreases, cap),
	}

	for _, m := range selected {
		for i := 1; i < series.Len(); i++ {
			if series.Entries[i-1].Values[m] == 0 {
				result.warn("%s change for %s omitted: previous year's count is zero", m, series.Entries[i].Key)
			}
		}
	}

	result.describe()
	return result, nil
}

func label(changes []crime.ChangeRecord, cap float64) []LabeledChange {
	out := make([]LabeledChange, len(changes))
	for i, c := range changes {
		out[i] = LabeledChange{ChangeRecord: c, Label: pipeline.FormatChange(c.Change, cap)}
	}
	return out
}

func (r *RateChangesResult) describe() {
	if len(r.Increases) > 0 {
		top := r.Increases[0]
		r.insight("The largest increase was %s in %s (%s).", top.Metric, top.Key, top.Label)
	}
	if len(r.Decreases) > 0 {
		top := r.Decreases[0]
		r.insight("The largest decrease was %s in %s (%s).", top.Metric, top.Key, top.Label)
	}

	capped := 0
	for _, c := range r.Changes {
		if c.Capped {
			capped++
		}
	}
	if capped > 0 {
		r.insight("%v changes exceeded the ±%.0f%% cap and are shown at the bound.", capped, r.Cap*100)
	}
	if len(r.Changes) == 0 {
		r.insight("No year-over-year changes could be computed for the selected crime types.")
	}
}
