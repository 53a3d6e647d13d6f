package analysis

import (
	"fmt"
	"sort"
	"strings"

	"github.com/montanaflynn/stats"

	"crimestats/domain/core"
	"crimestats/domain/crime"
	"crimestats/internal/pipeline"
)

// ThresholdKind selects the reference rate a hotspot must exceed.
type ThresholdKind string

const (
	ThresholdMean   ThresholdKind = "mean"   // unweighted mean of jurisdiction rates
	ThresholdMedian ThresholdKind = "median" // median of jurisdiction rates
	ThresholdFixed  ThresholdKind = "fixed"  // FixedRate per 100k
)

// HotspotPolicy classifies a jurisdiction as a hotspot when its crime rate is strictly
// greater than the threshold: Multiplier times the mean or median rate, or FixedRate.
type HotspotPolicy struct {
	Threshold  ThresholdKind `json:"threshold"`
	Multiplier float64       `json:"multiplier"`
	FixedRate  float64       `json:"fixed_rate"`
}

// DefaultHotspotPolicy flags jurisdictions above the mean rate.
func DefaultHotspotPolicy() HotspotPolicy {
	return HotspotPolicy{Threshold: ThresholdMean, Multiplier: 1}
}

// ParseHotspotPolicy builds a policy from its configuration strings.
func ParseHotspotPolicy(kind string, multiplier, fixed float64) (HotspotPolicy, error) {
	p := HotspotPolicy{Threshold: ThresholdKind(strings.ToLower(kind)), Multiplier: multiplier, FixedRate: fixed}
	switch p.Threshold {
	case "":
		p.Threshold = ThresholdMean
	case ThresholdMean, ThresholdMedian, ThresholdFixed:
	default:
		return HotspotPolicy{}, fmt.Errorf("unknown hotspot threshold %q", kind)
	}
	if p.Multiplier <= 0 {
		p.Multiplier = 1
	}
	if p.Threshold == ThresholdFixed && p.FixedRate <= 0 {
		return HotspotPolicy{}, fmt.Errorf("fixed hotspot threshold needs a positive rate")
	}
	return p, nil
}

// Cutoff computes the threshold rate for a set of jurisdiction rates.
func (p HotspotPolicy) Cutoff(rates []float64) (float64, error) {
	switch p.Threshold {
	case ThresholdFixed:
		return p.FixedRate, nil
	case ThresholdMedian:
		m, err := stats.Median(rates)
		if err != nil {
			return 0, core.NewInsufficientDataError("no rates for a median")
		}
		return m * p.Multiplier, nil
	default:
		m, err := stats.Mean(rates)
		if err != nil {
			return 0, core.NewInsufficientDataError("no rates for a mean")
		}
		return m * p.Multiplier, nil
	}
}

// Hotspot is a jurisdiction's whole-period crime total and rate.
type Hotspot struct {
	Jurisdiction string  `json:"jurisdiction"`
	TotalCrime   float64 `json:"total_crime"`
	Population   float64 `json:"population"` // mean over the period
	CrimeRate    float64 `json:"crime_rate"`
	IsHotspot    bool    `json:"is_hotspot"`
}

// HotspotBreakdown is the summed count of the selected crime types for one jurisdiction.
type HotspotBreakdown struct {
	Jurisdiction string                   `json:"jurisdiction"`
	Counts       map[crime.Metric]float64 `json:"counts"`
}

// HotspotResult ranks jurisdictions by whole-period crime rate.
type HotspotResult struct {
	Policy      HotspotPolicy      `json:"policy"`
	Cutoff      float64            `json:"cutoff"`
	Ranking     []Hotspot          `json:"ranking"` // highest rate first
	Top         []Hotspot          `json:"top"`
	Hotspots    []string           `json:"hotspots"`
	Crimes      []crime.Metric     `json:"crimes,omitempty"`
	Breakdown   []HotspotBreakdown `json:"breakdown,omitempty"`
	TotalCrimes float64            `json:"total_crimes"`
	Section
}

// Hotspots sums TotalCrime per jurisdiction over all years, divides by the mean
// population and ranks the resulting rates. n is clamped to [1, jurisdictions]; crimes
// selects the breakdown for the top n and may be empty.
func Hotspots(t *crime.Table, n int, crimes []crime.Metric, policy HotspotPolicy) (*HotspotResult, error) {
	if err := requireData(t); err != nil {
		return nil, err
	}
	if len(crimes) > 0 {
		if err := validateCrimeTypes(t.Schema, crimes); err != nil {
			return nil, err
		}
	}

	byJurisdiction := crime.GroupSpec{By: crime.GroupByJurisdiction, Func: crime.AggSum}
	totals, err := pipeline.AggregateTable(t, []crime.Metric{crime.TotalCrime}, byJurisdiction)
	if err != nil {
		return nil, err
	}
	byJurisdiction.Func = crime.AggMean
	populations, err := pipeline.AggregateTable(t, []crime.Metric{crime.Population}, byJurisdiction)
	if err != nil {
		return nil, err
	}

	if policy.Threshold == "" {
		policy.Threshold = ThresholdMean
	}
	if policy.Multiplier <= 0 {
		policy.Multiplier = 1
	}
	result := &HotspotResult{Policy: policy, Crimes: crimes}
	for _, e := range totals.Entries {
		total := e.Values[crime.TotalCrime]
		result.TotalCrimes += total

		popEntry, _ := pipeline.Lookup(populations, e.Key)
		pop := popEntry.Values[crime.Population]
		rate, err := pipeline.DeriveRatePer100k(total, pop)
		if err != nil {
			result.warn("%s skipped: %v", e.Key.Jurisdiction, err)
			continue
		}
		result.Ranking = append(result.Ranking, Hotspot{
			Jurisdiction: e.Key.Jurisdiction,
			TotalCrime:   total,
			Population:   pop,
			CrimeRate:    rate,
		})
	}
	if len(result.Ranking) == 0 {
		return nil, core.NewInsufficientDataError("no jurisdiction has a positive population")
	}
	sort.SliceStable(result.Ranking, func(i, j int) bool {
		return result.Ranking[i].CrimeRate > result.Ranking[j].CrimeRate
	})

	rates := make([]float64, len(result.Ranking))
	for i, h := range result.Ranking {
		rates[i] = h.CrimeRate
	}
	result.Cutoff, err = policy.Cutoff(rates)
	if err != nil {
		return nil, err
	}
	result.Hotspots = []string{}
	for i := range result.Ranking {
		if result.Ranking[i].CrimeRate > result.Cutoff {
			result.Ranking[i].IsHotspot = true
			result.Hotspots = append(result.Hotspots, result.Ranking[i].Jurisdiction)
		}
	}

	n = clampTopN(n, len(result.Ranking))
	result.Top = result.Ranking[:n]

	if len(crimes) > 0 {
		top := make(map[string]bool, n)
		for _, h := range result.Top {
			top[h.Jurisdiction] = true
		}
		rows := t.Filter(func(r crime.Record) bool { return top[r.Jurisdiction] })
		sums, err := pipeline.Aggregate(rows, crimes, crime.GroupSpec{By: crime.GroupByJurisdiction, Func: crime.AggSum})
		if err != nil {
			return nil, err
		}
		for _, h := range result.Top {
			entry, _ := pipeline.Lookup(sums, crime.JurisdictionKey(h.Jurisdiction))
			result.Breakdown = append(result.Breakdown, HotspotBreakdown{Jurisdiction: h.Jurisdiction, Counts: entry.Values})
		}
	}

	result.describe()
	return result, nil
}

func (r *HotspotResult) describe() {
	first := r.Ranking[0]
	r.insight("%s has the highest crime rate at %.2f crimes per 100,000 inhabitants.", first.Jurisdiction, first.CrimeRate)
	r.insight("%.0f crimes were recorded across all jurisdictions.", r.TotalCrimes)
	r.insight("%v of %v jurisdictions are above the %s threshold of %.2f per 100,000.",
		len(r.Hotspots), len(r.Ranking), r.Policy.Threshold, r.Cutoff)

	topTotal := 0.0
	for _, h := range r.Top {
		topTotal += h.TotalCrime
	}
	if r.TotalCrimes > 0 {
		r.insight("The top %v jurisdictions account for %.2f%% of all recorded crimes.", len(r.Top), topTotal/r.TotalCrimes*100)
	}
}
