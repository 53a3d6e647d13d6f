package pipeline

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crimestats/domain/core"
	"crimestats/domain/crime"
)

func rec(jurisdiction string, year int, pop int64, values map[crime.Metric]float64) crime.Record {
	return crime.Record{Jurisdiction: jurisdiction, Year: year, Population: pop, Values: values}
}

func fixtureRecords() []crime.Record {
	return []crime.Record{
		rec("Allegany County", 2018, 70000, map[crime.Metric]float64{crime.Murder: 2, crime.Robbery: 30, crime.MurderPer100k: 2.86}),
		rec("Baltimore City", 2018, 600000, map[crime.Metric]float64{crime.Murder: 300, crime.Robbery: 4000, crime.MurderPer100k: 50}),
		rec("Allegany County", 2019, 69000, map[crime.Metric]float64{crime.Murder: 3, crime.Robbery: 25, crime.MurderPer100k: 4.35}),
		rec("Baltimore City", 2019, 595000, map[crime.Metric]float64{crime.Murder: 348, crime.Robbery: 3700, crime.MurderPer100k: 58.5}),
		rec("Carroll County", 2019, 168000, map[crime.Metric]float64{crime.Murder: 0, crime.Robbery: 40, crime.MurderPer100k: 0}),
	}
}

// Two years of one jurisdiction.
func TestAggregateThenChange_TwoYears(t *testing.T) {
	records := []crime.Record{
		rec("JurisdictionX", 2019, 100000, map[crime.Metric]float64{crime.Murder: 10}),
		rec("JurisdictionX", 2020, 100000, map[crime.Metric]float64{crime.Murder: 15}),
	}

	series, err := Aggregate(records, []crime.Metric{crime.Murder}, crime.GroupSpec{By: crime.GroupByYear})
	require.NoError(t, err)
	require.Len(t, series.Entries, 2)
	assert.Equal(t, crime.YearKey(2019), series.Entries[0].Key)
	assert.Equal(t, 10.0, series.Entries[0].Values[crime.Murder])
	assert.Equal(t, 15.0, series.Entries[1].Values[crime.Murder])

	changes, err := CappedPercentChange(series, DefaultChangeCap)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, crime.YearKey(2020), changes[0].Key)
	assert.Equal(t, crime.Murder, changes[0].Metric)
	assert.InDelta(t, 0.5, changes[0].Change, 1e-12)
	assert.False(t, changes[0].Capped)
}

// A zero predecessor yields no change record.
func TestCappedPercentChange_ZeroPredecessorOmitted(t *testing.T) {
	records := []crime.Record{
		rec("X", 2018, 1000, map[crime.Metric]float64{crime.Murder: 0}),
		rec("X", 2019, 1000, map[crime.Metric]float64{crime.Murder: 4}),
		rec("X", 2020, 1000, map[crime.Metric]float64{crime.Murder: 2}),
	}
	series, err := Aggregate(records, []crime.Metric{crime.Murder}, crime.GroupSpec{})
	require.NoError(t, err)

	changes, err := CappedPercentChange(series, DefaultChangeCap)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, crime.YearKey(2020), changes[0].Key)
	assert.InDelta(t, -0.5, changes[0].Change, 1e-12)
	for _, c := range changes {
		assert.False(t, math.IsNaN(c.Change))
		assert.False(t, math.IsInf(c.Change, 0))
	}
}

// Correlation needs two points.
func TestCorrelation_InsufficientData(t *testing.T) {
	_, err := Correlation([]float64{1}, []float64{2})
	assert.ErrorIs(t, err, core.ErrInsufficientData)

	_, err = Correlation(nil, nil)
	assert.ErrorIs(t, err, core.ErrInsufficientData)
}

func TestAggregate_ConservesTotals(t *testing.T) {
	records := fixtureRecords()
	metrics := []crime.Metric{crime.Murder, crime.Robbery}

	for _, by := range []crime.GroupKey{crime.GroupByYear, crime.GroupByJurisdiction} {
		series, err := Aggregate(records, metrics, crime.GroupSpec{By: by, Func: crime.AggSum})
		require.NoError(t, err)
		for _, m := range metrics {
			ungrouped := 0.0
			for _, r := range records {
				ungrouped += r.Values[m]
			}
			assert.InDelta(t, ungrouped, Total(series, m), 1e-9, "metric %s grouped by %s", m, by)
		}
	}
}

func TestAggregate_MeanAndOrdering(t *testing.T) {
	series, err := Aggregate(fixtureRecords(), []crime.Metric{crime.MurderPer100k}, crime.GroupSpec{
		By:    crime.GroupByJurisdiction,
		Func:  crime.AggMean,
		Order: crime.OrderValueDesc,
	})
	require.NoError(t, err)
	require.Len(t, series.Entries, 3)
	assert.Equal(t, "Baltimore City", series.Entries[0].Key.Jurisdiction)
	assert.InDelta(t, 54.25, series.Entries[0].Values[crime.MurderPer100k], 1e-9)
	assert.Equal(t, "Carroll County", series.Entries[2].Key.Jurisdiction)
	assert.Equal(t, 2, series.Entries[0].Count)

	byKey, err := Aggregate(fixtureRecords(), []crime.Metric{crime.Murder}, crime.GroupSpec{By: crime.GroupByJurisdiction})
	require.NoError(t, err)
	assert.Equal(t, "Allegany County", byKey.Entries[0].Key.Jurisdiction)
	assert.Equal(t, "Carroll County", byKey.Entries[2].Key.Jurisdiction)
}

func TestAggregate_Errors(t *testing.T) {
	_, err := Aggregate(fixtureRecords(), []crime.Metric{"Arson"}, crime.GroupSpec{})
	assert.ErrorIs(t, err, core.ErrUnknownMetric)

	_, err = Aggregate(fixtureRecords(), nil, crime.GroupSpec{})
	assert.ErrorIs(t, err, core.ErrNoMetrics)

	series, err := Aggregate(nil, []crime.Metric{crime.Murder}, crime.GroupSpec{})
	require.NoError(t, err)
	assert.Equal(t, 0, series.Len())
}

func TestAggregate_DerivedMetrics(t *testing.T) {
	records := []crime.Record{
		rec("X", 2020, 200000, map[crime.Metric]float64{crime.Murder: 10, crime.Robbery: 90}),
		rec("Y", 2020, 0, map[crime.Metric]float64{crime.Murder: 1}),
	}
	series, err := Aggregate(records, []crime.Metric{crime.TotalCrime, crime.CrimeRate}, crime.GroupSpec{Func: crime.AggMean})
	require.NoError(t, err)
	require.Len(t, series.Entries, 1)
	assert.InDelta(t, 50.5, series.Entries[0].Values[crime.TotalCrime], 1e-9)
	// Y has no rate because its population is zero.
	assert.InDelta(t, 50.0, series.Entries[0].Values[crime.CrimeRate], 1e-9)
}

func TestCappedPercentChange_Bounds(t *testing.T) {
	records := []crime.Record{
		rec("X", 2018, 1, map[crime.Metric]float64{crime.Rape: 1}),
		rec("X", 2019, 1, map[crime.Metric]float64{crime.Rape: 500}),
		rec("X", 2020, 1, map[crime.Metric]float64{crime.Rape: 1}),
		rec("X", 2021, 1, map[crime.Metric]float64{crime.Rape: 3}),
	}
	series, err := Aggregate(records, []crime.Metric{crime.Rape}, crime.GroupSpec{})
	require.NoError(t, err)

	const cap = 2.0
	changes, err := CappedPercentChange(series, cap)
	require.NoError(t, err)
	require.Len(t, changes, 3)

	for _, c := range changes {
		assert.GreaterOrEqual(t, c.Change, -cap)
		assert.LessOrEqual(t, c.Change, cap)
	}
	assert.Equal(t, cap, changes[0].Change)
	assert.True(t, changes[0].Capped)
	assert.InDelta(t, -0.998, changes[1].Change, 1e-12)
	assert.False(t, changes[1].Capped)
	assert.Equal(t, cap, changes[2].Change)

	for _, c := range changes {
		assert.NotEqual(t, crime.YearKey(2018), c.Key, "first period never yields a change")
	}
}

func TestCappedPercentChange_Errors(t *testing.T) {
	series := &crime.Series{Spec: crime.GroupSpec{By: crime.GroupByYear, Order: crime.OrderKeyAsc}}
	_, err := CappedPercentChange(series, 0)
	assert.ErrorIs(t, err, core.ErrInvalidCap)

	ranked := &crime.Series{Spec: crime.GroupSpec{By: crime.GroupByYear, Order: crime.OrderValueDesc}}
	_, err = CappedPercentChange(ranked, 1)
	assert.ErrorIs(t, err, core.ErrUnorderedSeries)
}

func TestCappedPercentChange_RejectsJurisdictionGrouping(t *testing.T) {
	records := []crime.Record{
		{Jurisdiction: "A", Year: 2020, Population: 1000, Values: map[crime.Metric]float64{crime.Murder: 1}},
		{Jurisdiction: "B", Year: 2020, Population: 1000, Values: map[crime.Metric]float64{crime.Murder: 3}},
	}
	series, err := Aggregate(records, []crime.Metric{crime.Murder}, crime.GroupSpec{By: crime.GroupByJurisdiction})
	require.NoError(t, err)
	require.Equal(t, crime.OrderKeyAsc, series.Spec.Order)

	changes, err := CappedPercentChange(series, DefaultChangeCap)
	assert.ErrorIs(t, err, core.ErrUnorderedSeries)
	assert.Empty(t, changes)
}

func TestRankChanges(t *testing.T) {
	changes := []crime.ChangeRecord{
		{Key: crime.YearKey(2019), Metric: crime.Murder, Change: 0.2},
		{Key: crime.YearKey(2020), Metric: crime.Murder, Change: -0.4},
		{Key: crime.YearKey(2019), Metric: crime.Rape, Change: 0.2},
		{Key: crime.YearKey(2020), Metric: crime.Rape, Change: 0.9},
		{Key: crime.YearKey(2021), Metric: crime.Rape, Change: -0.1},
		{Key: crime.YearKey(2021), Metric: crime.Murder, Change: 0},
	}

	up, down, err := RankChanges(changes, nil, 2)
	require.NoError(t, err)
	require.Len(t, up, 2)
	assert.Equal(t, 0.9, up[0].Change)
	// stable tie: Murder 2019 precedes Rape 2019
	assert.Equal(t, crime.Murder, up[1].Metric)
	require.Len(t, down, 2)
	assert.Equal(t, -0.4, down[0].Change)
	assert.Equal(t, -0.1, down[1].Change)

	for _, u := range up {
		for _, d := range down {
			assert.NotEqual(t, u, d)
		}
	}

	up, down, err = RankChanges(changes, []crime.Metric{crime.Rape}, 10)
	require.NoError(t, err)
	assert.Len(t, up, 2)
	assert.Len(t, down, 1)
	assert.LessOrEqual(t, len(up)+len(down), len(changes))

	_, _, err = RankChanges(changes, nil, 0)
	assert.ErrorIs(t, err, core.ErrInvalidTopN)
}

func TestDeriveRatePer100k(t *testing.T) {
	rate, err := DeriveRatePer100k(50, 200000)
	require.NoError(t, err)
	assert.InDelta(t, 25.0, rate, 1e-12)

	rate, err = DeriveRatePer100k(9, 1000)
	require.NoError(t, err)
	assert.Equal(t, 900.0, rate)

	prev := -1.0
	for count := 0.0; count < 100; count += 7 {
		r, err := DeriveRatePer100k(count, 12345)
		require.NoError(t, err)
		assert.Greater(t, r, prev)
		prev = r
	}

	_, err = DeriveRatePer100k(10, 0)
	assert.ErrorIs(t, err, core.ErrInvalidPopulation)
	_, err = DeriveRatePer100k(10, -5)
	assert.ErrorIs(t, err, core.ErrInvalidPopulation)
}

func TestCorrelation(t *testing.T) {
	x := []float64{1, 3, 2, 8, 5}
	y := []float64{2, 1, 7, 3, 9}

	r, err := Correlation(x, x)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, r, 1e-12)

	rxy, err := Correlation(x, y)
	require.NoError(t, err)
	ryx, err := Correlation(y, x)
	require.NoError(t, err)
	assert.InDelta(t, rxy, ryx, 1e-12)
	assert.True(t, rxy >= -1 && rxy <= 1)

	_, err = Correlation([]float64{4, 4, 4}, []float64{1, 2, 3})
	assert.ErrorIs(t, err, core.ErrInsufficientData)
	_, err = Correlation([]float64{1, 2}, []float64{1, 2, 3})
	assert.ErrorIs(t, err, core.ErrInsufficientData)
}

func TestClassifyCorrelation(t *testing.T) {
	assert.Equal(t, StrengthWeak, ClassifyCorrelation(0.1))
	assert.Equal(t, StrengthWeak, ClassifyCorrelation(-0.29))
	assert.Equal(t, StrengthModerate, ClassifyCorrelation(-0.5))
	assert.Equal(t, StrengthStrong, ClassifyCorrelation(0.95))
}

func TestLinearRegression(t *testing.T) {
	x := []float64{1, 2, 3, 4, 5, 6}
	y := []float64{3.1, 4.9, 7.2, 8.8, 11.1, 12.9}

	reg, err := LinearRegression(x, y)
	require.NoError(t, err)
	assert.InDelta(t, 1.977, reg.Slope, 0.01)
	assert.InDelta(t, 1.08, reg.Intercept, 0.01)
	assert.Greater(t, reg.R, 0.99)
	assert.Less(t, reg.PValue, 0.001)
	assert.Greater(t, reg.StdErr, 0.0)
	assert.Equal(t, 6, reg.N)

	exact, err := LinearRegression([]float64{0, 1, 2}, []float64{1, 3, 5})
	require.NoError(t, err)
	assert.InDelta(t, 2.0, exact.Slope, 1e-12)
	assert.InDelta(t, 0.0, exact.StdErr, 1e-9)

	noisy, err := LinearRegression([]float64{1, 2, 3, 4, 5, 6, 7, 8}, []float64{5, 1, 6, 2, 5, 3, 6, 1})
	require.NoError(t, err)
	assert.Greater(t, noisy.PValue, 0.05)
	assert.LessOrEqual(t, noisy.PValue, 1.0)

	_, err = LinearRegression([]float64{1}, []float64{1})
	assert.ErrorIs(t, err, core.ErrInsufficientData)
}

func TestCorrelationMatrix(t *testing.T) {
	records := fixtureRecords()
	m, err := NewCorrelationMatrix(records, []crime.Metric{crime.Population, crime.MurderPer100k, crime.Murder})
	require.NoError(t, err)
	require.Len(t, m.Cells, 3)

	diag, ok := m.At(crime.Murder, crime.Murder)
	require.True(t, ok)
	assert.InDelta(t, 1.0, diag.R, 1e-12)

	ab, _ := m.At(crime.Population, crime.Murder)
	ba, _ := m.At(crime.Murder, crime.Population)
	assert.Equal(t, ab, ba)
	assert.True(t, ab.Defined)

	_, err = NewCorrelationMatrix(records, []crime.Metric{"Arson"})
	assert.ErrorIs(t, err, core.ErrUnknownMetric)
}

func TestFormatChange(t *testing.T) {
	assert.Equal(t, ">1000%", FormatChange(10, 10))
	assert.Equal(t, "<-1000%", FormatChange(-10, 10))
	assert.Equal(t, "50.00%", FormatChange(0.5, 10))
	assert.Equal(t, "-12.50%", FormatChange(-0.125, 10))
	assert.Equal(t, "N/A", FormatChange(math.NaN(), 10))
}

func TestMeltAndSeriesJSON(t *testing.T) {
	series, err := Aggregate(fixtureRecords(), []crime.Metric{crime.Murder, crime.Robbery}, crime.GroupSpec{})
	require.NoError(t, err)

	rows := Melt(series)
	require.Len(t, rows, 4)
	assert.Equal(t, crime.Murder, rows[0].Metric)
	assert.Equal(t, crime.Robbery, rows[3].Metric)

	data, err := json.Marshal(series)
	require.NoError(t, err)
	var back crime.Series
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, series.Entries[1].Key, back.Entries[1].Key)
	assert.True(t, back.Entries[1].Key.IsYear)
}
