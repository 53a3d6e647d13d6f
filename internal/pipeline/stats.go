package pipeline

import (
	"math"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"crimestats/domain/core"
	"crimestats/domain/crime"
)

// DeriveRatePer100k normalises a count to a rate per 100,000 residents.
func DeriveRatePer100k(count, population float64) (float64, error) {
	if population <= 0 || math.IsNaN(population) || math.IsInf(population, 0) {
		return 0, core.NewInvalidPopulationError(population)
	}
	return count * crime.RateBase / population, nil
}

// Strength is the qualitative band of a correlation coefficient.
type Strength string

const (
	StrengthWeak     Strength = "weak"
	StrengthModerate Strength = "moderate"
	StrengthStrong   Strength = "strong"
)

// ClassifyCorrelation bands |r|: below 0.3 weak, below 0.7 moderate, otherwise strong.
func ClassifyCorrelation(r float64) Strength {
	abs := math.Abs(r)
	switch {
	case abs < 0.3:
		return StrengthWeak
	case abs < 0.7:
		return StrengthModerate
	default:
		return StrengthStrong
	}
}

func checkPairs(a, b []float64) error {
	if len(a) != len(b) {
		return core.NewInsufficientDataError("sequences differ in length")
	}
	if len(a) < 2 {
		return core.NewInsufficientDataError("need at least 2 points")
	}
	if stat.Variance(a, nil) == 0 || stat.Variance(b, nil) == 0 {
		return core.NewInsufficientDataError("zero variance")
	}
	return nil
}

// Correlation is the Pearson correlation coefficient of two equal-length sequences.
func Correlation(a, b []float64) (float64, error) {
	if err := checkPairs(a, b); err != nil {
		return 0, err
	}
	r := stat.Correlation(a, b, nil)
	if math.IsNaN(r) {
		return 0, core.NewInsufficientDataError("correlation undefined")
	}
	return math.Max(-1, math.Min(1, r)), nil
}

// Regression is an ordinary least squares fit y = Intercept + Slope*x.
type Regression struct {
	Slope          float64 `json:"slope"`
	Intercept      float64 `json:"intercept"`
	R              float64 `json:"r"`
	RSquared       float64 `json:"r_squared"`
	PValue         float64 `json:"p_value"`
	StdErr         float64 `json:"std_err"`
	InterceptError float64 `json:"intercept_std_err"`
	N              int     `json:"n"`
}

// LinearRegression fits y on x. PValue is the two-sided t-test of a zero slope and
// StdErr is the slope's standard error. With two points the fit is exact and both are 0.
func LinearRegression(x, y []float64) (Regression, error) {
	if err := checkPairs(x, y); err != nil {
		return Regression{}, err
	}
	r, err := Correlation(x, y)
	if err != nil {
		return Regression{}, err
	}

	intercept, slope := stat.LinearRegression(x, y, nil, false)
	n := len(x)
	reg := Regression{
		Slope:     slope,
		Intercept: intercept,
		R:         r,
		RSquared:  r * r,
		N:         n,
	}
	if n == 2 {
		return reg, nil
	}

	meanX := stat.Mean(x, nil)
	var sxx, sse, sumX2 float64
	for i := range x {
		dx := x[i] - meanX
		sxx += dx * dx
		sumX2 += x[i] * x[i]
		resid := y[i] - (intercept + slope*x[i])
		sse += resid * resid
	}

	df := float64(n - 2)
	reg.StdErr = math.Sqrt(sse/df) / math.Sqrt(sxx)
	reg.InterceptError = reg.StdErr * math.Sqrt(sumX2/float64(n))
	if reg.StdErr == 0 {
		return reg, nil
	}

	t := slope / reg.StdErr
	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
	reg.PValue = 2 * dist.Survival(math.Abs(t))
	return reg, nil
}

// Cell is one entry of a correlation matrix; Defined is false when r is undefined.
type Cell struct {
	R       float64 `json:"r"`
	Defined bool    `json:"defined"`
}

// CorrelationMatrix holds pairwise Pearson coefficients over complete observations.
type CorrelationMatrix struct {
	Metrics []crime.Metric `json:"metrics"`
	Cells   [][]Cell       `json:"cells"`
}

// At returns the cell for a metric pair.
func (m *CorrelationMatrix) At(a, b crime.Metric) (Cell, bool) {
	i, j := -1, -1
	for k, metric := range m.Metrics {
		if metric == a {
			i = k
		}
		if metric == b {
			j = k
		}
	}
	if i < 0 || j < 0 {
		return Cell{}, false
	}
	return m.Cells[i][j], true
}

// NewCorrelationMatrix correlates every metric pair. Pairs whose correlation is
// undefined are left with Defined=false rather than failing the matrix.
func NewCorrelationMatrix(records []crime.Record, metrics []crime.Metric) (*CorrelationMatrix, error) {
	if err := crime.ValidateMetrics(crime.DefaultSchema(), metrics); err != nil {
		return nil, err
	}
	n := len(metrics)
	cells := make([][]Cell, n)
	for i := range cells {
		cells[i] = make([]Cell, n)
	}
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			xs, ys := Vectors(records, metrics[i], metrics[j])
			r, err := Correlation(xs, ys)
			if err != nil {
				continue
			}
			cells[i][j] = Cell{R: r, Defined: true}
			cells[j][i] = cells[i][j]
		}
	}
	return &CorrelationMatrix{Metrics: append([]crime.Metric(nil), metrics...), Cells: cells}, nil
}
