package testkit

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"math/rand"
	"strconv"

	"crimestats/domain/core"
	"crimestats/domain/crime"
)

// CrimeGeneratorConfig configures the synthetic crime table generator
type CrimeGeneratorConfig struct {
	Jurisdictions []string `json:"jurisdictions"`
	StartYear     int      `json:"start_year"`
	EndYear       int      `json:"end_year"`
	MinPopulation int64    `json:"min_population"`
	MaxPopulation int64    `json:"max_population"`
	// BaseRate is the mean total crime per 100k residents.
	BaseRate float64 `json:"base_rate"`
	// YearlyDrift is the mean fractional change in crime from one year to the next.
	YearlyDrift float64 `json:"yearly_drift"`
	Seed        int64   `json:"seed"`
}

// DefaultCrimeConfig returns sensible defaults for crime data generation
func DefaultCrimeConfig() CrimeGeneratorConfig {
	return CrimeGeneratorConfig{
		Jurisdictions: []string{
			"Allegany County", "Anne Arundel County", "Baltimore City", "Baltimore County",
			"Calvert County", "Caroline County", "Carroll County", "Cecil County",
			"Charles County", "Dorchester County", "Frederick County", "Garrett County",
		},
		StartYear:     2010,
		EndYear:       2020,
		MinPopulation: 20000,
		MaxPopulation: 800000,
		BaseRate:      3000,
		YearlyDrift:   -0.02,
		Seed:          42,
	}
}

// crime type mix as a share of total crime
var crimeMix = map[crime.Metric]float64{
	crime.Murder:            0.002,
	crime.Rape:              0.010,
	crime.Robbery:           0.060,
	crime.AggAssault:        0.120,
	crime.BreakAndEnter:     0.180,
	crime.LarcenyTheft:      0.560,
	crime.MotorVehicleTheft: 0.068,
}

// CrimeDataGenerator generates a deterministic jurisdiction-by-year crime table
type CrimeDataGenerator struct {
	config CrimeGeneratorConfig
	rng    *rand.Rand
}

// NewCrimeDataGenerator creates a new crime data generator
func NewCrimeDataGenerator(config CrimeGeneratorConfig) *CrimeDataGenerator {
	return &CrimeDataGenerator{
		config: config,
		rng:    rand.New(rand.NewSource(config.Seed)),
	}
}

// GenerateRecords produces one record per jurisdiction and year, with counts and
// per-100k rates that agree with each other.
func (g *CrimeDataGenerator) GenerateRecords() []crime.Record {
	var records []crime.Record
	for _, name := range g.config.Jurisdictions {
		population := g.config.MinPopulation + g.rng.Int63n(g.config.MaxPopulation-g.config.MinPopulation+1)
		// urban jurisdictions skew toward higher rates
		rate := g.config.BaseRate * (0.5 + g.rng.Float64()) * (1 + float64(population)/float64(g.config.MaxPopulation))

		for year := g.config.StartYear; year <= g.config.EndYear; year++ {
			records = append(records, g.record(name, year, population, rate))

			population = int64(float64(population) * (1 + 0.01*g.rng.NormFloat64()))
			rate *= 1 + g.config.YearlyDrift + 0.05*g.rng.NormFloat64()
			if rate < 1 {
				rate = 1
			}
		}
	}
	return records
}

func (g *CrimeDataGenerator) record(name string, year int, population int64, rate float64) crime.Record {
	values := make(map[crime.Metric]float64, 2*len(crime.CrimeTypes)+1)
	total := 0.0
	for _, m := range crime.CrimeTypes {
		expected := rate * crimeMix[m] * float64(population) / crime.RateBase
		count := math.Max(0, math.Round(expected*(1+0.1*g.rng.NormFloat64())))
		values[m] = count
		values[crime.RateOf(m)] = count * crime.RateBase / float64(population)
		total += count
	}
	values[crime.OverallCrimeRatePer100k] = total * crime.RateBase / float64(population)

	return crime.Record{
		Jurisdiction: name,
		Year:         year,
		Population:   population,
		Values:       values,
	}
}

// GenerateTable wraps generated records in a table with the full schema.
func (g *CrimeDataGenerator) GenerateTable() *crime.Table {
	records := g.GenerateRecords()
	return &crime.Table{
		Source:  fmt.Sprintf("synthetic:seed=%d", g.config.Seed),
		Version: core.NewSourceVersion([]byte(fmt.Sprintf("%+v", g.config))),
		Records: records,
		Schema:  crime.DefaultSchema(),
		Stats:   crime.LoadStats{RowsRead: len(records), RowsKept: len(records)},
	}
}

// WriteCSV writes records in the source table layout.
func WriteCSV(w io.Writer, records []crime.Record) error {
	columns := []crime.Metric{crime.Population}
	columns = append(columns, crime.CrimeTypes...)
	columns = append(columns, crime.RateTypes()...)
	columns = append(columns, crime.OverallCrimeRatePer100k)

	cw := csv.NewWriter(w)
	header := []string{crime.ColumnJurisdiction, crime.ColumnYear}
	for _, c := range columns {
		header = append(header, string(c))
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, r := range records {
		row := []string{r.Jurisdiction, strconv.Itoa(r.Year)}
		for _, c := range columns {
			v, ok := r.Value(c)
			if !ok {
				row = append(row, "")
				continue
			}
			row = append(row, strconv.FormatFloat(v, 'f', -1, 64))
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
