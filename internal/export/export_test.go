package export

import (
	"bytes"
	"encoding/csv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"crimestats/domain/crime"
	"crimestats/internal/analysis"
	"crimestats/internal/testkit"
)

func yearSeries() *crime.Series {
	return &crime.Series{
		Spec:    crime.GroupSpec{By: crime.GroupByYear, Func: crime.AggSum, Order: crime.OrderKeyAsc},
		Metrics: []crime.Metric{crime.Murder, crime.Robbery},
		Entries: []crime.SeriesEntry{
			{Key: crime.YearKey(2019), Values: map[crime.Metric]float64{crime.Murder: 10, crime.Robbery: 4.5}},
			{Key: crime.YearKey(2020), Values: map[crime.Metric]float64{crime.Murder: 15}},
		},
	}
}

func readCSV(t *testing.T, data []byte) [][]string {
	t.Helper()
	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	require.NoError(t, err)
	return records
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat(" XLSX ")
	require.NoError(t, err)
	assert.Equal(t, FormatXLSX, f)
	assert.Equal(t, "crime_stats.xlsx", f.Filename("crime_stats"))
	assert.Contains(t, FormatCSV.ContentType(), "text/csv")

	_, err = ParseFormat("pdf")
	assert.Error(t, err)
}

func TestWriteCSV_SeriesHasNoIndexColumn(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatCSV, SeriesSheet("Series", yearSeries())))

	records := readCSV(t, buf.Bytes())
	assert.Equal(t, [][]string{
		{"Year", "Murder", "Robbery"},
		{"2019", "10", "4.5"},
		{"2020", "15", ""},
	}, records)
}

func TestWriteCSV_LongAndChanges(t *testing.T) {
	rows := []crime.LongRow{{Key: crime.JurisdictionKey("Baltimore City"), Metric: crime.Murder, Value: 300}}
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, LongSheet("Long", crime.GroupByJurisdiction, rows)))
	assert.Equal(t, [][]string{{"Jurisdiction", "Metric", "Value"}, {"Baltimore City", "Murder", "300"}}, readCSV(t, buf.Bytes()))

	changes := []crime.ChangeRecord{
		{Key: crime.YearKey(2020), Metric: crime.Murder, Change: 0.5},
		{Key: crime.YearKey(2020), Metric: crime.Rape, Change: 10, Capped: true},
	}
	buf.Reset()
	require.NoError(t, WriteCSV(&buf, ChangesSheet("Changes", crime.GroupByYear, changes, 10)))
	assert.Equal(t, [][]string{
		{"Year", "Metric", "Change", "Label", "Capped"},
		{"2020", "Murder", "0.5", "50.00%", "false"},
		{"2020", "Rape", "10", ">1000%", "true"},
	}, readCSV(t, buf.Bytes()))
}

func TestWriteXLSX_ReportSheets(t *testing.T) {
	tbl := testkit.NewCrimeDataGenerator(testkit.DefaultCrimeConfig()).GenerateTable()
	report := analysis.BuildReport(tbl, analysis.DefaultOptions())
	sheets := ReportSheets(report)
	require.Len(t, sheets, 6)

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatXLSX, sheets...))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Trend", "Distribution", "Geography", "Hotspots", "Correlation", "RateChanges"}, f.GetSheetList())

	rows, err := f.GetRows("Hotspots")
	require.NoError(t, err)
	assert.Equal(t, []string{"Jurisdiction", "TotalCrime", "Population", "CrimeRate", "Hotspot"}, rows[0])
	assert.Len(t, rows, len(report.Hotspots.Ranking)+1)
	assert.Equal(t, report.Hotspots.Ranking[0].Jurisdiction, rows[1][0])

	rows, err = f.GetRows("Trend")
	require.NoError(t, err)
	assert.Equal(t, "2010", rows[1][0])
}

func TestWrite_Errors(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, Write(&buf, FormatCSV))
	assert.Error(t, Write(&buf, Format("pdf"), Sheet{Headers: []string{"a"}}))
}

func TestSheetName(t *testing.T) {
	assert.Equal(t, "Sheet3", sheetName("  ", 2))
	assert.Len(t, sheetName("A very long sheet name that exceeds the limit", 0), 31)
}
