package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crimestats/adapters/cache"
	"crimestats/app"
	"crimestats/domain/crime"
	"crimestats/internal"
	"crimestats/internal/analysis"
	"crimestats/internal/testkit"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestEngine(t *testing.T, table *crime.Table) http.Handler {
	t.Helper()
	svc := app.NewReportService(nil, nil, cache.NewMemory(), time.Minute, analysis.DefaultOptions(), internal.NewNopLogger())
	svc.SetTable(table)
	return NewHandler(svc, internal.NewNopLogger()).Engine("/api")
}

func generatedTable() *crime.Table {
	return testkit.NewCrimeDataGenerator(testkit.DefaultCrimeConfig()).GenerateTable()
}

func perform(engine http.Handler, method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func TestGetSeries(t *testing.T) {
	engine := newTestEngine(t, generatedTable())

	rec := perform(engine, http.MethodGet, "/api/series?metrics=Murder,Robbery&group=jurisdiction&agg=mean&order=value_desc")
	require.Equal(t, http.StatusOK, rec.Code)
	var series crime.Series
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &series))
	assert.Len(t, series.Entries, 12)
	assert.Equal(t, crime.OrderValueDesc, series.Spec.Order)
	for i := 1; i < len(series.Entries); i++ {
		assert.GreaterOrEqual(t, series.Entries[i-1].Values[crime.Murder], series.Entries[i].Values[crime.Murder])
	}

	rec = perform(engine, http.MethodGet, "/api/series?metrics=Murder&shape=long")
	require.Equal(t, http.StatusOK, rec.Code)
	var rows []crime.LongRow
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
	assert.Len(t, rows, 11)
}

func TestGetSeries_CSVDownload(t *testing.T) {
	engine := newTestEngine(t, generatedTable())

	rec := perform(engine, http.MethodGet, "/api/series?metrics=Murder&format=csv")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/csv")
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "crime_series_")
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	assert.Equal(t, "Year,Murder", lines[0])
	assert.Len(t, lines, 12)
}

func TestRequestErrorsAre400(t *testing.T) {
	engine := newTestEngine(t, generatedTable())

	for _, target := range []string{
		"/api/series?metrics=Arson",
		"/api/series?metrics=",
		"/api/series?group=county",
		"/api/series?agg=median",
		"/api/changes?crimes=",
		"/api/changes?top=0",
		"/api/changes?cap=0",
		"/api/changes?cap=-2",
		"/api/changes?top=abc",
		"/api/distribution?year=1900",
		"/api/distribution?crimes=",
		"/api/geography?jurisdiction=Atlantis",
		"/api/hotspots?threshold=mode",
		"/api/hotspots?threshold=fixed&fixed=x",
		"/api/correlation?metric=Arson",
		"/api/series?format=pdf",
	} {
		t.Run(target, func(t *testing.T) {
			rec := perform(engine, http.MethodGet, target)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())

			var body errorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.NotEmpty(t, body.Error)
			assert.Equal(t, "INVALID_INPUT", body.Code)
		})
	}
}

func TestInsufficientDataIs422(t *testing.T) {
	engine := newTestEngine(t, &crime.Table{
		Source: "tiny",
		Schema: crime.DefaultSchema(),
		Records: []crime.Record{
			{Jurisdiction: "A", Year: 2020, Population: 0, Values: map[crime.Metric]float64{crime.Murder: 1}},
		},
	})

	rec := perform(engine, http.MethodGet, "/api/hotspots")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestNoDataIs503(t *testing.T) {
	engine := newTestEngine(t, crime.EmptyTable("missing.csv"))

	for _, target := range []string{"/api/trend", "/api/series", "/api/changes"} {
		rec := perform(engine, http.MethodGet, target)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, target)
		assert.Contains(t, rec.Body.String(), "no data available", target)
	}

	rec := perform(engine, http.MethodGet, "/api/report")
	require.Equal(t, http.StatusOK, rec.Code)
	var report analysis.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.True(t, report.NoData)
}

func TestSectionEndpoints(t *testing.T) {
	engine := newTestEngine(t, generatedTable())

	for _, target := range []string{
		"/api/trend?rates=MurderPer100k",
		"/api/distribution?year=2015&crimes=Murder,Rape&focus=Rape",
		"/api/geography?n=3&jurisdiction=Baltimore%20City",
		"/api/hotspots?n=5&crimes=Murder&threshold=median",
		"/api/correlation?metric=RobberyPer100k",
		"/api/changes?crimes=Murder,Robbery&top=3",
		"/api/report",
	} {
		rec := perform(engine, http.MethodGet, target)
		assert.Equal(t, http.StatusOK, rec.Code, target)
		assert.Contains(t, rec.Header().Get("Content-Type"), "application/json", target)
	}

	rec := perform(engine, http.MethodGet, "/api/hotspots?n=5&threshold=fixed&fixed=1")
	require.Equal(t, http.StatusOK, rec.Code)
	var hot analysis.HotspotResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &hot))
	assert.Len(t, hot.Top, 5)
	assert.Len(t, hot.Hotspots, 12)
}

func TestGetChanges(t *testing.T) {
	engine := newTestEngine(t, generatedTable())

	rec := perform(engine, http.MethodGet, "/api/changes?crimes=Murder&top=2&cap=0.05")
	require.Equal(t, http.StatusOK, rec.Code)
	var result analysis.RateChangesResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.LessOrEqual(t, len(result.Increases), 2)
	assert.LessOrEqual(t, len(result.Decreases), 2)
	for _, c := range result.Changes {
		assert.LessOrEqual(t, c.Change, 0.05)
		assert.GreaterOrEqual(t, c.Change, -0.05)
	}

	rec = perform(engine, http.MethodGet, "/api/changes?crimes=Murder&format=xlsx")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), ".xlsx")
}

func TestPostReload_WithoutSource(t *testing.T) {
	engine := newTestEngine(t, generatedTable())

	rec := perform(engine, http.MethodPost, "/api/reload")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	rec = perform(engine, http.MethodGet, "/api/reload")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
