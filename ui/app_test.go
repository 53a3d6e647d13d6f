package ui

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crimestats/adapters/cache"
	"crimestats/app"
	"crimestats/domain/crime"
	"crimestats/internal"
	"crimestats/internal/analysis"
	"crimestats/internal/testkit"
)

func newTestApp(t *testing.T, table *crime.Table) *App {
	t.Helper()
	svc := app.NewReportService(nil, nil, cache.NewMemory(), time.Minute, analysis.DefaultOptions(), internal.NewNopLogger())
	svc.SetTable(table)
	a, err := NewApp(Config{Port: "0"}, svc, internal.NewNopLogger())
	require.NoError(t, err)
	return a
}

func generatedTable() *crime.Table {
	return testkit.NewCrimeDataGenerator(testkit.DefaultCrimeConfig()).GenerateTable()
}

func get(t *testing.T, a *App, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	a := newTestApp(t, generatedTable())
	rec := get(t, a, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(132), body["rows"])
}

func TestAPIIsMounted(t *testing.T) {
	a := newTestApp(t, generatedTable())

	rec := get(t, a, "/api/series?metrics=Murder&group=jurisdiction")
	require.Equal(t, http.StatusOK, rec.Code)
	var series crime.Series
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &series))
	assert.Len(t, series.Entries, 12)

	rec = get(t, a, "/api/series?metrics=Arson")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = get(t, a, "/api/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNoDataIs503(t *testing.T) {
	a := newTestApp(t, crime.EmptyTable("missing.csv"))

	rec := get(t, a, "/api/trend")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "no data available")

	rec = get(t, a, "/report")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "No data available.")
}

func TestReportPages(t *testing.T) {
	a := newTestApp(t, generatedTable())

	rec := get(t, a, "/report")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "<h1")
	assert.Contains(t, rec.Body.String(), "<table>")

	rec = get(t, a, "/report.md")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Body.String(), "# Crime Statistics Report"))

	rec = get(t, a, "/api/report?format=xlsx")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), ".xlsx")
	assert.NotZero(t, rec.Body.Len())
}

func TestRenderMarkdownDropsRawHTML(t *testing.T) {
	out := string(renderMarkdown("# Title\n\n<script>alert(1)</script>\n"))
	assert.Contains(t, out, "<h1")
	assert.NotContains(t, out, "<script>")
}
