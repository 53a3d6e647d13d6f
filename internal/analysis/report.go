package analysis

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"crimestats/domain/core"
	"crimestats/domain/crime"
)

// Report is every section computed over one table version.
type Report struct {
	ID           core.ReportID       `json:"id"`
	Source       string              `json:"source"`
	Version      string              `json:"version"`
	GeneratedAt  time.Time           `json:"generated_at"`
	Stats        crime.LoadStats     `json:"stats"`
	NoData       bool                `json:"no_data"`
	Trend        *TrendResult        `json:"trend,omitempty"`
	Distribution *DistributionResult `json:"distribution,omitempty"`
	Geography    *GeographyResult    `json:"geography,omitempty"`
	Hotspots     *HotspotResult      `json:"hotspots,omitempty"`
	Correlation  *CorrelationResult  `json:"correlation,omitempty"`
	RateChanges  *RateChangesResult  `json:"rate_changes,omitempty"`
	// Errors holds the sections that could not be computed, by section name.
	Errors map[string]string `json:"errors,omitempty"`
}

// BuildReport runs every section with opts. A failing section is recorded in Errors
// and the rest of the report is still produced.
func BuildReport(t *crime.Table, opts Options) *Report {
	report := &Report{
		ID:          core.NewReportID(),
		GeneratedAt: time.Now().UTC(),
		Errors:      map[string]string{},
	}
	if t != nil {
		report.Source = t.Source
		report.Version = t.Version.Short()
		report.Stats = t.Stats
	}
	if t.IsEmpty() {
		report.NoData = true
		return report
	}

	record := func(name string, err error) {
		if err != nil {
			report.Errors[name] = err.Error()
		}
	}

	var err error
	report.Trend, err = Trend(t, opts.TrendRates)
	record("trend", err)
	report.Distribution, err = Distribution(t, crime.CrimeTypes, opts.Year, "")
	record("distribution", err)
	report.Geography, err = Geography(t, opts.TopN, "")
	record("geography", err)
	report.Hotspots, err = Hotspots(t, opts.TopN, crime.CrimeTypes, opts.Hotspot)
	record("hotspots", err)
	report.Correlation, err = PopulationCorrelation(t, opts.CorrelationMetric)
	record("correlation", err)
	report.RateChanges, err = RateChanges(t, crime.CrimeTypes, opts.ChangeTopN, opts.ChangeCap)
	record("rate_changes", err)

	return report
}

// Markdown renders the report's insights and top tables.
func (r *Report) Markdown() string {
	var b strings.Builder
	b.WriteString("# Crime Statistics Report\n\n")
	fmt.Fprintf(&b, "- Report: `%s`\n", r.ID)
	fmt.Fprintf(&b, "- Source: `%s` (version `%s`)\n", r.Source, r.Version)
	fmt.Fprintf(&b, "- Generated: %s\n", r.GeneratedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "- Rows: %d read, %d kept\n\n", r.Stats.RowsRead, r.Stats.RowsKept)

	if r.NoData {
		b.WriteString("No data available.\n")
		return b.String()
	}

	if r.Trend != nil {
		writeSection(&b, "Crime Rate Trend", r.Trend.Section)
	}
	if r.Distribution != nil {
		writeSection(&b, fmt.Sprintf("Crime Distribution in %d", r.Distribution.Year), r.Distribution.Section)
		b.WriteString("| Crime type | Count | Share |\n|---|---:|---:|\n")
		for _, s := range r.Distribution.Breakdown {
			share := "N/A"
			if s.Defined {
				share = fmt.Sprintf("%.2f%%", s.Percent)
			}
			fmt.Fprintf(&b, "| %s | %.0f | %s |\n", s.Metric, s.Count, share)
		}
		b.WriteString("\n")
	}
	if r.Geography != nil {
		writeSection(&b, "Geography", r.Geography.Section)
		b.WriteString("| Jurisdiction | Crime rate | Population | Total crime |\n|---|---:|---:|---:|\n")
		for _, j := range r.Geography.Top {
			fmt.Fprintf(&b, "| %s | %.2f | %.0f | %.0f |\n", j.Jurisdiction, j.CrimeRate, j.Population, j.TotalCrime)
		}
		b.WriteString("\n")
	}
	if r.Hotspots != nil {
		writeSection(&b, "Crime Hotspots", r.Hotspots.Section)
		b.WriteString("| Jurisdiction | Crime rate | Total crime | Hotspot |\n|---|---:|---:|:---:|\n")
		for _, h := range r.Hotspots.Top {
			mark := ""
			if h.IsHotspot {
				mark = "yes"
			}
			fmt.Fprintf(&b, "| %s | %.2f | %.0f | %s |\n", h.Jurisdiction, h.CrimeRate, h.TotalCrime, mark)
		}
		b.WriteString("\n")
	}
	if r.Correlation != nil {
		writeSection(&b, "Population Correlation", r.Correlation.Section)
	}
	if r.RateChanges != nil {
		writeSection(&b, "Crime Rate Changes", r.RateChanges.Section)
		writeChanges(&b, "Increases", r.RateChanges.Increases)
		writeChanges(&b, "Decreases", r.RateChanges.Decreases)
	}

	if len(r.Errors) > 0 {
		b.WriteString("## Sections not computed\n\n")
		for _, name := range sortedKeys(r.Errors) {
			fmt.Fprintf(&b, "- **%s**: %s\n", name, r.Errors[name])
		}
	}
	return b.String()
}

func writeSection(b *strings.Builder, title string, s Section) {
	fmt.Fprintf(b, "## %s\n\n", title)
	for _, line := range s.Insights {
		fmt.Fprintf(b, "- %s\n", line)
	}
	if len(s.Warnings) > 0 {
		b.WriteString("\n")
		for _, w := range s.Warnings {
			fmt.Fprintf(b, "> %s\n", w)
		}
	}
	b.WriteString("\n")
}

func writeChanges(b *strings.Builder, title string, changes []LabeledChange) {
	if len(changes) == 0 {
		return
	}
	fmt.Fprintf(b, "### Top %s\n\n| Year | Crime type | Change |\n|---|---|---:|\n", title)
	for _, c := range changes {
		fmt.Fprintf(b, "| %s | %s | %s |\n", c.Key, c.Metric, c.Label)
	}
	b.WriteString("\n")
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
