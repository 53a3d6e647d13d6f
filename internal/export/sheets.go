package export

import (
	"math"

	"crimestats/domain/crime"
	"crimestats/internal/analysis"
	"crimestats/internal/pipeline"
)

func keyHeader(by crime.GroupKey) string {
	if by == crime.GroupByJurisdiction {
		return crime.ColumnJurisdiction
	}
	return crime.ColumnYear
}

func keyCell(k crime.GroupValue) interface{} {
	if k.IsYear {
		return k.Year
	}
	return k.Jurisdiction
}

// SeriesSheet is the wide form of a series: one row per group, one column per metric.
func SeriesSheet(name string, s *crime.Series) Sheet {
	sheet := Sheet{Name: name, Headers: []string{keyHeader(s.Spec.By)}}
	for _, m := range s.Metrics {
		sheet.Headers = append(sheet.Headers, string(m))
	}
	for _, e := range s.Entries {
		row := []interface{}{keyCell(e.Key)}
		for _, m := range s.Metrics {
			v, ok := e.Values[m]
			if !ok {
				v = math.NaN()
			}
			row = append(row, v)
		}
		sheet.Rows = append(sheet.Rows, row)
	}
	return sheet
}

// LongSheet is the melted (key, metric, value) form.
func LongSheet(name string, by crime.GroupKey, rows []crime.LongRow) Sheet {
	sheet := Sheet{Name: name, Headers: []string{keyHeader(by), "Metric", "Value"}}
	for _, r := range rows {
		sheet.Rows = append(sheet.Rows, []interface{}{keyCell(r.Key), string(r.Metric), r.Value})
	}
	return sheet
}

// ChangesSheet lists change records with the fraction, its display label and the cap flag.
func ChangesSheet(name string, by crime.GroupKey, changes []crime.ChangeRecord, cap float64) Sheet {
	sheet := Sheet{Name: name, Headers: []string{keyHeader(by), "Metric", "Change", "Label", "Capped"}}
	for _, c := range changes {
		sheet.Rows = append(sheet.Rows, []interface{}{
			keyCell(c.Key), string(c.Metric), c.Change, pipeline.FormatChange(c.Change, cap), c.Capped,
		})
	}
	return sheet
}

// TrendSheet lists the yearly mean rate and its change.
func TrendSheet(r *analysis.TrendResult) Sheet {
	sheet := Sheet{Name: "Trend", Headers: []string{crime.ColumnYear, string(r.Metric), "Change"}}
	for _, p := range r.Points {
		change := math.NaN()
		if p.Change != nil {
			change = *p.Change
		}
		sheet.Rows = append(sheet.Rows, []interface{}{p.Year, p.Rate, change})
	}
	return sheet
}

// DistributionSheet is the crime-type breakdown of the selected year.
func DistributionSheet(r *analysis.DistributionResult) Sheet {
	sheet := Sheet{Name: "Distribution", Headers: []string{"CrimeType", "Count", "Percent"}}
	for _, s := range r.Breakdown {
		pct := math.NaN()
		if s.Defined {
			pct = s.Percent
		}
		sheet.Rows = append(sheet.Rows, []interface{}{string(s.Metric), s.Count, pct})
	}
	return sheet
}

// GeographySheet is the full jurisdiction ranking.
func GeographySheet(r *analysis.GeographyResult) Sheet {
	sheet := Sheet{Name: "Geography", Headers: []string{crime.ColumnJurisdiction, string(crime.CrimeRate), string(crime.Population), string(crime.TotalCrime)}}
	for _, j := range r.Ranking {
		sheet.Rows = append(sheet.Rows, []interface{}{j.Jurisdiction, j.CrimeRate, j.Population, j.TotalCrime})
	}
	return sheet
}

// HotspotSheet is the whole-period rate ranking with the hotspot flag.
func HotspotSheet(r *analysis.HotspotResult) Sheet {
	sheet := Sheet{Name: "Hotspots", Headers: []string{crime.ColumnJurisdiction, string(crime.TotalCrime), string(crime.Population), string(crime.CrimeRate), "Hotspot"}}
	for _, h := range r.Ranking {
		sheet.Rows = append(sheet.Rows, []interface{}{h.Jurisdiction, h.TotalCrime, h.Population, h.CrimeRate, h.IsHotspot})
	}
	return sheet
}

// CorrelationSheet is the correlation matrix with an empty cell where r is undefined.
func CorrelationSheet(r *analysis.CorrelationResult) Sheet {
	m := r.Matrix
	sheet := Sheet{Name: "Correlation", Headers: []string{"Metric"}}
	for _, metric := range m.Metrics {
		sheet.Headers = append(sheet.Headers, string(metric))
	}
	for i, metric := range m.Metrics {
		row := []interface{}{string(metric)}
		for j := range m.Metrics {
			v := math.NaN()
			if m.Cells[i][j].Defined {
				v = m.Cells[i][j].R
			}
			row = append(row, v)
		}
		sheet.Rows = append(sheet.Rows, row)
	}
	return sheet
}

// ReportSheets returns one sheet per computed section of the report.
func ReportSheets(r *analysis.Report) []Sheet {
	var sheets []Sheet
	if r.Trend != nil {
		sheets = append(sheets, TrendSheet(r.Trend))
	}
	if r.Distribution != nil {
		sheets = append(sheets, DistributionSheet(r.Distribution))
	}
	if r.Geography != nil {
		sheets = append(sheets, GeographySheet(r.Geography))
	}
	if r.Hotspots != nil {
		sheets = append(sheets, HotspotSheet(r.Hotspots))
	}
	if r.Correlation != nil && r.Correlation.Matrix != nil {
		sheets = append(sheets, CorrelationSheet(r.Correlation))
	}
	if r.RateChanges != nil {
		sheets = append(sheets, ChangesSheet("RateChanges", crime.GroupByYear, r.RateChanges.All, r.RateChanges.Cap))
	}
	return sheets
}
