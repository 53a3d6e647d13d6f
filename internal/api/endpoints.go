package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"crimestats/app"
	"crimestats/domain/core"
	"crimestats/domain/crime"
	"crimestats/internal/analysis"
	apperrors "crimestats/internal/errors"
	"crimestats/internal/export"
	"crimestats/internal/pipeline"
)

// PostReload re-reads the data source and reports the new table
func (h *Handler) PostReload(c *gin.Context) {
	if err := h.service.Reload(c.Request.Context()); err != nil {
		h.writeError(c, err)
		return
	}
	t := h.service.Table()
	c.JSON(http.StatusOK, gin.H{
		"source":  t.Source,
		"version": t.Version.Short(),
		"rows":    len(t.Records),
		"stats":   t.Stats,
	})
}

// GetSeries aggregates metrics by year or jurisdiction
func (h *Handler) GetSeries(c *gin.Context) {
	by, err := crime.ParseGroupKey(c.Query("group"))
	if err != nil {
		h.writeError(c, apperrors.InvalidInput(err.Error()))
		return
	}
	fn, err := crime.ParseAggFunc(c.Query("agg"))
	if err != nil {
		h.writeError(c, apperrors.InvalidInput(err.Error()))
		return
	}
	order, err := crime.ParseSeriesOrder(c.Query("order"))
	if err != nil {
		h.writeError(c, apperrors.InvalidInput(err.Error()))
		return
	}

	series, err := h.service.Aggregate(c.Request.Context(), app.AggregateRequest{
		Metrics: metricsQuery(c, "metrics", crime.CrimeTypes),
		Spec:    crime.GroupSpec{By: by, Func: fn, Order: order},
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	if c.Query("shape") == "long" {
		rows := pipeline.Melt(series)
		h.respond(c, "crime_series", rows, func() []export.Sheet { return []export.Sheet{export.LongSheet("Series", by, rows)} })
		return
	}
	h.respond(c, "crime_series", series, func() []export.Sheet { return []export.Sheet{export.SeriesSheet("Series", series)} })
}

// GetChanges returns capped year-over-year changes with the ranked extremes
func (h *Handler) GetChanges(c *gin.Context) {
	topN, err := intQuery(c, "top")
	if err != nil {
		h.writeError(c, err)
		return
	}
	capValue, err := floatQuery(c, "cap")
	if err != nil {
		h.writeError(c, err)
		return
	}
	topN = positiveOverride(c, "top", topN)
	capValue = positiveOverride(c, "cap", capValue)

	result, err := h.service.RateChanges(c.Request.Context(), metricsQuery(c, "crimes", crime.CrimeTypes), topN, capValue)
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.respond(c, "crime_rate_changes", result, func() []export.Sheet {
		return []export.Sheet{export.ChangesSheet("RateChanges", crime.GroupByYear, result.Changes, result.Cap)}
	})
}

// GetTrend returns statewide rates by year
func (h *Handler) GetTrend(c *gin.Context) {
	result, err := h.service.Trend(c.Request.Context(), metricsQuery(c, "rates", nil))
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.respond(c, "crime_trend", result, func() []export.Sheet { return []export.Sheet{export.TrendSheet(result)} })
}

// GetDistribution returns the crime type mix for a year
func (h *Handler) GetDistribution(c *gin.Context) {
	year, err := intQuery(c, "year")
	if err != nil {
		h.writeError(c, err)
		return
	}
	selected := metricsQuery(c, "crimes", crime.CrimeTypes)
	if len(selected) == 0 {
		h.writeError(c, apperrors.Wrap(core.ErrNoMetrics, "Distribution could not be computed"))
		return
	}
	focus := crime.Metric(strings.TrimSpace(c.Query("focus")))

	result, err := h.service.Distribution(c.Request.Context(), selected, year, focus)
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.respond(c, "crime_distribution", result, func() []export.Sheet {
		return []export.Sheet{export.DistributionSheet(result), export.LongSheet("Counts", crime.GroupByYear, result.Counts)}
	})
}

// GetGeography ranks jurisdictions by overall crime rate
func (h *Handler) GetGeography(c *gin.Context) {
	n, err := intQuery(c, "n")
	if err != nil {
		h.writeError(c, err)
		return
	}
	result, err := h.service.Geography(c.Request.Context(), n, strings.TrimSpace(c.Query("jurisdiction")))
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.respond(c, "crime_geography", result, func() []export.Sheet { return []export.Sheet{export.GeographySheet(result)} })
}

// GetHotspots flags jurisdictions above the hotspot threshold
func (h *Handler) GetHotspots(c *gin.Context) {
	n, err := intQuery(c, "n")
	if err != nil {
		h.writeError(c, err)
		return
	}

	var policy *analysis.HotspotPolicy
	_, hasThreshold := c.GetQuery("threshold")
	_, hasMultiplier := c.GetQuery("multiplier")
	_, hasFixed := c.GetQuery("fixed")
	if hasThreshold || hasMultiplier || hasFixed {
		multiplier, err := floatQuery(c, "multiplier")
		if err != nil {
			h.writeError(c, err)
			return
		}
		fixed, err := floatQuery(c, "fixed")
		if err != nil {
			h.writeError(c, err)
			return
		}
		p, err := analysis.ParseHotspotPolicy(c.Query("threshold"), multiplier, fixed)
		if err != nil {
			h.writeError(c, apperrors.InvalidInput(err.Error()))
			return
		}
		policy = &p
	}

	result, err := h.service.Hotspots(c.Request.Context(), n, metricsQuery(c, "crimes", nil), policy)
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.respond(c, "crime_hotspots", result, func() []export.Sheet { return []export.Sheet{export.HotspotSheet(result)} })
}

// GetCorrelation correlates population with a crime rate
func (h *Handler) GetCorrelation(c *gin.Context) {
	metric := crime.Metric(strings.TrimSpace(c.Query("metric")))
	result, err := h.service.Correlation(c.Request.Context(), metric)
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.respond(c, "crime_correlation", result, func() []export.Sheet { return []export.Sheet{export.CorrelationSheet(result)} })
}

// GetReport builds every section; failed sections are listed in the report
func (h *Handler) GetReport(c *gin.Context) {
	report := h.service.Report(c.Request.Context())
	h.respond(c, "crime_report", report, func() []export.Sheet { return export.ReportSheets(report) })
}
