package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"crimestats/domain/crime"
	apperrors "crimestats/internal/errors"
	"crimestats/internal/export"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func (h *Handler) writeError(c *gin.Context, err error) {
	status := apperrors.HTTPStatus(err)
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		h.logger.Error("%s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	} else {
		h.logger.Debug("%s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	}
	c.JSON(status, errorResponse{Error: err.Error(), Code: apperrors.GetCode(err)})
}

// respond writes v as JSON, or the sheets as a download when the format query
// parameter asks for csv or xlsx.
func (h *Handler) respond(c *gin.Context, base string, v interface{}, sheets func() []export.Sheet) {
	raw := c.Query("format")
	if raw == "" || raw == "json" {
		c.JSON(http.StatusOK, v)
		return
	}
	format, err := export.ParseFormat(raw)
	if err != nil {
		h.writeError(c, apperrors.InvalidInput(err.Error()))
		return
	}

	var buf bytes.Buffer
	if err := export.Write(&buf, format, sheets()...); err != nil {
		h.writeError(c, apperrors.Wrap(err, "export failed"))
		return
	}
	filename := format.Filename(fmt.Sprintf("%s_%s", base, time.Now().UTC().Format("20060102")))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, format.ContentType(), buf.Bytes())
}

// metricsQuery reads a comma separated metric list. An absent parameter yields def;
// a present but empty one yields no metrics.
func metricsQuery(c *gin.Context, name string, def []crime.Metric) []crime.Metric {
	raw, ok := c.GetQuery(name)
	if !ok {
		return def
	}
	return crime.ParseMetrics(raw)
}

func intQuery(c *gin.Context, name string) (int, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperrors.InvalidInput(fmt.Sprintf("%s must be an integer", name))
	}
	return n, nil
}

func floatQuery(c *gin.Context, name string) (float64, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, apperrors.InvalidInput(fmt.Sprintf("%s must be a number", name))
	}
	return v, nil
}

// positiveOverride turns an explicit zero into an invalid value so the service
// rejects it instead of applying its default.
func positiveOverride[T int | float64](c *gin.Context, name string, v T) T {
	if _, ok := c.GetQuery(name); ok && v == 0 {
		return -1
	}
	return v
}
