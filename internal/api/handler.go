// Package api serves the report service as a JSON API with optional CSV/XLSX downloads.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"crimestats/app"
	"crimestats/internal"
	apperrors "crimestats/internal/errors"
)

// Handler handles crime statistics API requests
type Handler struct {
	service *app.ReportService
	logger  *internal.Logger
}

// NewHandler creates a new API handler
func NewHandler(service *app.ReportService, logger *internal.Logger) *Handler {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &Handler{service: service, logger: logger}
}

// Register mounts the API routes on a router group.
func (h *Handler) Register(rg *gin.RouterGroup) {
	rg.GET("/series", h.GetSeries)
	rg.GET("/changes", h.GetChanges)
	rg.GET("/trend", h.GetTrend)
	rg.GET("/distribution", h.GetDistribution)
	rg.GET("/geography", h.GetGeography)
	rg.GET("/hotspots", h.GetHotspots)
	rg.GET("/correlation", h.GetCorrelation)
	rg.GET("/report", h.GetReport)
	rg.POST("/reload", h.PostReload)
}

// Engine builds a gin engine serving the API under prefix.
func (h *Handler) Engine(prefix string) http.Handler {
	if gin.Mode() == gin.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.HandleMethodNotAllowed = true
	engine.NoRoute(func(c *gin.Context) {
		h.writeError(c, apperrors.NotFound(c.Request.URL.Path))
	})
	h.Register(engine.Group(prefix))
	return engine
}
