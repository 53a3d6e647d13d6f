package container

import (
	"context"
	"fmt"
	"io"

	"crimestats/adapters/cache"
	"crimestats/adapters/datareadiness/coercer"
	"crimestats/app"
	"crimestats/domain/crime"
	"crimestats/internal"
	"crimestats/internal/analysis"
	"crimestats/internal/config"
	"crimestats/internal/loader"
	"crimestats/ports"
)

// Container holds all application dependencies and manages their lifecycle
type Container struct {
	Config *config.Config
	Logger *internal.Logger

	Loader  *loader.Loader
	Source  ports.RawSource
	Cache   ports.SeriesCache
	Service *app.ReportService

	closers []io.Closer
}

// New creates a new dependency injection container. It opens the data source and the
// cache backend but does not read any data; call Load for that.
func New(ctx context.Context, cfg *config.Config) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	c := &Container{
		Config: cfg,
		Logger: internal.NewLogger(internal.ParseLogLevel(cfg.Log.Level), cfg.IsProduction()),
	}
	internal.SetDefaultLogger(c.Logger)

	if err := c.initLoader(ctx); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize data source: %w", err)
	}
	c.initCache(ctx)

	opts, err := AnalysisOptions(cfg)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Service = app.NewReportService(c.Loader, c.Source, c.Cache, cfg.Cache.TTL, opts, c.Logger)

	c.Logger.Debug("container initialized: source=%s cache=%s", c.Source.Describe(), cfg.Cache.Backend)
	return c, nil
}

// initLoader builds the loader and opens the configured source
func (c *Container) initLoader(ctx context.Context) error {
	policy, err := coercer.ParsePolicy(c.Config.Data.CoercionPolicy)
	if err != nil {
		return err
	}
	coercion := coercer.DefaultCoercionConfig()
	coercion.Policy = policy
	c.Loader = loader.New(coercion, c.Logger)

	src, closer, err := loader.Open(ctx, c.Config.Data)
	if err != nil {
		return err
	}
	c.Source = src
	c.closers = append(c.closers, closer)
	return nil
}

// initCache selects the series cache. An unreachable redis falls back to memory.
func (c *Container) initCache(ctx context.Context) {
	switch c.Config.Cache.Backend {
	case "none":
		return
	case "redis":
		rc, err := cache.NewRedis(ctx,
			cache.WithAddress(c.Config.Cache.RedisAddr),
			cache.WithPassword(c.Config.Cache.RedisPassword),
			cache.WithDB(c.Config.Cache.RedisDB),
		)
		if err == nil {
			c.Cache = rc
			c.closers = append(c.closers, rc)
			return
		}
		c.Logger.Warn("redis cache unavailable, using in-memory cache: %v", err)
	}
	mem := cache.NewMemory()
	c.Cache = mem
	c.closers = append(c.closers, mem)
}

// Load reads the data source into the service. A missing source leaves the service
// with an empty table.
func (c *Container) Load(ctx context.Context) (*crime.Table, error) {
	if err := c.Service.Reload(ctx); err != nil {
		return nil, err
	}
	return c.Service.Table(), nil
}

// Close releases the database handle and cache connections
func (c *Container) Close() error {
	var first error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	c.closers = nil
	if c.Logger != nil {
		_ = c.Logger.Sync()
	}
	return first
}

// AnalysisOptions converts the analysis configuration into section options.
func AnalysisOptions(cfg *config.Config) (analysis.Options, error) {
	a := cfg.Analysis
	policy, err := analysis.ParseHotspotPolicy(a.Hotspot.Threshold, a.Hotspot.Multiplier, a.Hotspot.FixedRate)
	if err != nil {
		return analysis.Options{}, err
	}

	opts := analysis.DefaultOptions()
	opts.ChangeCap = a.ChangeCap
	opts.TopN = a.TopN
	opts.ChangeTopN = a.ChangeTopN
	opts.Hotspot = policy
	if len(a.TrendRates) > 0 {
		opts.TrendRates = opts.TrendRates[:0:0]
		for _, r := range a.TrendRates {
			opts.TrendRates = append(opts.TrendRates, crime.Metric(r))
		}
	}
	if a.CorrelationMetric != "" {
		opts.CorrelationMetric = crime.Metric(a.CorrelationMetric)
	}
	return opts, nil
}
