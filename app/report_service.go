package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"crimestats/domain/core"
	"crimestats/domain/crime"
	"crimestats/internal"
	"crimestats/internal/analysis"
	apperrors "crimestats/internal/errors"
	"crimestats/internal/loader"
	"crimestats/internal/pipeline"
	"crimestats/ports"
)

const defaultSetTimeout = 5 * time.Second

// ReportService serves analyses over the currently loaded table. The table is swapped
// atomically on Reload; readers never see a partially loaded table.
type ReportService struct {
	loader *loader.Loader
	source ports.RawSource
	cache  ports.SeriesCache
	ttl    time.Duration
	opts   analysis.Options
	logger *internal.Logger

	sf    singleflight.Group
	mu    sync.RWMutex
	table *crime.Table
}

// NewReportService wires a service. cache may be nil to disable series caching.
func NewReportService(l *loader.Loader, source ports.RawSource, cache ports.SeriesCache, ttl time.Duration, opts analysis.Options, logger *internal.Logger) *ReportService {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &ReportService{
		loader: l,
		source: source,
		cache:  cache,
		ttl:    ttl,
		opts:   opts,
		logger: logger,
		table:  crime.EmptyTable(describe(source)),
	}
}

func describe(src ports.RawSource) string {
	if src == nil {
		return ""
	}
	return src.Describe()
}

// Reload re-reads the source. A missing source leaves an empty table loaded.
func (s *ReportService) Reload(ctx context.Context) error {
	if s.loader == nil || s.source == nil {
		return apperrors.ConfigInvalid("no data source configured")
	}
	table, err := s.loader.LoadOrEmpty(ctx, s.source)
	if err != nil {
		return apperrors.Wrapf(err, "failed to load %s", s.source.Describe())
	}
	s.SetTable(table)
	return nil
}

// SetTable replaces the loaded table.
func (s *ReportService) SetTable(t *crime.Table) {
	if t == nil {
		t = crime.EmptyTable("")
	}
	s.mu.Lock()
	s.table = t
	s.mu.Unlock()
}

// Table returns the loaded table. Callers must not modify it.
func (s *ReportService) Table() *crime.Table {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.table
}

// Options returns the defaults sections run with.
func (s *ReportService) Options() analysis.Options {
	return s.opts
}

func (s *ReportService) loaded() (*crime.Table, error) {
	t := s.Table()
	if t.IsEmpty() {
		return nil, apperrors.NoData()
	}
	return t, nil
}

// AggregateRequest selects metrics and a grouping.
type AggregateRequest struct {
	Metrics []crime.Metric
	Spec    crime.GroupSpec
}

// SeriesKey identifies an aggregation of one table version.
func SeriesKey(version core.SourceVersion, req AggregateRequest) string {
	parts := []string{string(version), string(req.Spec.By), string(req.Spec.Func), string(req.Spec.Order)}
	for _, m := range req.Metrics {
		parts = append(parts, string(m))
	}
	return "series:" + core.ComputeKeyHash(parts).String()
}

// Aggregate groups the loaded table, reading through the series cache.
func (s *ReportService) Aggregate(ctx context.Context, req AggregateRequest) (*crime.Series, error) {
	t, err := s.loaded()
	if err != nil {
		return nil, err
	}
	req.Spec = normalize(req.Spec)
	if err := crime.ValidateMetrics(t.Schema, req.Metrics); err != nil {
		return nil, apperrors.Wrap(err, "invalid metric selection")
	}

	compute := func() (*crime.Series, error) {
		return pipeline.AggregateTable(t, req.Metrics, req.Spec)
	}
	if s.cache == nil {
		return compute()
	}

	key := SeriesKey(t.Version, req)
	cached, ok, err := s.cache.Get(ctx, key)
	switch {
	case err != nil:
		s.logger.Warn("cache get %s failed, treating as miss: %v", key, err)
	case ok:
		s.logger.Debug("cache hit %s", key)
		return cached, nil
	default:
		s.logger.Debug("cache miss %s", key)
	}

	v, err, shared := s.sf.Do(key, func() (interface{}, error) {
		series, err := compute()
		if err != nil {
			return nil, err
		}
		setCtx, cancel := context.WithTimeout(context.Background(), defaultSetTimeout)
		defer cancel()
		if err := s.cache.Set(setCtx, key, series, s.ttl); err != nil {
			s.logger.Warn("cache set %s failed: %v", key, err)
		}
		return series, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		s.logger.Trace("singleflight shared result for %s", key)
	}
	series, ok := v.(*crime.Series)
	if !ok {
		return nil, fmt.Errorf("type mismatch for key %q", key)
	}
	return series, nil
}

func normalize(spec crime.GroupSpec) crime.GroupSpec {
	if spec.By == "" {
		spec.By = crime.GroupByYear
	}
	if spec.Func == "" {
		spec.Func = crime.AggSum
	}
	if spec.Order == "" {
		spec.Order = crime.OrderKeyAsc
	}
	return spec
}

// ChangesRequest asks for capped year-over-year changes of an aggregation. The
// grouping is always by year. Cap and TopN default to the service options when zero.
type ChangesRequest struct {
	AggregateRequest
	Cap  float64
	TopN int
}

// ChangesResult holds every change plus the ranked increases and decreases.
type ChangesResult struct {
	Cap       float64              `json:"cap"`
	Changes   []crime.ChangeRecord `json:"changes"`
	Increases []crime.ChangeRecord `json:"increases"`
	Decreases []crime.ChangeRecord `json:"decreases"`
}

// Changes aggregates in key order and computes capped period-over-period changes.
func (s *ReportService) Changes(ctx context.Context, req ChangesRequest) (*ChangesResult, error) {
	if req.Cap == 0 {
		req.Cap = s.opts.ChangeCap
	}
	if req.TopN == 0 {
		req.TopN = s.opts.ChangeTopN
	}
	req.Spec.By = crime.GroupByYear
	req.Spec.Order = crime.OrderKeyAsc

	series, err := s.Aggregate(ctx, req.AggregateRequest)
	if err != nil {
		return nil, err
	}
	changes, err := pipeline.CappedPercentChange(series, req.Cap)
	if err != nil {
		return nil, apperrors.Wrap(err, "invalid change request")
	}
	up, down, err := pipeline.RankChanges(changes, nil, req.TopN)
	if err != nil {
		return nil, apperrors.Wrap(err, "invalid change request")
	}
	return &ChangesResult{Cap: req.Cap, Changes: changes, Increases: up, Decreases: down}, nil
}

// Trend runs the trend section; rates default to the configured trend rates.
func (s *ReportService) Trend(_ context.Context, rates []crime.Metric) (*analysis.TrendResult, error) {
	t, err := s.loaded()
	if err != nil {
		return nil, err
	}
	if len(rates) == 0 {
		rates = s.opts.TrendRates
	}
	return wrapSection("trend", func() (*analysis.TrendResult, error) { return analysis.Trend(t, rates) })
}

// Distribution runs the crime-type distribution section.
func (s *ReportService) Distribution(_ context.Context, selected []crime.Metric, year int, focus crime.Metric) (*analysis.DistributionResult, error) {
	t, err := s.loaded()
	if err != nil {
		return nil, err
	}
	if len(selected) == 0 {
		selected = crime.CrimeTypes
	}
	return wrapSection("distribution", func() (*analysis.DistributionResult, error) {
		return analysis.Distribution(t, selected, year, focus)
	})
}

// Geography runs the jurisdiction comparison.
func (s *ReportService) Geography(_ context.Context, n int, jurisdiction string) (*analysis.GeographyResult, error) {
	t, err := s.loaded()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		n = s.opts.TopN
	}
	return wrapSection("geography", func() (*analysis.GeographyResult, error) {
		return analysis.Geography(t, n, jurisdiction)
	})
}

// Hotspots ranks jurisdictions by whole-period rate. A nil policy uses the configured one.
func (s *ReportService) Hotspots(_ context.Context, n int, crimes []crime.Metric, policy *analysis.HotspotPolicy) (*analysis.HotspotResult, error) {
	t, err := s.loaded()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		n = s.opts.TopN
	}
	p := s.opts.Hotspot
	if policy != nil {
		p = *policy
	}
	return wrapSection("hotspots", func() (*analysis.HotspotResult, error) {
		return analysis.Hotspots(t, n, crimes, p)
	})
}

// Correlation runs the population correlation section.
func (s *ReportService) Correlation(_ context.Context, metric crime.Metric) (*analysis.CorrelationResult, error) {
	t, err := s.loaded()
	if err != nil {
		return nil, err
	}
	if metric == "" {
		metric = s.opts.CorrelationMetric
	}
	return wrapSection("correlation", func() (*analysis.CorrelationResult, error) {
		return analysis.PopulationCorrelation(t, metric)
	})
}

// RateChanges runs the capped rate-of-change section.
func (s *ReportService) RateChanges(_ context.Context, selected []crime.Metric, topN int, cap float64) (*analysis.RateChangesResult, error) {
	t, err := s.loaded()
	if err != nil {
		return nil, err
	}
	if topN == 0 {
		topN = s.opts.ChangeTopN
	}
	if cap == 0 {
		cap = s.opts.ChangeCap
	}
	return wrapSection("rate changes", func() (*analysis.RateChangesResult, error) {
		return analysis.RateChanges(t, selected, topN, cap)
	})
}

// Report builds every section. It never fails on an empty table; the report says so.
func (s *ReportService) Report(_ context.Context) *analysis.Report {
	t := s.Table()
	start := time.Now()
	report := analysis.BuildReport(t, s.opts)
	s.logger.Info("report %s built for %s in %s (%d sections failed)",
		report.ID, t.Source, time.Since(start).Round(time.Millisecond), len(report.Errors))
	return report
}

func wrapSection[T any](name string, fn func() (T, error)) (T, error) {
	v, err := fn()
	if err != nil {
		return v, apperrors.Wrap(err, strings.ToUpper(name[:1])+name[1:]+" could not be computed")
	}
	return v, nil
}
