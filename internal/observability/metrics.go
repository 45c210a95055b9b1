package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// BuildMetrics holds the Prometheus collectors for loader runs, code
// generation and whole compilations. Each instance owns its registry so
// tests and concurrent builds never collide on global registration.
type BuildMetrics struct {
	registry *prometheus.Registry

	loaderRunsTotal     *prometheus.CounterVec
	loaderFailuresTotal *prometheus.CounterVec
	loaderDuration      prometheus.Histogram
	cacheHitsTotal      prometheus.Counter

	codegenModulesTotal  prometheus.Counter
	codegenVisitorsTotal prometheus.Counter
	codegenDuration      prometheus.Histogram

	compilationsTotal   *prometheus.CounterVec
	compilationDuration prometheus.Histogram
}

// NewBuildMetrics creates and registers all build collectors.
func NewBuildMetrics() *BuildMetrics {
	reg := prometheus.NewRegistry()
	m := &BuildMetrics{
		registry: reg,
		loaderRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rspack_loader_runs_total",
				Help: "Total number of loader pipeline runs",
			},
			[]string{"outcome"},
		),
		loaderFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rspack_loader_failures_total",
				Help: "Total number of loader failures by loader and phase",
			},
			[]string{"loader", "phase"},
		),
		loaderDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "rspack_loader_duration_seconds",
				Help:    "Loader pipeline duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		cacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "rspack_loader_cache_hits_total",
				Help: "Total number of loader results served from cache",
			},
		),
		codegenModulesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "rspack_codegen_modules_total",
				Help: "Total number of modules generated",
			},
		),
		codegenVisitorsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "rspack_codegen_visitors_total",
				Help: "Total number of AST visitors applied",
			},
		),
		codegenDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "rspack_codegen_duration_seconds",
				Help:    "Per-module code generation duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		compilationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rspack_compilations_total",
				Help: "Total number of compilations",
			},
			[]string{"status"},
		),
		compilationDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "rspack_compilation_duration_seconds",
				Help:    "Compilation duration in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
			},
		),
	}
	reg.MustRegister(
		m.loaderRunsTotal,
		m.loaderFailuresTotal,
		m.loaderDuration,
		m.cacheHitsTotal,
		m.codegenModulesTotal,
		m.codegenVisitorsTotal,
		m.codegenDuration,
		m.compilationsTotal,
		m.compilationDuration,
	)
	return m
}

// Registry exposes the underlying registry for gathering.
func (m *BuildMetrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the metrics in the Prometheus text format.
func (m *BuildMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordLoaderRun records one loader pipeline.
func (m *BuildMetrics) RecordLoaderRun(duration time.Duration, shortCircuited bool, err error) {
	outcome := "ok"
	switch {
	case err != nil:
		outcome = "error"
	case shortCircuited:
		outcome = "short_circuit"
	}
	m.loaderRunsTotal.WithLabelValues(outcome).Inc()
	m.loaderDuration.Observe(duration.Seconds())
}

// RecordLoaderFailure attributes a failure to a loader and phase.
func (m *BuildMetrics) RecordLoaderFailure(loader, phase string) {
	m.loaderFailuresTotal.WithLabelValues(loader, phase).Inc()
}

// RecordCacheHit counts a loader result served from cache.
func (m *BuildMetrics) RecordCacheHit() {
	m.cacheHitsTotal.Inc()
}

// RecordCodegen records one generated module.
func (m *BuildMetrics) RecordCodegen(duration time.Duration, visitors int) {
	m.codegenModulesTotal.Inc()
	m.codegenVisitorsTotal.Add(float64(visitors))
	m.codegenDuration.Observe(duration.Seconds())
}

// RecordCompilation records a finished compilation.
func (m *BuildMetrics) RecordCompilation(duration time.Duration, success bool) {
	status := "success"
	if !success {
		status = "failure"
	}
	m.compilationsTotal.WithLabelValues(status).Inc()
	m.compilationDuration.Observe(duration.Seconds())
}
