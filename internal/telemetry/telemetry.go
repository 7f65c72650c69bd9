// Package telemetry provides Prometheus metrics and OpenTelemetry tracing for
// the matcher.
package telemetry

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/north-cloud/huv-matcher/internal/aimatch"
	"github.com/north-cloud/huv-matcher/internal/domain"
)

const serviceName = "huv-matcher"

// Metrics holds all matcher Prometheus metrics
type Metrics struct {
	// Engine metrics
	Matches         *prometheus.CounterVec
	MatchDuration   prometheus.Histogram
	ShortCircuits   prometheus.Counter
	WinningVotes    *prometheus.CounterVec
	MatchConfidence prometheus.Histogram

	// AI metrics
	AIRequests *prometheus.CounterVec
	AILatency  prometheus.Histogram

	// Batch metrics
	BatchItems    *prometheus.CounterVec
	BatchDuration prometheus.Histogram
}

// Provider wraps telemetry providers. It owns its registry so several
// providers can coexist in one process.
type Provider struct {
	Tracer   trace.Tracer
	Metrics  *Metrics
	registry *prometheus.Registry
}

// NewProvider initializes telemetry with Prometheus metrics
func NewProvider() *Provider {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Provider{
		Tracer:   otel.Tracer(serviceName),
		Metrics:  initMetrics(promauto.With(reg)),
		registry: reg,
	}
}

// Handler returns the Prometheus HTTP handler for the /metrics endpoint
func (p *Provider) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{Registry: p.registry})
}

// Registry exposes the underlying registry.
func (p *Provider) Registry() *prometheus.Registry {
	return p.registry
}

func initMetrics(f promauto.Factory) *Metrics {
	m := &Metrics{}
	initEngineMetrics(f, m)
	initAIMetrics(f, m)
	initBatchMetrics(f, m)
	return m
}

func initEngineMetrics(f promauto.Factory, m *Metrics) {
	m.Matches = f.NewCounterVec(prometheus.CounterOpts{
		Name: "huv_matches_total",
		Help: "Match decisions by method and outcome",
	}, []string{"method", "outcome"})

	m.MatchDuration = f.NewHistogram(prometheus.HistogramOpts{
		Name:    "huv_match_duration_seconds",
		Help:    "Time spent in one heuristic match",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1},
	})

	m.ShortCircuits = f.NewCounter(prometheus.CounterOpts{
		Name: "huv_short_circuits_total",
		Help: "Matches decided by an early strategy",
	})

	m.WinningVotes = f.NewCounterVec(prometheus.CounterOpts{
		Name: "huv_winning_strategy_total",
		Help: "Matched results by winning strategy",
	}, []string{"strategy"})

	m.MatchConfidence = f.NewHistogram(prometheus.HistogramOpts{
		Name:    "huv_match_confidence",
		Help:    "Confidence of matched results",
		Buckets: []float64{50, 60, 70, 80, 85, 90, 95, 100},
	})
}

func initAIMetrics(f promauto.Factory, m *Metrics) {
	m.AIRequests = f.NewCounterVec(prometheus.CounterOpts{
		Name: "huv_ai_requests_total",
		Help: "AI match calls by terminal state",
	}, []string{"state"})

	m.AILatency = f.NewHistogram(prometheus.HistogramOpts{
		Name:    "huv_ai_duration_seconds",
		Help:    "Time for one AI match call including fallback",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60},
	})
}

func initBatchMetrics(f promauto.Factory, m *Metrics) {
	m.BatchItems = f.NewCounterVec(prometheus.CounterOpts{
		Name: "huv_batch_items_total",
		Help: "Batch items by mode and outcome",
	}, []string{"mode", "outcome"})

	m.BatchDuration = f.NewHistogram(prometheus.HistogramOpts{
		Name:    "huv_batch_duration_seconds",
		Help:    "Wall time of one batch run",
		Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
	})
}

// ObserveMatch records one engine decision.
func (p *Provider) ObserveMatch(result *domain.MatchResult, shortCircuited bool, elapsed time.Duration) {
	p.Metrics.MatchDuration.Observe(elapsed.Seconds())
	p.Metrics.Matches.WithLabelValues(string(result.Method), outcome(result)).Inc()
	if shortCircuited {
		p.Metrics.ShortCircuits.Inc()
	}
	if result.Matched() {
		p.Metrics.WinningVotes.WithLabelValues(result.Strategy).Inc()
		p.Metrics.MatchConfidence.Observe(result.Confidence)
	}
}

// ObserveAI records the terminal state of one AI call.
func (p *Provider) ObserveAI(terminal aimatch.State, elapsed time.Duration) {
	p.Metrics.AIRequests.WithLabelValues(string(terminal)).Inc()
	p.Metrics.AILatency.Observe(elapsed.Seconds())
}

// ObserveBatch records a finished run.
func (p *Provider) ObserveBatch(run *domain.BatchRun) {
	p.Metrics.BatchDuration.Observe(run.FinishedAt.Sub(run.StartedAt).Seconds())
	for i := range run.Results {
		p.Metrics.BatchItems.WithLabelValues(string(run.Mode), outcome(&run.Results[i])).Inc()
	}
}

func outcome(r *domain.MatchResult) string {
	switch {
	case r.Failed():
		return "failed"
	case r.Matched():
		return "matched"
	default:
		return "unmatched"
	}
}

// StartSpan starts a new tracing span
func (p *Provider) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return p.Tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}
