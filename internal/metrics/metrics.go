// Package metrics holds the Prometheus collectors for the evaluation queue,
// model provider calls and the HTTP API. A nil *Metrics is a valid no-op.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "evidence"

// Metrics stores the collectors used by the queue, providers and HTTP host.
type Metrics struct {
	registry *prometheus.Registry

	batchesTotal            *prometheus.CounterVec
	queueDepth              prometheus.Gauge
	batchDuration           prometheus.Histogram
	documentEvaluations     *prometheus.CounterVec
	providerRequestsTotal   *prometheus.CounterVec
	providerRequestDuration *prometheus.HistogramVec
	circuitState            *prometheus.GaugeVec
	httpRequestsTotal       *prometheus.CounterVec
	httpRequestDuration     *prometheus.HistogramVec
}

// New creates a Metrics with its own registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		batchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "batches_total",
				Help:      "Batches that reached a terminal status.",
			},
			[]string{"status"},
		),
		queueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "queue_depth",
				Help:      "Batches waiting or processing.",
			},
		),
		batchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "batch_duration_seconds",
				Help:      "Wall time from batch start to terminal status.",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
			},
		),
		documentEvaluations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "document_evaluations_total",
				Help:      "Per-document evaluations by mode and outcome.",
			},
			[]string{"mode", "outcome"},
		),
		providerRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_requests_total",
				Help:      "Model provider calls by provider and outcome.",
			},
			[]string{"provider", "outcome"},
		),
		providerRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "provider_request_duration_seconds",
				Help:      "Model provider call duration in seconds, retries included.",
				Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
			},
			[]string{"provider"},
		),
		circuitState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "provider_circuit_state",
				Help:      "Provider circuit breaker state (0 closed, 1 open, 2 half-open).",
			},
			[]string{"provider"},
		),
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests by method, route and status.",
			},
			[]string{"method", "route", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds by method and route.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.batchesTotal,
		m.queueDepth,
		m.batchDuration,
		m.documentEvaluations,
		m.providerRequestsTotal,
		m.providerRequestDuration,
		m.circuitState,
		m.httpRequestsTotal,
		m.httpRequestDuration,
	)

	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// SetQueueDepth records the number of pending batches.
func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}

// ObserveBatch records a batch reaching a terminal status.
func (m *Metrics) ObserveBatch(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.batchesTotal.WithLabelValues(label(status)).Inc()
	m.batchDuration.Observe(max(d.Seconds(), 0))
}

// IncDocumentEvaluation counts one evaluation of one document in one mode.
func (m *Metrics) IncDocumentEvaluation(mode string, success bool) {
	if m == nil {
		return
	}
	m.documentEvaluations.WithLabelValues(label(mode), outcome(success)).Inc()
}

// ObserveProviderCall records one guarded provider call.
func (m *Metrics) ObserveProviderCall(provider string, success bool, d time.Duration) {
	if m == nil {
		return
	}
	p := label(provider)
	m.providerRequestsTotal.WithLabelValues(p, outcome(success)).Inc()
	m.providerRequestDuration.WithLabelValues(p).Observe(max(d.Seconds(), 0))
}

// SetCircuitState records a breaker state as its numeric value.
func (m *Metrics) SetCircuitState(provider string, state int) {
	if m == nil {
		return
	}
	m.circuitState.WithLabelValues(label(provider)).Set(float64(state))
}

// Middleware records request counts and latency per chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := routePattern(r)
		if route == "/metrics" {
			return
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		method := strings.ToUpper(r.Method)
		m.httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
		m.httpRequestDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	})
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

func outcome(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

func label(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "unknown"
	}
	return s
}
