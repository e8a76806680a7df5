// Package metrics exposes Prometheus counters for the model gateway, the
// pipelines built on it, and the HTTP API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "assessor"

// Metrics holds the collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	llmCalls        *prometheus.CounterVec
	llmDuration     *prometheus.HistogramVec
	extractions     *prometheus.CounterVec
	extractedTotal  prometheus.Counter
	gradings        *prometheus.CounterVec
	adjustments     *prometheus.CounterVec
	decisions       *prometheus.CounterVec
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// New creates the collectors and registers them with Go runtime metrics.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		llmCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_calls_total",
			Help:      "Model gateway attempts by outcome.",
		}, []string{"outcome"}),
		llmDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_call_duration_seconds",
			Help:      "Duration of model gateway attempts.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"outcome"}),
		extractions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extractions_total",
			Help:      "Question extractions by outcome.",
		}, []string{"outcome"}),
		extractedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extracted_questions_total",
			Help:      "Questions returned by successful extractions.",
		}),
		gradings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gradings_total",
			Help:      "Gradings by source and outcome.",
		}, []string{"source", "outcome"}),
		adjustments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "grading_adjustments_total",
			Help:      "Corrections applied to model grading results.",
		}, []string{"kind"}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "plagiarism_decisions_total",
			Help:      "Recorded plagiarism decisions.",
		}, []string{"decision"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 30},
		}, []string{"method", "route"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.llmCalls, m.llmDuration, m.extractions, m.extractedTotal,
		m.gradings, m.adjustments, m.decisions, m.requests, m.requestDuration,
	)
	return m
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveCall records one model gateway attempt.
func (m *Metrics) ObserveCall(outcome string, elapsed time.Duration) {
	m.llmCalls.WithLabelValues(outcome).Inc()
	m.llmDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

// ObserveExtraction records one extraction and the questions it produced.
func (m *Metrics) ObserveExtraction(outcome string, questions int) {
	m.extractions.WithLabelValues(outcome).Inc()
	if questions > 0 {
		m.extractedTotal.Add(float64(questions))
	}
}

// ObserveGrading records one grading attempt.
func (m *Metrics) ObserveGrading(source, outcome string) {
	m.gradings.WithLabelValues(source, outcome).Inc()
}

// ObserveAdjustment records a correction to a grading result.
func (m *Metrics) ObserveAdjustment(kind string) {
	m.adjustments.WithLabelValues(kind).Inc()
}

// ObserveDecision records a plagiarism decision.
func (m *Metrics) ObserveDecision(decision string) {
	m.decisions.WithLabelValues(decision).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Middleware counts requests by chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.requests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.requestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
