// Package metrics exports assessment counters and latencies to Prometheus.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/govai-platform/govai/pkg/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "govai"

// Metrics holds the collectors on a private registry. It implements
// service.Observer.
type Metrics struct {
	registry    *prometheus.Registry
	assessments *prometheus.CounterVec
	failures    *prometheus.CounterVec
	persistence prometheus.Counter
	duration    prometheus.Histogram
	requests    *prometheus.CounterVec
	modelInfo   *prometheus.GaugeVec
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		assessments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "assessments_total",
			Help:      "Completed contract assessments by risk level and scoring mode.",
		}, []string{"risk_level", "mode"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "assessment_failures_total",
			Help:      "Failed contract assessments by the stage that failed.",
		}, []string{"stage"}),
		persistence: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persistence_warnings_total",
			Help:      "Assessments that could not be written to the store.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "assessment_duration_seconds",
			Help:      "End to end assessment latency.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"route", "code"}),
		modelInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "model_info",
			Help:      "Loaded model configuration; value is always 1.",
		}, []string{"tier", "model", "mode"}),
	}

	m.registry.MustRegister(
		m.assessments,
		m.failures,
		m.persistence,
		m.duration,
		m.requests,
		m.modelInfo,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// OnEvent records assessment outcomes.
func (m *Metrics) OnEvent(_ context.Context, e service.Event) {
	switch {
	case e.Stage == service.StageFailed:
		m.failures.WithLabelValues(string(e.FailedStage)).Inc()
		m.duration.Observe(e.Elapsed.Seconds())
	case e.Stage == service.StagePersisted && errors.Is(e.Err, service.ErrPersistence):
		m.persistence.Inc()
	case e.Stage == service.StageResponded && e.Assessment != nil:
		m.assessments.WithLabelValues(string(e.Assessment.RiskLevel), e.Assessment.Mode).Inc()
		m.duration.Observe(e.Elapsed.Seconds())
	}
}

// SetModel publishes the loaded model configuration.
func (m *Metrics) SetModel(tier, model, mode string) {
	m.modelInfo.Reset()
	m.modelInfo.WithLabelValues(tier, model, mode).Set(1)
}

// ObserveRequest counts one HTTP request.
func (m *Metrics) ObserveRequest(route string, code int) {
	m.requests.WithLabelValues(route, strconv.Itoa(code)).Inc()
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
