// Package metrics exposes Prometheus collectors for submissions,
// evaluations, lifecycle transitions and HTTP traffic. All methods are safe
// on a nil *Metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Evaluation outcomes
const (
	EvalOK          = "ok"
	EvalDisabled    = "disabled"
	EvalUnavailable = "unavailable"
	EvalMalformed   = "malformed"
)

// Metrics holds the collectors
type Metrics struct {
	registry *prometheus.Registry

	submissions        *prometheus.CounterVec
	pointsAwarded      prometheus.Counter
	doseApplied        prometheus.Counter
	evaluations        *prometheus.CounterVec
	evaluationDuration prometheus.Histogram
	lifecycle          *prometheus.CounterVec
	requests           *prometheus.CounterVec
	requestDuration    *prometheus.HistogramVec
}

// New creates and registers all collectors on a fresh registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		submissions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "radquest_submissions_total",
				Help: "Total number of submissions by task kind and result",
			},
			[]string{"kind", "result"},
		),
		pointsAwarded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "radquest_points_awarded_total",
			Help: "Knowledge points awarded across all players",
		}),
		doseApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "radquest_dose_msv_total",
			Help: "Dose in mSv applied across all players",
		}),
		evaluations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "radquest_evaluations_total",
				Help: "Reasoning evaluations by outcome",
			},
			[]string{"outcome"},
		),
		evaluationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "radquest_evaluation_duration_seconds",
			Help:    "Duration of reasoning evaluations",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 20},
		}),
		lifecycle: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "radquest_level_transitions_total",
				Help: "Level lifecycle transitions by target state",
			},
			[]string{"state"},
		),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests",
				Buckets: []float64{0.1, 0.5, 1, 2, 5},
			},
			[]string{"method", "endpoint"},
		),
	}

	m.registry.MustRegister(
		m.submissions,
		m.pointsAwarded,
		m.doseApplied,
		m.evaluations,
		m.evaluationDuration,
		m.lifecycle,
		m.requests,
		m.requestDuration,
	)
	return m
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the metrics in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// SubmissionRecorded counts a stored submission and its delta
func (m *Metrics) SubmissionRecorded(kind string, points int, dose float64) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(kind, "recorded").Inc()
	m.pointsAwarded.Add(float64(points))
	if dose > 0 {
		m.doseApplied.Add(dose)
	}
}

// SubmissionRejected counts a submission that wrote nothing
func (m *Metrics) SubmissionRejected(kind, reason string) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(kind, reason).Inc()
}

// EvaluationObserved records the outcome and duration of one evaluation
func (m *Metrics) EvaluationObserved(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.evaluations.WithLabelValues(outcome).Inc()
	m.evaluationDuration.Observe(d.Seconds())
}

// LevelTransition counts a lifecycle state change
func (m *Metrics) LevelTransition(state string) {
	if m == nil {
		return
	}
	m.lifecycle.WithLabelValues(state).Inc()
}

// RequestObserved records one HTTP request
func (m *Metrics) RequestObserved(method, endpoint string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, endpoint, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(method, endpoint).Observe(d.Seconds())
}
