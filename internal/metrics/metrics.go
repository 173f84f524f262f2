// Package metrics provides Prometheus instrumentation for the
// orchestration engine, trimmed from the teacher's pkg/observability
// package down to the counters/histograms/gauges SPEC_FULL.md's §10
// "Metrics" section names: workflow/step outcomes, circuit breaker
// transitions, and the HTTP/WS surface.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every Prometheus collector the engine and server emit to.
// A nil *Metrics is valid and every method becomes a no-op, so callers
// never need a feature flag to skip instrumentation.
type Metrics struct {
	registry *prometheus.Registry

	workflowsStarted  *prometheus.CounterVec
	workflowsFinished *prometheus.CounterVec
	workflowDuration  *prometheus.HistogramVec
	workflowsActive   prometheus.Gauge

	stepsTotal    *prometheus.CounterVec
	stepDuration  *prometheus.HistogramVec
	replansTotal  *prometheus.CounterVec

	breakerTransitions *prometheus.CounterVec
	breakerState       *prometheus.GaugeVec

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	wsConnections prometheus.Gauge
}

// New creates a Metrics instance registered against a fresh registry,
// namespaced "taskforge".
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.workflowsStarted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "taskforge", Subsystem: "workflow", Name: "started_total",
		Help: "Total number of workflows started via ProcessRequest.",
	}, []string{"schema_type"})

	m.workflowsFinished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "taskforge", Subsystem: "workflow", Name: "finished_total",
		Help: "Total number of workflows that reached a terminal phase.",
	}, []string{"phase"})

	m.workflowDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "taskforge", Subsystem: "workflow", Name: "duration_seconds",
		Help:    "Wall-clock time from ProcessRequest to a terminal phase.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	}, []string{"phase"})

	m.workflowsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "taskforge", Subsystem: "workflow", Name: "active",
		Help: "Number of workflows currently tracked by the manager.",
	})

	m.stepsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "taskforge", Subsystem: "step", Name: "total",
		Help: "Total number of steps dispatched, by role and outcome.",
	}, []string{"role", "status"})

	m.stepDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "taskforge", Subsystem: "step", Name: "duration_seconds",
		Help:    "Per-step dispatch duration in seconds.",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	}, []string{"role"})

	m.replansTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "taskforge", Subsystem: "workflow", Name: "replans_total",
		Help: "Total number of successful replans.",
	}, []string{"schema_type"})

	m.breakerTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "taskforge", Subsystem: "breaker", Name: "transitions_total",
		Help: "Total number of circuit breaker state transitions.",
	}, []string{"agent_id", "from", "to"})

	m.breakerState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "taskforge", Subsystem: "breaker", Name: "state",
		Help: "Current circuit state per agent (0=CLOSED, 1=HALF_OPEN, 2=OPEN).",
	}, []string{"agent_id"})

	m.httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "taskforge", Subsystem: "http", Name: "requests_total",
		Help: "Total HTTP requests served by the server adapter.",
	}, []string{"method", "path", "status"})

	m.httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "taskforge", Subsystem: "http", Name: "duration_seconds",
		Help:    "HTTP request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	m.wsConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "taskforge", Subsystem: "ws", Name: "connections",
		Help: "Number of currently open event-stream WebSocket connections.",
	})

	m.registry.MustRegister(
		m.workflowsStarted, m.workflowsFinished, m.workflowDuration, m.workflowsActive,
		m.stepsTotal, m.stepDuration, m.replansTotal,
		m.breakerTransitions, m.breakerState,
		m.httpRequests, m.httpDuration, m.wsConnections,
	)
	return m
}

func (m *Metrics) RecordWorkflowStarted(schemaType string) {
	if m == nil {
		return
	}
	m.workflowsStarted.WithLabelValues(schemaType).Inc()
}

func (m *Metrics) RecordWorkflowFinished(phase string, duration time.Duration) {
	if m == nil {
		return
	}
	m.workflowsFinished.WithLabelValues(phase).Inc()
	m.workflowDuration.WithLabelValues(phase).Observe(duration.Seconds())
}

func (m *Metrics) SetWorkflowsActive(n int) {
	if m == nil {
		return
	}
	m.workflowsActive.Set(float64(n))
}

func (m *Metrics) RecordStep(role, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.stepsTotal.WithLabelValues(role, status).Inc()
	m.stepDuration.WithLabelValues(role).Observe(duration.Seconds())
}

func (m *Metrics) RecordReplan(schemaType string) {
	if m == nil {
		return
	}
	m.replansTotal.WithLabelValues(schemaType).Inc()
}

// breakerStateValue maps a circuitbreaker.State string to the gauge
// encoding documented on breakerState's Help text. Kept as a plain string
// switch here rather than importing internal/circuitbreaker, so metrics
// has no dependency on the engine packages it instruments.
func breakerStateValue(state string) float64 {
	switch state {
	case "HALF_OPEN":
		return 1
	case "OPEN":
		return 2
	default:
		return 0
	}
}

func (m *Metrics) RecordBreakerTransition(agentID, from, to string) {
	if m == nil {
		return
	}
	m.breakerTransitions.WithLabelValues(agentID, from, to).Inc()
	m.breakerState.WithLabelValues(agentID).Set(breakerStateValue(to))
}

func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, path, status).Inc()
	m.httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

func (m *Metrics) IncWSConnections() {
	if m == nil {
		return
	}
	m.wsConnections.Inc()
}

func (m *Metrics) DecWSConnections() {
	if m == nil {
		return
	}
	m.wsConnections.Dec()
}

// Handler serves the Prometheus text exposition format. A nil Metrics
// serves 503, matching the teacher's "metrics disabled" convention.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
