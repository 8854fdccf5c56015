// Package metrics holds the Prometheus collectors wired around the session
// registry, the request correlator, the HTTP+SSE transport, and the
// authentication gate.
//
// Grounded on the teacher's internal/adapter/inbound/http/metrics.go, which
// built the same shape of Metrics struct (a bundle of promauto-registered
// collectors, namespace per-service) for a security proxy. Renamed to this
// server's own domain (sessions, RPC dispatch, auth) rather than the
// teacher's proxy/policy/rate-limit concerns, which have no equivalent here.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is the full set of collectors a running core registers. Construct
// one with New and pass it to the transports, the session registry poller,
// and the auth gate; nil is never a valid *Metrics, but individual
// collectors are safe zero-value Prometheus types so a caller that only
// wires a subset still gets correct behavior from the rest.
type Metrics struct {
	RequestsTotal     *prometheus.CounterVec
	RequestDuration   *prometheus.HistogramVec
	ActiveSessions    prometheus.Gauge
	PendingRequests   prometheus.Gauge
	DispatchDuration  *prometheus.HistogramVec
	AuthFailuresTotal prometheus.Counter
	ToolInvocations   *prometheus.CounterVec
}

// New creates and registers every collector against reg. Pass
// prometheus.NewRegistry() for an isolated registry (e.g. in tests) or
// prometheus.DefaultRegisterer to expose them on the process-wide /metrics
// endpoint.
func New(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		RequestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "mcpcore",
				Name:      "http_requests_total",
				Help:      "Total number of inbound HTTP requests to the SSE transport, by method and status class",
			},
			[]string{"method", "status"},
		),
		RequestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "mcpcore",
				Name:      "http_request_duration_seconds",
				Help:      "Inbound HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		ActiveSessions: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: "mcpcore",
				Name:      "active_sessions",
				Help:      "Number of sessions currently registered in the session registry",
			},
		),
		PendingRequests: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: "mcpcore",
				Name:      "pending_requests",
				Help:      "Number of requests currently awaiting a response in the correlator",
			},
		),
		DispatchDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "mcpcore",
				Name:      "dispatch_duration_seconds",
				Help:      "Time an inbound request's handler took to run, from invocation to return, by method",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		AuthFailuresTotal: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "mcpcore",
				Name:      "auth_failures_total",
				Help:      "Total number of bearer-token requests rejected by the auth gate",
			},
		),
		ToolInvocations: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "mcpcore",
				Name:      "tool_invocations_total",
				Help:      "Total tools/call dispatches, by tool name and outcome",
			},
			[]string{"tool", "outcome"},
		),
	}
}

// Middleware wraps an HTTP handler to record RequestsTotal and
// RequestDuration. Grounded on the teacher's MetricsMiddleware
// (internal/adapter/inbound/http/metrics_middleware.go); the /metrics and
// /healthz exemption and the statusRecorder wrapper are carried over
// unchanged, since both concerns are orthogonal to the rename.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" || r.URL.Path == "/healthz" {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		wrapped := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		duration := time.Since(start).Seconds()
		method := r.Method
		status := statusToLabel(wrapped.status)

		m.RequestDuration.WithLabelValues(method).Observe(duration)
		m.RequestsTotal.WithLabelValues(method, status).Inc()
	})
}

// ObserveDispatch records one Dispatch call's handler duration for method.
func (m *Metrics) ObserveDispatch(method string, d time.Duration) {
	m.DispatchDuration.WithLabelValues(method).Observe(d.Seconds())
}

// RecordToolInvocation records one tools/call outcome ("ok" or "error").
func (m *Metrics) RecordToolInvocation(tool string, isError bool) {
	outcome := "ok"
	if isError {
		outcome = "error"
	}
	m.ToolInvocations.WithLabelValues(tool, outcome).Inc()
}

// RecordAuthFailure increments AuthFailuresTotal. Pass this as
// authgate.Config.OnFailure.
func (m *Metrics) RecordAuthFailure() {
	m.AuthFailuresTotal.Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Flush delegates to the underlying ResponseWriter when it supports
// http.Flusher, which the SSE transport's long-lived GET connection needs.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func statusToLabel(code int) string {
	if code >= 200 && code < 400 {
		return "ok"
	}
	return "error"
}
