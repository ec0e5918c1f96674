// Package metrics collects the Prometheus counters and histograms SPEC_FULL.md's
// ambient stack promises for the Execution Engine (C9) and Auth Orchestrator
// (C5): how many actions ran and how long they took, how many token
// refreshes happened and whether they succeeded.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry holds every metric this module exports, registered once at
// process start and shared by every collaborator that records against it.
type Registry struct {
	ExecutionsTotal   *prometheus.CounterVec
	ExecutionDuration *prometheus.HistogramVec

	RefreshesTotal *prometheus.CounterVec
}

// New builds and registers the full metric set against reg. Pass
// prometheus.DefaultRegisterer in production; tests should pass a fresh
// prometheus.NewRegistry() to avoid duplicate-registration panics across
// parallel test binaries.
func New(reg prometheus.Registerer) *Registry {
	m := &Registry{
		ExecutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "openact",
				Subsystem: "execution",
				Name:      "actions_total",
				Help:      "Total number of action executions by terminal status",
			},
			[]string{"status"},
		),
		ExecutionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "openact",
				Subsystem: "execution",
				Name:      "request_duration_seconds",
				Help:      "Action execution duration in seconds, from resolve through response recording",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"status"},
		),
		RefreshesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "openact",
				Subsystem: "auth",
				Name:      "refreshes_total",
				Help:      "Total number of credential refresh/obtain attempts by outcome",
			},
			[]string{"status"},
		),
	}

	reg.MustRegister(m.ExecutionsTotal, m.ExecutionDuration, m.RefreshesTotal)
	return m
}

// ObserveExecution records one action execution's terminal status and
// wall-clock duration.
func (m *Registry) ObserveExecution(status string, seconds float64) {
	if m == nil {
		return
	}
	m.ExecutionsTotal.WithLabelValues(status).Inc()
	m.ExecutionDuration.WithLabelValues(status).Observe(seconds)
}

// ObserveRefresh records one refresh/obtain attempt's outcome ("success" or
// "failure").
func (m *Registry) ObserveRefresh(status string) {
	if m == nil {
		return
	}
	m.RefreshesTotal.WithLabelValues(status).Inc()
}
