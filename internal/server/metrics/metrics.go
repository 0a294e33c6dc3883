// Package metrics holds the Prometheus collectors of the auth server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "authkeeper"

// Result label values.
const (
	ResultOK    = "ok"
	ResultError = "error"
)

type Metrics struct {
	// Operations counts gateway operations by op and result.
	Operations *prometheus.CounterVec
	// Failures counts failed gateway operations by op and reason.
	Failures *prometheus.CounterVec
	// Duration observes gateway operation latency by op.
	Duration *prometheus.HistogramVec
	// ReuseDetected counts refreshes with an already revoked token.
	ReuseDetected prometheus.Counter
	// ReuseRevoked counts refresh tokens revoked by the reuse policy.
	ReuseRevoked prometheus.Counter

	CleanupRuns    *prometheus.CounterVec
	CleanupDeleted prometheus.Counter
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		Operations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "operations_total",
			Help:      "Auth operations by operation and result.",
		}, []string{"op", "result"}),
		Failures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "failures_total",
			Help:      "Failed auth operations by operation and reason.",
		}, []string{"op", "reason"}),
		Duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "operation_duration_seconds",
			Help:      "Auth operation latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		ReuseDetected: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "refresh_reuse_detected_total",
			Help:      "Refresh attempts with an already revoked token.",
		}),
		ReuseRevoked: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "refresh_reuse_revoked_tokens_total",
			Help:      "Refresh tokens revoked after reuse was detected.",
		}),
		CleanupRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cleanup",
			Name:      "runs_total",
			Help:      "Cleanup sweeps by result.",
		}, []string{"result"}),
		CleanupDeleted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cleanup",
			Name:      "deleted_tokens_total",
			Help:      "Refresh token rows purged by cleanup.",
		}),
	}
}

// NewNop returns collectors that are not registered anywhere.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}
