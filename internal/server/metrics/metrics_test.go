package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()

	mfs, err := reg.Gather()
	require.NoError(t, err)

	var sum float64
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			sum += m.GetCounter().GetValue()
		}
	}
	return sum
}

func TestNew_RegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Operations.WithLabelValues("login", ResultOK).Inc()
	m.Operations.WithLabelValues("login", ResultError).Inc()
	m.Failures.WithLabelValues("login", "invalid_credentials").Inc()
	m.ReuseDetected.Inc()
	m.CleanupDeleted.Add(3)
	m.Duration.WithLabelValues("login").Observe(0.01)

	assert.Equal(t, 2.0, counterValue(t, reg, "authkeeper_auth_operations_total"))
	assert.Equal(t, 1.0, counterValue(t, reg, "authkeeper_auth_failures_total"))
	assert.Equal(t, 1.0, counterValue(t, reg, "authkeeper_auth_refresh_reuse_detected_total"))
	assert.Equal(t, 3.0, counterValue(t, reg, "authkeeper_cleanup_deleted_tokens_total"))
}

func TestNew_DoubleRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	assert.Panics(t, func() { New(reg) })
}

func TestNewNop_Independent(t *testing.T) {
	assert.NotPanics(t, func() {
		NewNop()
		NewNop()
	})
}
