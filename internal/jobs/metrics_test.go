package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackerRecordsOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	require.NoError(t, m.Track("transition").End(nil))
	failure := errors.New("boom")
	require.ErrorIs(t, m.Track("transition").End(failure), failure)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("transition", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("transition", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("transition")))
}

func TestCountersIgnoreNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.AddTransitions("signed", 3)
		m.ObserveRegeneration(nil)
		_ = m.Track("transition").End(nil)
	})
}

func TestTransitionAndRegenerationCounters(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.AddTransitions("signed", 2)
	m.AddTransitions("signed", 0)
	m.ObserveRegeneration(nil)
	m.ObserveRegeneration(errors.New("save failed"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.transitions.WithLabelValues("signed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.regenerations.WithLabelValues("failure")))
}
