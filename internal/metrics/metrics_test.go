package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCalendarMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCalendarMetrics(reg)

	m.ObserveBackend("list", "200", 0.02)
	m.ObserveBackend("list", "200", 0.03)
	m.ObserveExpansion(2, 5)
	m.ObserveSkipped("missing_grid_position")
	m.ObserveOverlap()
	m.ObserveCache(true)
	m.ObserveCache(false)
	m.ObserveHTTP("/api/week", 200)
	m.SetSessions(3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.backendTotal.WithLabelValues("list", "200")))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.expandedTotal.WithLabelValues("virtual")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheTotal.WithLabelValues("miss")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.sessions))
}

func TestCalendarMetricsNilSafe(t *testing.T) {
	var m *CalendarMetrics
	m.ObserveBackend("list", "error", 0.1)
	m.ObserveExpansion(1, 1)
	m.ObserveSkipped("x")
	m.ObserveOverlap()
	m.ObserveCache(true)
	m.ObserveHTTP("/", 500)
	m.SetSessions(0)
}
