package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// CalendarMetrics exposes counters/histograms for the calendar service.
// A nil *CalendarMetrics is valid and records nothing.
type CalendarMetrics struct {
	backendTotal   *prometheus.CounterVec
	backendLatency *prometheus.HistogramVec
	expandedTotal  *prometheus.CounterVec
	skippedTotal   *prometheus.CounterVec
	overlapsTotal  prometheus.Counter
	cacheTotal     *prometheus.CounterVec
	httpTotal      *prometheus.CounterVec
	sessions       prometheus.Gauge
}

func NewCalendarMetrics(reg prometheus.Registerer) *CalendarMetrics {
	m := &CalendarMetrics{
		backendTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "klinikcal",
			Name:      "backend_requests_total",
			Help:      "Requests sent to the appointment backend",
		}, []string{"op", "status"}),
		backendLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "klinikcal",
			Name:      "backend_request_seconds",
			Help:      "Latency of appointment backend requests",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		expandedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "klinikcal",
			Name:      "expanded_instances_total",
			Help:      "Instances produced by series expansion",
		}, []string{"kind"}),
		skippedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "klinikcal",
			Name:      "skipped_records_total",
			Help:      "Malformed records skipped during expansion",
		}, []string{"reason"}),
		overlapsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "klinikcal",
			Name:      "overlapping_instances_total",
			Help:      "Grid cells claimed by more than one instance",
		}),
		cacheTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "klinikcal",
			Name:      "cache_lookups_total",
			Help:      "Week cache lookups",
		}, []string{"result"}),
		httpTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "klinikcal",
			Name:      "http_requests_total",
			Help:      "HTTP requests served",
		}, []string{"route", "code"}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "klinikcal",
			Name:      "live_sessions",
			Help:      "Calendar sessions currently held in memory",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.backendTotal, m.backendLatency, m.expandedTotal, m.skippedTotal,
		m.overlapsTotal, m.cacheTotal, m.httpTotal, m.sessions)
	return m
}

func (m *CalendarMetrics) ObserveBackend(op, status string, seconds float64) {
	if m == nil {
		return
	}
	m.backendTotal.WithLabelValues(op, status).Inc()
	m.backendLatency.WithLabelValues(op).Observe(seconds)
}

func (m *CalendarMetrics) ObserveExpansion(real, virtual int) {
	if m == nil {
		return
	}
	m.expandedTotal.WithLabelValues("real").Add(float64(real))
	m.expandedTotal.WithLabelValues("virtual").Add(float64(virtual))
}

func (m *CalendarMetrics) ObserveSkipped(reason string) {
	if m == nil {
		return
	}
	m.skippedTotal.WithLabelValues(reason).Inc()
}

func (m *CalendarMetrics) ObserveOverlap() {
	if m == nil {
		return
	}
	m.overlapsTotal.Inc()
}

func (m *CalendarMetrics) ObserveCache(hit bool) {
	if m == nil {
		return
	}
	label := "miss"
	if hit {
		label = "hit"
	}
	m.cacheTotal.WithLabelValues(label).Inc()
}

func (m *CalendarMetrics) ObserveHTTP(route string, code int) {
	if m == nil {
		return
	}
	m.httpTotal.WithLabelValues(route, strconv.Itoa(code)).Inc()
}

func (m *CalendarMetrics) SetSessions(n int) {
	if m == nil {
		return
	}
	m.sessions.Set(float64(n))
}
