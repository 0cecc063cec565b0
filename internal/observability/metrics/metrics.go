package metrics

import "github.com/prometheus/client_golang/prometheus"

// ChatMetrics exposes counters/histograms for the chat turn flow.
type ChatMetrics struct {
	turnsTotal        *prometheus.CounterVec
	completionLatency *prometheus.HistogramVec
	tracesTotal       *prometheus.CounterVec
	activeSessions    prometheus.Gauge
}

func NewChatMetrics(reg prometheus.Registerer) *ChatMetrics {
	m := &ChatMetrics{
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shopbot",
			Subsystem: "chat",
			Name:      "turns_total",
			Help:      "User turns by outcome",
		}, []string{"outcome"}),
		completionLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "shopbot",
			Subsystem: "chat",
			Name:      "completion_latency_seconds",
			Help:      "Latency of completion provider calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider", "status"}),
		tracesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shopbot",
			Subsystem: "chat",
			Name:      "traces_total",
			Help:      "Trace records by delivery status",
		}, []string{"status"}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "shopbot",
			Subsystem: "chat",
			Name:      "active_sessions",
			Help:      "Sessions currently held in memory",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.turnsTotal, m.completionLatency, m.tracesTotal, m.activeSessions)
	return m
}

// ObserveTurn counts a user turn: completed, refused, provider_error, empty or busy.
func (m *ChatMetrics) ObserveTurn(outcome string) {
	if m == nil {
		return
	}
	m.turnsTotal.WithLabelValues(outcome).Inc()
}

func (m *ChatMetrics) ObserveCompletion(provider, status string, seconds float64) {
	if m == nil {
		return
	}
	m.completionLatency.WithLabelValues(provider, status).Observe(seconds)
}

// ObserveTrace counts a trace record: sent, failed or dropped.
func (m *ChatMetrics) ObserveTrace(status string) {
	if m == nil {
		return
	}
	m.tracesTotal.WithLabelValues(status).Inc()
}

func (m *ChatMetrics) SessionOpened() {
	if m == nil {
		return
	}
	m.activeSessions.Inc()
}

func (m *ChatMetrics) SessionClosed() {
	if m == nil {
		return
	}
	m.activeSessions.Dec()
}
