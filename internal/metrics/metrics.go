// Package metrics exposes Prometheus collectors for the webhook, the booking
// flow, the assistant and the outbox sender. A nil *Metrics is a valid no-op.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "interviewpipe"

// Metrics groups every collector the service records.
type Metrics struct {
	inboundTotal       *prometheus.CounterVec
	webhookLatency     *prometheus.HistogramVec
	bookingsTotal      *prometheus.CounterVec
	assistantTotal     *prometheus.CounterVec
	assistantLatency   prometheus.Histogram
	transcriptionTotal *prometheus.CounterVec
	outboxTotal        *prometheus.CounterVec
	sessionsSwept      prometheus.Counter
}

// New creates the collectors and registers them on reg, or the default registerer when reg is nil.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		inboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "webhook",
			Name:      "inbound_messages_total",
			Help:      "Total inbound WhatsApp webhook deliveries",
		}, []string{"kind", "status"}),
		webhookLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "webhook",
			Name:      "latency_seconds",
			Help:      "Latency of WhatsApp webhook processing",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "flow",
			Name:      "bookings_total",
			Help:      "Interview bookings by resulting status",
		}, []string{"status"}),
		assistantTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "assistant",
			Name:      "requests_total",
			Help:      "Fallback assistant requests by outcome",
		}, []string{"outcome"}),
		assistantLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "assistant",
			Name:      "latency_seconds",
			Help:      "Latency of fallback assistant replies",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 25},
		}),
		transcriptionTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "webhook",
			Name:      "transcriptions_total",
			Help:      "Voice note transcriptions by status",
		}, []string{"status"}),
		outboxTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "sends_total",
			Help:      "Outbox delivery attempts by status",
		}, []string{"kind", "status"}),
		sessionsSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "flow",
			Name:      "sessions_swept_total",
			Help:      "Expired conversation sessions removed",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		m.inboundTotal, m.webhookLatency, m.bookingsTotal, m.assistantTotal,
		m.assistantLatency, m.transcriptionTotal, m.outboxTotal, m.sessionsSwept,
	)
	return m
}

// ObserveInbound counts one webhook delivery.
func (m *Metrics) ObserveInbound(kind, status string) {
	if m == nil {
		return
	}
	m.inboundTotal.WithLabelValues(kind, status).Inc()
}

func (m *Metrics) ObserveWebhookLatency(route string, seconds float64) {
	if m == nil {
		return
	}
	m.webhookLatency.WithLabelValues(route).Observe(seconds)
}

// ObserveBooking counts a booking entering status.
func (m *Metrics) ObserveBooking(status string) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) ObserveAssistant(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.assistantTotal.WithLabelValues(outcome).Inc()
	m.assistantLatency.Observe(seconds)
}

func (m *Metrics) ObserveTranscription(status string) {
	if m == nil {
		return
	}
	m.transcriptionTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) ObserveOutbox(kind, status string) {
	if m == nil {
		return
	}
	m.outboxTotal.WithLabelValues(kind, status).Inc()
}

func (m *Metrics) ObserveSessionsSwept(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.sessionsSwept.Add(float64(n))
}
