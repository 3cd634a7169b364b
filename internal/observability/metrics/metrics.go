package metrics

import "github.com/prometheus/client_golang/prometheus"

// BookingMetrics exposes counters/histograms for the booking flow.
type BookingMetrics struct {
	bookingsTotal   *prometheus.CounterVec
	bookingLatency  *prometheus.HistogramVec
	paymentIntents  *prometheus.CounterVec
	videoOperations *prometheus.CounterVec
	remindersTotal  *prometheus.CounterVec
	webhookEvents   *prometheus.CounterVec
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "teletherapy",
			Subsystem: "booking",
			Name:      "requests_total",
			Help:      "Booking attempts by final state",
		}, []string{"outcome"}),
		bookingLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "teletherapy",
			Subsystem: "booking",
			Name:      "latency_seconds",
			Help:      "End-to-end latency of booking requests",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
		paymentIntents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "teletherapy",
			Subsystem: "payments",
			Name:      "intents_total",
			Help:      "Payment intents requested, by routing mode and status",
		}, []string{"mode", "status"}),
		videoOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "teletherapy",
			Subsystem: "video",
			Name:      "operations_total",
			Help:      "Video meeting operations by type and status",
		}, []string{"operation", "status"}),
		remindersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "teletherapy",
			Subsystem: "reminders",
			Name:      "sent_total",
			Help:      "Session reminders enqueued",
		}, []string{"status"}),
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "teletherapy",
			Subsystem: "payments",
			Name:      "webhook_events_total",
			Help:      "Stripe webhook events by type and status",
		}, []string{"event_type", "status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.bookingsTotal, m.bookingLatency, m.paymentIntents, m.videoOperations, m.remindersTotal, m.webhookEvents)
	return m
}

func (m *BookingMetrics) ObserveBooking(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(outcome).Inc()
	m.bookingLatency.WithLabelValues(outcome).Observe(seconds)
}

func (m *BookingMetrics) ObservePaymentIntent(mode, status string) {
	if m == nil {
		return
	}
	m.paymentIntents.WithLabelValues(mode, status).Inc()
}

func (m *BookingMetrics) ObserveVideo(operation, status string) {
	if m == nil {
		return
	}
	m.videoOperations.WithLabelValues(operation, status).Inc()
}

func (m *BookingMetrics) ObserveReminder(status string) {
	if m == nil {
		return
	}
	m.remindersTotal.WithLabelValues(status).Inc()
}

func (m *BookingMetrics) ObserveWebhook(eventType, status string) {
	if m == nil {
		return
	}
	m.webhookEvents.WithLabelValues(eventType, status).Inc()
}
