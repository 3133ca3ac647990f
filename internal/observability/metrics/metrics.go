package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// VoiceMetrics exposes counters/histograms for the IVR webhook flow and the
// outbound reminder calls.
type VoiceMetrics struct {
	webhooksTotal   *prometheus.CounterVec
	webhookDuration *prometheus.HistogramVec
	bookingsTotal   *prometheus.CounterVec
	callEndings     *prometheus.CounterVec
	reminderCalls   *prometheus.CounterVec
}

func NewVoiceMetrics(reg prometheus.Registerer) *VoiceMetrics {
	m := &VoiceMetrics{
		webhooksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "caresync",
			Subsystem: "ivr",
			Name:      "webhooks_total",
			Help:      "Total voice webhooks handled, by endpoint and outcome",
		}, []string{"endpoint", "outcome"}),
		webhookDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "caresync",
			Subsystem: "ivr",
			Name:      "webhook_duration_seconds",
			Help:      "Time spent building a voice webhook response",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "caresync",
			Subsystem: "ivr",
			Name:      "bookings_total",
			Help:      "Appointments booked over the phone",
		}, []string{"source"}),
		callEndings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "caresync",
			Subsystem: "ivr",
			Name:      "call_endings_total",
			Help:      "Calls that reached a terminal state, by reason",
		}, []string{"reason"}),
		reminderCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "caresync",
			Subsystem: "ivr",
			Name:      "reminder_calls_total",
			Help:      "Outbound reminder calls attempted",
		}, []string{"kind", "status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.webhooksTotal, m.webhookDuration, m.bookingsTotal, m.callEndings, m.reminderCalls)
	return m
}

func (m *VoiceMetrics) ObserveWebhook(endpoint, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.webhooksTotal.WithLabelValues(endpoint, outcome).Inc()
	m.webhookDuration.WithLabelValues(endpoint).Observe(elapsed.Seconds())
}

func (m *VoiceMetrics) ObserveBooking(source string) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(source).Inc()
}

func (m *VoiceMetrics) ObserveCallEnding(reason string) {
	if m == nil {
		return
	}
	m.callEndings.WithLabelValues(reason).Inc()
}

func (m *VoiceMetrics) ObserveReminderCall(kind string, ok bool) {
	if m == nil {
		return
	}
	status := "failed"
	if ok {
		status = "placed"
	}
	m.reminderCalls.WithLabelValues(kind, status).Inc()
}
