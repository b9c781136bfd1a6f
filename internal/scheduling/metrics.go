package scheduling

import "github.com/prometheus/client_golang/prometheus"

// Metrics exposes counters for booking outcomes and reminder sweeps.
type Metrics struct {
	bookingsTotal  *prometheus.CounterVec
	remindersTotal *prometheus.CounterVec
	sweepDuration  prometheus.Histogram
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "meding",
			Subsystem: "scheduling",
			Name:      "bookings_total",
			Help:      "Booking attempts by strategy and outcome",
		}, []string{"strategy", "outcome"}),
		remindersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "meding",
			Subsystem: "scheduling",
			Name:      "reminders_total",
			Help:      "Reminder notifications by delivery outcome",
		}, []string{"outcome"}),
		sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "meding",
			Subsystem: "scheduling",
			Name:      "reminder_sweep_seconds",
			Help:      "Duration of reminder sweep runs",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.bookingsTotal, m.remindersTotal, m.sweepDuration)
	return m
}

func (m *Metrics) ObserveBooking(strategy Strategy, outcome string) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(string(strategy), outcome).Inc()
}

func (m *Metrics) ObserveReminder(outcome string) {
	if m == nil {
		return
	}
	m.remindersTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveSweepDuration(seconds float64) {
	if m == nil {
		return
	}
	m.sweepDuration.Observe(seconds)
}
