package metrics

import "github.com/prometheus/client_golang/prometheus"

// SchedulingMetrics exposes counters/histograms for the scheduling core.
type SchedulingMetrics struct {
	operationsTotal   *prometheus.CounterVec
	operationLatency  *prometheus.HistogramVec
	recurrenceSkipped prometheus.Counter
	syncTotal         *prometheus.CounterVec
	syncLatency       *prometheus.HistogramVec
	dayRateTotal      *prometheus.CounterVec
	actionTransitions *prometheus.CounterVec
}

// NewSchedulingMetrics registers the scheduling collectors on reg.
func NewSchedulingMetrics(reg prometheus.Registerer) *SchedulingMetrics {
	m := &SchedulingMetrics{
		operationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "salon",
			Subsystem: "scheduling",
			Name:      "operations_total",
			Help:      "Scheduling mutations by operation and outcome",
		}, []string{"operation", "outcome"}),
		operationLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "salon",
			Subsystem: "scheduling",
			Name:      "operation_latency_seconds",
			Help:      "Latency of the local transaction for scheduling mutations",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		recurrenceSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "salon",
			Subsystem: "scheduling",
			Name:      "recurrence_skipped_total",
			Help:      "Recurrence occurrences skipped because of conflicts",
		}),
		syncTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "salon",
			Subsystem: "possync",
			Name:      "propagations_total",
			Help:      "Outbound POS propagation attempts by mutation kind and result",
		}, []string{"kind", "result"}),
		syncLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "salon",
			Subsystem: "possync",
			Name:      "remote_latency_seconds",
			Help:      "Latency of remote POS writes",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
		dayRateTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "salon",
			Subsystem: "dayrate",
			Name:      "bookings_total",
			Help:      "Day-rate booking attempts by outcome",
		}, []string{"outcome"}),
		actionTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "salon",
			Subsystem: "actions",
			Name:      "transitions_total",
			Help:      "Scheduled action transitions by kind and resulting status",
		}, []string{"kind", "status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		m.operationsTotal,
		m.operationLatency,
		m.recurrenceSkipped,
		m.syncTotal,
		m.syncLatency,
		m.dayRateTotal,
		m.actionTransitions,
	)
	return m
}

// ObserveOperation counts and times one engine operation.
func (m *SchedulingMetrics) ObserveOperation(operation, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.operationsTotal.WithLabelValues(operation, outcome).Inc()
	m.operationLatency.WithLabelValues(operation).Observe(seconds)
}

// ObserveRecurrenceSkipped records how many dates a series skipped.
func (m *SchedulingMetrics) ObserveRecurrenceSkipped(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.recurrenceSkipped.Add(float64(n))
}

// ObserveSync records a gate decision. seconds is ignored when no remote
// call was made.
func (m *SchedulingMetrics) ObserveSync(kind, result string, seconds float64) {
	if m == nil {
		return
	}
	m.syncTotal.WithLabelValues(kind, result).Inc()
	if seconds > 0 {
		m.syncLatency.WithLabelValues(kind).Observe(seconds)
	}
}

// ObserveDayRateBooking counts a day-rate booking attempt by outcome.
func (m *SchedulingMetrics) ObserveDayRateBooking(outcome string) {
	if m == nil {
		return
	}
	m.dayRateTotal.WithLabelValues(outcome).Inc()
}

// ObserveActionTransition counts an action entering status.
func (m *SchedulingMetrics) ObserveActionTransition(kind, status string) {
	if m == nil {
		return
	}
	m.actionTransitions.WithLabelValues(kind, status).Inc()
}
