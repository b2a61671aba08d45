package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	ChargeErrorReasonConfig    = "configuration"
	ChargeErrorReasonTransport = "transport"
	ChargeErrorReasonDB        = "db"
	ChargeErrorReasonNotFound  = "not_found"
	ChargeErrorReasonUnknown   = "unknown"
)

// BillingMetrics captures billing engine health signals.
type BillingMetrics struct {
	sweepRuns       prometheus.Counter
	sweepDuration   prometheus.Histogram
	chargesDue      prometheus.Counter
	remindersSent   prometheus.Counter
	chargesCreated  prometheus.Counter
	chargesSkipped  *prometheus.CounterVec
	chargeErrors    *prometheus.CounterVec
	duplicateSpawns prometheus.Counter
}

// New registers billing metrics on the given registerer. Tests pass their own
// registry; the fx module wires prometheus.DefaultRegisterer.
func New(registerer prometheus.Registerer) *BillingMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &BillingMetrics{
		sweepRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cobranza_billing_sweep_runs_total",
			Help: "Number of billing sweep executions.",
		}),
		sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cobranza_billing_sweep_duration_seconds",
			Help:    "Duration of billing sweep executions.",
			Buckets: prometheus.DefBuckets,
		}),
		chargesDue: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cobranza_billing_charges_due_total",
			Help: "Charges picked up by sweeps as due.",
		}),
		remindersSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cobranza_billing_reminders_sent_total",
			Help: "Reminder notifications dispatched successfully.",
		}),
		chargesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cobranza_billing_charges_created_total",
			Help: "Next-cycle charges created by the engine.",
		}),
		chargesSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cobranza_billing_charges_skipped_total",
			Help: "Due charges skipped without processing.",
		}, []string{"reason"}),
		chargeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cobranza_billing_charge_errors_total",
			Help: "Per-charge processing failures.",
		}, []string{"reason"}),
		duplicateSpawns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cobranza_billing_duplicate_spawns_total",
			Help: "Next-charge creations suppressed by the per-day uniqueness guard.",
		}),
	}

	registerer.MustRegister(
		m.sweepRuns,
		m.sweepDuration,
		m.chargesDue,
		m.remindersSent,
		m.chargesCreated,
		m.chargesSkipped,
		m.chargeErrors,
		m.duplicateSpawns,
	)
	return m
}

func (m *BillingMetrics) IncSweepRun() {
	if m == nil {
		return
	}
	m.sweepRuns.Inc()
}

func (m *BillingMetrics) ObserveSweepDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.sweepDuration.Observe(d.Seconds())
}

func (m *BillingMetrics) AddChargesDue(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.chargesDue.Add(float64(n))
}

func (m *BillingMetrics) IncReminderSent() {
	if m == nil {
		return
	}
	m.remindersSent.Inc()
}

func (m *BillingMetrics) IncChargeCreated() {
	if m == nil {
		return
	}
	m.chargesCreated.Inc()
}

func (m *BillingMetrics) IncChargeSkipped(reason string) {
	if m == nil {
		return
	}
	m.chargesSkipped.WithLabelValues(reason).Inc()
}

func (m *BillingMetrics) IncChargeError(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = ChargeErrorReasonUnknown
	}
	m.chargeErrors.WithLabelValues(reason).Inc()
}

func (m *BillingMetrics) IncDuplicateSpawn() {
	if m == nil {
		return
	}
	m.duplicateSpawns.Inc()
}
