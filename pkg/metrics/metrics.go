package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments exported by the settlement core.
type Metrics struct {
	EntriesRecorded      prometheus.Counter
	PaymentsCaptured     prometheus.Counter
	RefundsCompleted     prometheus.Counter
	RefundsFailed        prometheus.Counter
	WithdrawalsCompleted prometheus.Counter
	ValidationRuns       prometheus.Counter
	ValidationViolations *prometheus.CounterVec
}

// New registers the settlement metrics on the default registry.
// Call once at startup; promauto panics on duplicate registration.
func New() *Metrics {
	return &Metrics{
		EntriesRecorded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "settlement_ledger_entries_recorded_total",
			Help: "Total ledger entries committed",
		}),
		PaymentsCaptured: promauto.NewCounter(prometheus.CounterOpts{
			Name: "settlement_payments_captured_total",
			Help: "Total payments captured",
		}),
		RefundsCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "settlement_refunds_completed_total",
			Help: "Total refunds completed",
		}),
		RefundsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "settlement_refunds_failed_total",
			Help: "Total refunds that entered the terminal FAILED state",
		}),
		WithdrawalsCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "settlement_withdrawals_completed_total",
			Help: "Total withdrawals completed",
		}),
		ValidationRuns: promauto.NewCounter(prometheus.CounterOpts{
			Name: "settlement_validation_runs_total",
			Help: "Total reconciliation runs",
		}),
		ValidationViolations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "settlement_validation_violations_total",
			Help: "Invariant violations found by the reconciliation engine",
		}, []string{"kind"}),
	}
}

// NewForTest builds unregistered instruments so tests can construct
// services without touching the default registry.
func NewForTest() *Metrics {
	return &Metrics{
		EntriesRecorded:      prometheus.NewCounter(prometheus.CounterOpts{Name: "test_entries"}),
		PaymentsCaptured:     prometheus.NewCounter(prometheus.CounterOpts{Name: "test_captures"}),
		RefundsCompleted:     prometheus.NewCounter(prometheus.CounterOpts{Name: "test_refunds"}),
		RefundsFailed:        prometheus.NewCounter(prometheus.CounterOpts{Name: "test_refunds_failed"}),
		WithdrawalsCompleted: prometheus.NewCounter(prometheus.CounterOpts{Name: "test_withdrawals"}),
		ValidationRuns:       prometheus.NewCounter(prometheus.CounterOpts{Name: "test_validation_runs"}),
		ValidationViolations: prometheus.NewCounterVec(prometheus.CounterOpts{Name: "test_violations"}, []string{"kind"}),
	}
}
