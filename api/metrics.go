/*
metrics.go - Prometheus instrumentation

PURPOSE:
  Operation counters for the billing engine, exposed on /metrics. Counters
  only count completed domain operations; HTTP-level failures never
  increment them.
*/
package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the engine's operation counters.
type Metrics struct {
	BillsGenerated       prometheus.Counter
	BillsSkipped         prometheus.Counter
	GenerationErrors     prometheus.Counter
	PaymentsRecorded     prometheus.Counter
	SettlementsFinalized prometheus.Counter
}

// NewMetrics registers the counters with the given registerer. Tests pass
// a fresh registry to avoid duplicate registration.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		BillsGenerated: factory.NewCounter(prometheus.CounterOpts{
			Name: "billing_entries_generated_total",
			Help: "Ledger entries created by bulk generation.",
		}),
		BillsSkipped: factory.NewCounter(prometheus.CounterOpts{
			Name: "billing_entries_skipped_total",
			Help: "Members skipped because an entry already existed.",
		}),
		GenerationErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "billing_generation_errors_total",
			Help: "Per-member failures during bulk generation.",
		}),
		PaymentsRecorded: factory.NewCounter(prometheus.CounterOpts{
			Name: "billing_payments_recorded_total",
			Help: "Payments applied to ledger entries.",
		}),
		SettlementsFinalized: factory.NewCounter(prometheus.CounterOpts{
			Name: "billing_settlements_finalized_total",
			Help: "Move-out settlements finalized.",
		}),
	}
}
