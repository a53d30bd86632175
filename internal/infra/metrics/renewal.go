package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(renewalsAppliedTotal, pendingChangesAppliedTotal)
}

var (
	renewalsAppliedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "renewals_applied_total",
			Help: "Paid cycles renewed by the renewal worker.",
		},
	)

	pendingChangesAppliedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pending_changes_applied_total",
			Help: "Scheduled plan changes applied at their effective date.",
		},
	)
)

func IncRenewalsApplied(count int)       { renewalsAppliedTotal.Add(float64(count)) }
func IncPendingChangesApplied(count int) { pendingChangesAppliedTotal.Add(float64(count)) }
