package metrics

import (
	"ubid-billing/internal/domain/model"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		planChangesTotal,
		planChangeConflictsTotal,
		paymentCapturesTotal,
		profilesTotal,
	)
}

var (
	planChangesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plan_changes_total",
			Help: "Plan-change decisions applied, by kind.",
		},
		[]string{"kind"}, // 'immediate', 'scheduled', 'noop'
	)

	planChangeConflictsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "plan_change_conflicts_total",
			Help: "Optimistic-concurrency conflicts hit while applying plan changes.",
		},
	)

	paymentCapturesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_captures_total",
			Help: "Captures and refunds issued to the payment gateway.",
		},
		[]string{"direction"}, // 'charge', 'refund'
	)

	profilesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "profiles_total",
			Help: "Current number of user profiles by tier.",
		},
		[]string{"tier"},
	)
)

func IncPlanChange(kind model.DecisionKind) {
	planChangesTotal.WithLabelValues(norm(string(kind))).Inc()
}

func IncPlanChangeConflict() { planChangeConflictsTotal.Inc() }

func IncPaymentCapture(direction string) {
	paymentCapturesTotal.WithLabelValues(norm(direction)).Inc()
}

func SetProfilesTotal(counts map[model.Tier]int) {
	for _, tier := range []model.Tier{model.TierFree, model.TierPlus, model.TierUltimate} {
		if count, ok := counts[tier]; ok {
			profilesTotal.WithLabelValues(string(tier)).Set(float64(count))
		}
	}
}
