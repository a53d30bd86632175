package model

import (
	"time"

	"github.com/shopspring/decimal"

	"ubid-billing/internal/domain"
)

// DecisionKind classifies a plan-change request.
type DecisionKind string

const (
	// DecisionImmediate applies now: tier upgrades, monthly-to-yearly cycle
	// upgrades on the same tier, and first purchases from the free tier.
	DecisionImmediate DecisionKind = "immediate"
	// DecisionScheduled takes effect at the current renewal date: tier
	// downgrades, yearly-to-monthly cycle downgrades, and cancellations.
	DecisionScheduled DecisionKind = "scheduled"
	// DecisionNoop means the requested plan is already active.
	DecisionNoop DecisionKind = "noop"
)

// ChangeRequest is a user's selected target plan. Cancellation is expressed
// as TargetTier == TierFree (TargetCycle ignored).
type ChangeRequest struct {
	TargetTier  Tier         `json:"target_tier"`
	TargetCycle BillingCycle `json:"target_cycle"`
}

// Proration describes the money movement of an immediate change.
// FinalPrice = NewPrice - Credit and may be negative: the user is refunded
// the excess (e.g. Plus yearly upgrading to Ultimate monthly).
type Proration struct {
	Credit     decimal.Decimal `json:"credit"`
	NewPrice   decimal.Decimal `json:"new_price"`
	FinalPrice decimal.Decimal `json:"final_price"`
}

// ChangeDecision is the outcome of classifying a request against the current
// subscription state. Proration is set only for immediate changes on a live
// paid cycle; EffectiveDate only for scheduled changes.
type ChangeDecision struct {
	Kind          DecisionKind `json:"kind"`
	Proration     *Proration   `json:"proration,omitempty"`
	EffectiveDate *time.Time   `json:"effective_date,omitempty"`
}

// Decide classifies a plan-change request. Pure: identical inputs always
// yield the identical decision, and no state is touched.
//
// Rules, in order:
//  1. tier upgrade (plus -> ultimate): immediate, regardless of cycle.
//  2. cycle upgrade on the same tier (monthly -> yearly): immediate.
//  3. tier downgrade, or cycle downgrade on the same tier: scheduled at the
//     renewal date. Rule 1 shadows any cycle-downgrade reading of the request.
//  4. same tier and cycle: no-op, nothing is charged or written.
//
// A request from the free tier for a paid plan is an immediate first purchase.
// TargetTier == free is a cancellation and always schedules; it requires a
// renewal date, so free accounts cannot cancel.
func Decide(state SubscriptionState, req ChangeRequest, now time.Time, catalog Catalog) (ChangeDecision, error) {
	if !req.TargetTier.Valid() {
		return ChangeDecision{}, domain.ErrInvalidArgument
	}

	// Cancellation path.
	if req.TargetTier == TierFree {
		if state.RenewalDate == nil {
			return ChangeDecision{}, domain.ErrInvalidArgument
		}
		eff := *state.RenewalDate
		return ChangeDecision{Kind: DecisionScheduled, EffectiveDate: &eff}, nil
	}

	if !req.TargetCycle.Valid() {
		return ChangeDecision{}, domain.ErrInvalidArgument
	}
	if _, ok := catalog[req.TargetTier]; !ok {
		return ChangeDecision{}, domain.ErrInvalidArgument
	}

	cur := state.Tier
	var curCycle BillingCycle
	if state.Cycle != nil {
		curCycle = *state.Cycle
	}

	tierUpgrade := cur == TierPlus && req.TargetTier == TierUltimate
	cycleUpgrade := cur == req.TargetTier && curCycle == CycleMonthly && req.TargetCycle == CycleYearly

	tierDowngrade := cur == TierUltimate && req.TargetTier == TierPlus
	cycleDowngrade := cur == req.TargetTier && curCycle == CycleYearly && req.TargetCycle == CycleMonthly

	switch {
	case tierUpgrade || cycleUpgrade:
		return immediateDecision(state, req, now, catalog)
	case tierDowngrade || cycleDowngrade:
		if state.RenewalDate == nil {
			return ChangeDecision{}, domain.ErrInvalidArgument
		}
		eff := *state.RenewalDate
		return ChangeDecision{Kind: DecisionScheduled, EffectiveDate: &eff}, nil
	case cur == req.TargetTier && curCycle == req.TargetCycle:
		return ChangeDecision{Kind: DecisionNoop}, nil
	default:
		// First purchase from free, or a combination the rules above do not
		// name (e.g. ultimate monthly -> plus yearly is caught as a tier
		// downgrade before reaching here).
		return immediateDecision(state, req, now, catalog)
	}
}

func immediateDecision(state SubscriptionState, req ChangeRequest, now time.Time, catalog Catalog) (ChangeDecision, error) {
	newPrice, err := catalog.PriceFor(req.TargetTier, req.TargetCycle)
	if err != nil {
		return ChangeDecision{}, err
	}
	d := ChangeDecision{Kind: DecisionImmediate}
	if p := prorate(state, newPrice, now, catalog); p != nil {
		d.Proration = p
	}
	return d, nil
}

// prorate credits the unused fraction of the current cycle against the new
// price. The fraction is measured against the current cycle's real calendar
// duration (previous renewal to renewal), not a normalized daily rate.
// Returns nil when there is nothing to credit: free tier, missing dates, or
// a degenerate/expired cycle.
func prorate(state SubscriptionState, newPrice decimal.Decimal, now time.Time, catalog Catalog) *Proration {
	if !state.Tier.Paid() || state.Cycle == nil || state.RenewalDate == nil {
		return nil
	}
	renewal := *state.RenewalDate
	previous := SubCycle(renewal, *state.Cycle)

	totalMillis := renewal.Sub(previous).Milliseconds()
	remainingMillis := renewal.Sub(now).Milliseconds()
	if totalMillis <= 0 || remainingMillis <= 0 {
		return nil
	}

	currentPrice, err := catalog.PriceFor(state.Tier, *state.Cycle)
	if err != nil || currentPrice.IsZero() {
		return nil
	}

	fraction := decimal.NewFromInt(remainingMillis).Div(decimal.NewFromInt(totalMillis))
	credit := fraction.Mul(currentPrice)
	return &Proration{
		Credit:     credit,
		NewPrice:   newPrice,
		FinalPrice: newPrice.Sub(credit),
	}
}
