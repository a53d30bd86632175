package model

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"

	"ubid-billing/internal/domain"
)

// PlanChangeRecord is the historical trail of plan changes: what the user was
// on before and after, how the change was classified, and the money moved.
// Separate from the profile itself so repeated changes stay auditable.
type PlanChangeRecord struct {
	ID        string // ULID, sortable by creation time
	UserID    string
	Kind      DecisionKind
	FromTier  Tier
	FromCycle *BillingCycle
	ToTier    Tier
	ToCycle   *BillingCycle
	// AmountDue is the prorated amount charged (positive) or refunded
	// (negative). Zero for scheduled changes.
	AmountDue   decimal.Decimal
	EffectiveAt time.Time
	CreatedAt   time.Time
}

// NewPlanChangeRecord builds an audit entry for an applied decision.
func NewPlanChangeRecord(userID string, kind DecisionKind, from SubscriptionState, req ChangeRequest, amountDue decimal.Decimal, effectiveAt, now time.Time) (*PlanChangeRecord, error) {
	if userID == "" || kind == "" {
		return nil, domain.ErrInvalidArgument
	}
	rec := &PlanChangeRecord{
		ID:          ulid.MustNew(ulid.Timestamp(now), rand.Reader).String(),
		UserID:      userID,
		Kind:        kind,
		FromTier:    from.Tier,
		ToTier:      req.TargetTier,
		AmountDue:   amountDue,
		EffectiveAt: effectiveAt,
		CreatedAt:   now,
	}
	if from.Cycle != nil {
		c := *from.Cycle
		rec.FromCycle = &c
	}
	if req.TargetTier.Paid() {
		c := req.TargetCycle
		rec.ToCycle = &c
	}
	return rec, nil
}
