package model

import (
	"time"

	"github.com/google/uuid"

	"ubid-billing/internal/domain"
)

// SubscriptionState is the billing-relevant slice of a user profile.
//
// Invariants:
//   - RenewalDate is non-nil iff Tier is paid.
//   - PendingPlan non-nil implies PendingEffectiveDate equals the renewal
//     date captured when the change was scheduled (never updated afterwards).
//   - At most one pending change; scheduling overwrites the previous one.
type SubscriptionState struct {
	Tier                 Tier          `json:"tier"`
	Cycle                *BillingCycle `json:"cycle,omitempty"`
	RenewalDate          *time.Time    `json:"renewal_date,omitempty"`
	PendingPlan          *Tier         `json:"pending_plan,omitempty"`
	PendingCycle         *BillingCycle `json:"pending_cycle,omitempty"`
	PendingEffectiveDate *time.Time    `json:"pending_effective_date,omitempty"`
}

func (s SubscriptionState) HasPending() bool { return s.PendingPlan != nil }

// Validate checks the state invariants.
func (s SubscriptionState) Validate() error {
	if !s.Tier.Valid() {
		return domain.ErrInvalidArgument
	}
	if s.Tier.Paid() != (s.RenewalDate != nil) {
		return domain.ErrInvalidArgument
	}
	if s.Tier.Paid() && (s.Cycle == nil || !s.Cycle.Valid()) {
		return domain.ErrInvalidArgument
	}
	if s.PendingPlan != nil && s.PendingEffectiveDate == nil {
		return domain.ErrInvalidArgument
	}
	return nil
}

// UserProfile is the billing view of a marketplace user record.
// Version implements optimistic concurrency: a save only succeeds when the
// stored version still matches the one read.
type UserProfile struct {
	ID              string
	Email           string
	DisplayName     string
	Subscription    SubscriptionState
	PromotionTokens int64
	ExtendTokens    int64
	Version         int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func NewUserProfile(id, email, displayName string) (*UserProfile, error) {
	if id == "" {
		id = uuid.NewString()
	}
	if email == "" {
		return nil, domain.ErrInvalidArgument
	}
	now := time.Now()
	return &UserProfile{
		ID:           id,
		Email:        email,
		DisplayName:  displayName,
		Subscription: SubscriptionState{Tier: TierFree},
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

func (u *UserProfile) IsZero() bool { return u == nil || u.ID == "" }

// ApplyImmediate swaps the profile onto the requested tier/cycle right now:
// pending fields are cleared, the renewal date restarts one cycle from now,
// and Ultimate purchases grant recurring tokens per month purchased.
// Grants are additive; a later downgrade never claws tokens back.
func (u *UserProfile) ApplyImmediate(req ChangeRequest, now time.Time) error {
	if !req.TargetTier.Paid() || !req.TargetCycle.Valid() {
		return domain.ErrInvalidArgument
	}
	u.Subscription.PendingPlan = nil
	u.Subscription.PendingCycle = nil
	u.Subscription.PendingEffectiveDate = nil

	cycle := req.TargetCycle
	renewal := AddCycle(now, cycle)
	u.Subscription.Tier = req.TargetTier
	u.Subscription.Cycle = &cycle
	u.Subscription.RenewalDate = &renewal

	if req.TargetTier == TierUltimate {
		u.GrantUltimateTokens(cycle)
	}
	u.UpdatedAt = now
	return nil
}

// GrantUltimateTokens adds the recurring Ultimate allotment: 5 promotion and
// 2 extend tokens per month purchased.
func (u *UserProfile) GrantUltimateTokens(cycle BillingCycle) {
	months := int64(cycle.Months())
	u.PromotionTokens += 5 * months
	u.ExtendTokens += 2 * months
}

// ApplySchedule queues a change effective at the current renewal date.
// It overwrites any previously pending change and mutates nothing else.
func (u *UserProfile) ApplySchedule(req ChangeRequest, now time.Time) error {
	if u.Subscription.RenewalDate == nil {
		return domain.ErrInvalidArgument
	}
	plan := req.TargetTier
	u.Subscription.PendingPlan = &plan
	if plan == TierFree {
		u.Subscription.PendingCycle = nil
	} else {
		cycle := req.TargetCycle
		u.Subscription.PendingCycle = &cycle
	}
	effective := *u.Subscription.RenewalDate
	u.Subscription.PendingEffectiveDate = &effective
	u.UpdatedAt = now
	return nil
}

// ApplyPending makes a previously scheduled change current. Called by the
// renewal job once the effective date arrives.
func (u *UserProfile) ApplyPending(now time.Time) error {
	if u.Subscription.PendingPlan == nil {
		return domain.ErrInvalidArgument
	}
	target := *u.Subscription.PendingPlan
	if target == TierFree {
		u.Subscription = SubscriptionState{Tier: TierFree}
		u.UpdatedAt = now
		return nil
	}
	cycle := CycleMonthly
	if u.Subscription.PendingCycle != nil {
		cycle = *u.Subscription.PendingCycle
	}
	return u.ApplyImmediate(ChangeRequest{TargetTier: target, TargetCycle: cycle}, now)
}

// Renew extends the current paid cycle by one unit from the old renewal date
// and re-grants the recurring Ultimate allotment.
func (u *UserProfile) Renew(now time.Time) error {
	if !u.Subscription.Tier.Paid() || u.Subscription.RenewalDate == nil || u.Subscription.Cycle == nil {
		return domain.ErrNoActiveSubscription
	}
	next := AddCycle(*u.Subscription.RenewalDate, *u.Subscription.Cycle)
	u.Subscription.RenewalDate = &next
	if u.Subscription.Tier == TierUltimate {
		u.GrantUltimateTokens(*u.Subscription.Cycle)
	}
	u.UpdatedAt = now
	return nil
}
