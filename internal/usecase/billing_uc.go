// File: internal/usecase/billing_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"ubid-billing/internal/domain"
	"ubid-billing/internal/domain/model"
	"ubid-billing/internal/domain/ports/adapter"
	"ubid-billing/internal/domain/ports/repository"
	"ubid-billing/internal/infra/logging"
	"ubid-billing/internal/infra/metrics"
)

// maxConflictRetries bounds how often the whole read-decide-write sequence is
// retried when a concurrent writer wins the version check.
const maxConflictRetries = 3

// ChangeResult is what the handler surfaces to the user: the decision, the
// profile as written, and a human-readable summary of the money involved.
type ChangeResult struct {
	Decision model.ChangeDecision
	Profile  *model.UserProfile
	Summary  string
}

// BillingUseCase implements the plan-change operations: preview, commit,
// and cancellation. The decision itself is pure (model.Decide); this layer
// owns the read-decide-write sequence and the payment capture.
type BillingUseCase struct {
	profiles repository.UserProfileRepository
	changes  repository.PlanChangeLogRepository
	tm       repository.TransactionManager // nil in tests: runs without a tx handle
	gateway  adapter.PaymentGateway
	catalog  model.Catalog
	log      *zerolog.Logger

	// now is injectable for deterministic tests.
	now func() time.Time
}

func NewBillingUseCase(
	profiles repository.UserProfileRepository,
	changes repository.PlanChangeLogRepository,
	tm repository.TransactionManager,
	gateway adapter.PaymentGateway,
	catalog model.Catalog,
	logger *zerolog.Logger,
) *BillingUseCase {
	l := logger.With().Str("component", "BillingUC").Logger()
	return &BillingUseCase{
		profiles: profiles,
		changes:  changes,
		tm:       tm,
		gateway:  gateway,
		catalog:  catalog,
		log:      &l,
		now:      time.Now,
	}
}

// WithClock overrides the use case clock. Test hook.
func (uc *BillingUseCase) WithClock(now func() time.Time) *BillingUseCase {
	uc.now = now
	return uc
}

// Catalog exposes the static plan catalog for read handlers.
func (uc *BillingUseCase) Catalog() model.Catalog { return uc.catalog }

// GetProfile reads the billing view of a user.
func (uc *BillingUseCase) GetProfile(ctx context.Context, userID string) (*model.UserProfile, error) {
	return uc.profiles.FindByID(ctx, repository.NoTX, userID)
}

// GetProfileByEmail resolves a user by email. Support tooling works from the
// address a customer writes in with, not their internal id.
func (uc *BillingUseCase) GetProfileByEmail(ctx context.Context, email string) (*model.UserProfile, error) {
	if email == "" {
		return nil, fmt.Errorf("email is required: %w", domain.ErrInvalidArgument)
	}
	return uc.profiles.FindByEmail(ctx, repository.NoTX, email)
}

// History lists the user's applied plan changes, newest first.
func (uc *BillingUseCase) History(ctx context.Context, userID string, limit int) ([]*model.PlanChangeRecord, error) {
	return uc.changes.ListByUser(ctx, repository.NoTX, userID, limit)
}

// Preview classifies the request without mutating anything.
func (uc *BillingUseCase) Preview(ctx context.Context, userID string, req model.ChangeRequest) (*ChangeResult, error) {
	profile, err := uc.profiles.FindByID(ctx, repository.NoTX, userID)
	if err != nil {
		return nil, err
	}
	now := uc.now()
	decision, err := model.Decide(profile.Subscription, req, now, uc.catalog)
	if err != nil {
		return nil, err
	}
	return &ChangeResult{
		Decision: decision,
		Profile:  profile,
		Summary:  uc.summarize(decision, req),
	}, nil
}

// ChangePlan runs the full read-decide-write sequence. The immediate path is
// a single transactional read-modify-write guarded by the profile version;
// on domain.ErrConflict the whole sequence restarts from a fresh snapshot,
// at most maxConflictRetries times. The scheduled path is a plain pending
// patch and needs no guard (re-applying it is a no-op).
func (uc *BillingUseCase) ChangePlan(ctx context.Context, userID string, req model.ChangeRequest) (*ChangeResult, error) {
	defer logging.TraceDuration(logging.With(ctx, uc.log), "BillingUC.ChangePlan")()
	if req.TargetTier == model.TierFree {
		return uc.Cancel(ctx, userID)
	}

	var lastErr error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		res, err := uc.changePlanOnce(ctx, userID, req)
		if err == nil {
			return res, nil
		}
		if !errors.Is(err, domain.ErrConflict) {
			return nil, err
		}
		metrics.IncPlanChangeConflict()
		uc.log.Warn().Str("user_id", userID).Int("attempt", attempt+1).Msg("plan change conflict, retrying")
		lastErr = err
	}
	return nil, lastErr
}

func (uc *BillingUseCase) changePlanOnce(ctx context.Context, userID string, req model.ChangeRequest) (*ChangeResult, error) {
	profile, err := uc.profiles.FindByID(ctx, repository.NoTX, userID)
	if err != nil {
		return nil, err
	}
	now := uc.now()
	fromState := profile.Subscription
	decision, err := model.Decide(fromState, req, now, uc.catalog)
	if err != nil {
		return nil, err
	}

	switch decision.Kind {
	case model.DecisionNoop:
		// Already on the requested plan; nothing is written or charged.
		metrics.IncPlanChange(decision.Kind)
		return &ChangeResult{Decision: decision, Profile: profile, Summary: "Currently Active"}, nil

	case model.DecisionScheduled:
		if err := uc.schedule(ctx, profile, req, decision, now); err != nil {
			return nil, err
		}
		metrics.IncPlanChange(decision.Kind)
		return &ChangeResult{Decision: decision, Profile: profile, Summary: uc.summarize(decision, req)}, nil

	case model.DecisionImmediate:
		if err := uc.applyImmediate(ctx, profile, req, now); err != nil {
			return nil, err
		}
		uc.capture(ctx, userID, amountDue(decision, uc.catalog, req))
		uc.audit(ctx, profile.ID, fromState, req, decision, now)
		metrics.IncPlanChange(decision.Kind)
		return &ChangeResult{Decision: decision, Profile: profile, Summary: uc.summarize(decision, req)}, nil

	default:
		return nil, domain.ErrInvalidArgument
	}
}

// Cancel schedules a downgrade to free at the current renewal date. Free
// accounts have nothing to cancel.
func (uc *BillingUseCase) Cancel(ctx context.Context, userID string) (*ChangeResult, error) {
	defer logging.TraceDuration(logging.With(ctx, uc.log), "BillingUC.Cancel")()
	profile, err := uc.profiles.FindByID(ctx, repository.NoTX, userID)
	if err != nil {
		return nil, err
	}
	now := uc.now()
	req := model.ChangeRequest{TargetTier: model.TierFree}
	decision, err := model.Decide(profile.Subscription, req, now, uc.catalog)
	if err != nil {
		return nil, err
	}
	if err := uc.schedule(ctx, profile, req, decision, now); err != nil {
		return nil, err
	}
	metrics.IncPlanChange(decision.Kind)
	return &ChangeResult{
		Decision: decision,
		Profile:  profile,
		Summary:  fmt.Sprintf("Your subscription will end on %s", decision.EffectiveDate.Format("Jan 2, 2006")),
	}, nil
}

// schedule writes the three pending fields and nothing else.
func (uc *BillingUseCase) schedule(ctx context.Context, profile *model.UserProfile, req model.ChangeRequest, decision model.ChangeDecision, now time.Time) error {
	fromState := profile.Subscription
	if err := profile.ApplySchedule(req, now); err != nil {
		return err
	}
	patch := repository.PendingChangePatch{
		PendingPlan:          profile.Subscription.PendingPlan,
		PendingCycle:         profile.Subscription.PendingCycle,
		PendingEffectiveDate: profile.Subscription.PendingEffectiveDate,
	}
	if err := uc.profiles.UpdatePendingChange(ctx, repository.NoTX, profile.ID, patch); err != nil {
		return err
	}
	uc.audit(ctx, profile.ID, fromState, req, decision, now)
	return nil
}

// applyImmediate performs the tier/cycle swap inside a transaction: the
// profile is re-read under the tx and saved with its version guard, so a
// concurrent change since the snapshot surfaces as domain.ErrConflict.
func (uc *BillingUseCase) applyImmediate(ctx context.Context, profile *model.UserProfile, req model.ChangeRequest, now time.Time) error {
	apply := func(ctx context.Context, tx repository.Tx) error {
		fresh, err := uc.profiles.FindByID(ctx, tx, profile.ID)
		if err != nil {
			return err
		}
		if fresh.Version != profile.Version {
			return domain.ErrConflict
		}
		if err := fresh.ApplyImmediate(req, now); err != nil {
			return err
		}
		if err := uc.profiles.Save(ctx, tx, fresh); err != nil {
			return err
		}
		*profile = *fresh
		return nil
	}

	if uc.tm == nil {
		return apply(ctx, repository.NoTX)
	}
	return uc.tm.WithTx(ctx, pgx.TxOptions{}, apply)
}

// capture moves money after the state is durably written. A positive amount
// charges the stored payment method; a negative amount refunds it. The
// gateway is assumed to settle, so failures are logged, not rolled back.
func (uc *BillingUseCase) capture(ctx context.Context, userID string, amount decimal.Decimal) {
	if uc.gateway == nil || amount.IsZero() {
		return
	}
	var err error
	direction := "charge"
	if amount.IsPositive() {
		_, err = uc.gateway.Capture(ctx, userID, amount, "Ubid subscription")
	} else {
		direction = "refund"
		_, err = uc.gateway.Refund(ctx, userID, amount.Neg(), "Ubid subscription proration refund")
	}
	if err != nil {
		uc.log.Error().Err(err).Str("user_id", userID).Str("amount", amount.String()).Msg("payment settlement failed")
		return
	}
	metrics.IncPaymentCapture(direction)
}

func (uc *BillingUseCase) audit(ctx context.Context, userID string, from model.SubscriptionState, req model.ChangeRequest, decision model.ChangeDecision, now time.Time) {
	effective := now
	if decision.EffectiveDate != nil {
		effective = *decision.EffectiveDate
	}
	rec, err := model.NewPlanChangeRecord(userID, decision.Kind, from, req, amountDue(decision, uc.catalog, req), effective, now)
	if err != nil {
		uc.log.Error().Err(err).Str("user_id", userID).Msg("build audit record")
		return
	}
	if err := uc.changes.Save(ctx, repository.NoTX, rec); err != nil {
		uc.log.Error().Err(err).Str("user_id", userID).Msg("save audit record")
	}
}

// amountDue resolves what an immediate change costs: the prorated final price
// when a live cycle was credited, the full plan price otherwise. Scheduled
// changes charge nothing now.
func amountDue(decision model.ChangeDecision, catalog model.Catalog, req model.ChangeRequest) decimal.Decimal {
	if decision.Kind != model.DecisionImmediate {
		return decimal.Zero
	}
	if decision.Proration != nil {
		return decision.Proration.FinalPrice
	}
	price, err := catalog.PriceFor(req.TargetTier, req.TargetCycle)
	if err != nil {
		return decimal.Zero
	}
	return price
}

// summarize renders the user-facing outcome line.
func (uc *BillingUseCase) summarize(decision model.ChangeDecision, req model.ChangeRequest) string {
	switch decision.Kind {
	case model.DecisionNoop:
		return "Currently Active"
	case model.DecisionScheduled:
		name := "Free"
		if plan, ok := uc.catalog[req.TargetTier]; ok {
			name = fmt.Sprintf("%s (%s)", plan.Name, req.TargetCycle)
		}
		return fmt.Sprintf("Your plan will switch to %s on %s", name, decision.EffectiveDate.Format("Jan 2, 2006"))
	default:
		due := amountDue(decision, uc.catalog, req)
		if due.IsNegative() {
			return fmt.Sprintf("Amount to be refunded: $%s", due.Neg().StringFixed(2))
		}
		return fmt.Sprintf("Total due today: $%s", due.StringFixed(2))
	}
}
