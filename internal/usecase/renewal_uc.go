// File: internal/usecase/renewal_uc.go
package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"ubid-billing/internal/domain"
	"ubid-billing/internal/domain/model"
	"ubid-billing/internal/domain/ports/adapter"
	"ubid-billing/internal/domain/ports/repository"
	"ubid-billing/internal/infra/logging"
	"ubid-billing/internal/infra/metrics"
)

// RenewalUseCase is the renewal job: it applies scheduled changes whose
// effective date has arrived and rolls unchanged paid cycles forward. The
// decision engine only ever queues pending changes; this is the component
// that makes them current.
type RenewalUseCase struct {
	profiles repository.UserProfileRepository
	tm       repository.TransactionManager // nil in tests
	gateway  adapter.PaymentGateway
	catalog  model.Catalog
	log      *zerolog.Logger
}

func NewRenewalUseCase(
	profiles repository.UserProfileRepository,
	tm repository.TransactionManager,
	gateway adapter.PaymentGateway,
	catalog model.Catalog,
	logger *zerolog.Logger,
) *RenewalUseCase {
	l := logger.With().Str("component", "RenewalUC").Logger()
	return &RenewalUseCase{profiles: profiles, tm: tm, gateway: gateway, catalog: catalog, log: &l}
}

// ApplyDue processes everything due at `now` and returns how many pending
// changes were applied and how many cycles renewed. Each profile is handled
// in its own transaction; a conflict on one profile (another writer got
// there first) skips it, the next sweep picks it up if still due.
func (uc *RenewalUseCase) ApplyDue(ctx context.Context, now time.Time) (applied, renewed int, err error) {
	defer logging.TraceDuration(logging.With(ctx, uc.log), "RenewalUC.ApplyDue")()
	due, err := uc.profiles.ListDuePending(ctx, repository.NoTX, now)
	if err != nil {
		return 0, 0, err
	}
	for _, p := range due {
		if err := uc.applyOne(ctx, p.ID, now, uc.applyPending); err != nil {
			if errors.Is(err, domain.ErrConflict) || errors.Is(err, domain.ErrInvalidArgument) {
				continue
			}
			return applied, renewed, err
		}
		applied++
	}

	renewals, err := uc.profiles.ListDueRenewals(ctx, repository.NoTX, now)
	if err != nil {
		return applied, 0, err
	}
	for _, p := range renewals {
		if err := uc.applyOne(ctx, p.ID, now, uc.renew); err != nil {
			if errors.Is(err, domain.ErrConflict) || errors.Is(err, domain.ErrNoActiveSubscription) {
				continue
			}
			return applied, renewed, err
		}
		renewed++
	}

	if applied > 0 {
		metrics.IncPendingChangesApplied(applied)
	}
	if renewed > 0 {
		metrics.IncRenewalsApplied(renewed)
	}
	return applied, renewed, nil
}

// applyOne re-reads the profile inside a transaction and runs the mutation
// under the version guard.
func (uc *RenewalUseCase) applyOne(ctx context.Context, id string, now time.Time, mutate func(ctx context.Context, u *model.UserProfile, now time.Time) error) error {
	fn := func(ctx context.Context, tx repository.Tx) error {
		fresh, err := uc.profiles.FindByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := mutate(ctx, fresh, now); err != nil {
			return err
		}
		return uc.profiles.Save(ctx, tx, fresh)
	}
	if uc.tm == nil {
		return fn(ctx, repository.NoTX)
	}
	return uc.tm.WithTx(ctx, pgx.TxOptions{}, fn)
}

// applyPending makes the queued change current and charges the new cycle
// price when the target is a paid plan.
func (uc *RenewalUseCase) applyPending(ctx context.Context, u *model.UserProfile, now time.Time) error {
	if u.Subscription.PendingEffectiveDate == nil || u.Subscription.PendingEffectiveDate.After(now) {
		return domain.ErrInvalidArgument // no longer due; rescheduled meanwhile
	}
	if err := u.ApplyPending(now); err != nil {
		return err
	}
	uc.charge(ctx, u)
	return nil
}

// renew extends the unchanged cycle and charges its price again.
func (uc *RenewalUseCase) renew(ctx context.Context, u *model.UserProfile, now time.Time) error {
	if err := u.Renew(now); err != nil {
		return err
	}
	uc.charge(ctx, u)
	return nil
}

func (uc *RenewalUseCase) charge(ctx context.Context, u *model.UserProfile) {
	if uc.gateway == nil || !u.Subscription.Tier.Paid() || u.Subscription.Cycle == nil {
		return
	}
	price, err := uc.catalog.PriceFor(u.Subscription.Tier, *u.Subscription.Cycle)
	if err != nil || price.IsZero() {
		return
	}
	if _, err := uc.gateway.Capture(ctx, u.ID, price, "Ubid subscription renewal"); err != nil {
		uc.log.Error().Err(err).Str("user_id", u.ID).Msg("renewal capture failed")
		return
	}
	metrics.IncPaymentCapture("charge")
}
