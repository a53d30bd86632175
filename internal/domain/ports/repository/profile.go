package repository

import (
	"context"
	"time"

	"ubid-billing/internal/domain/model"
)

// -----------------------------
// User profiles (billing view)
// -----------------------------

// PendingChangePatch is the plain field update used by scheduled changes.
// Applying the same patch twice is a no-op by construction.
type PendingChangePatch struct {
	PendingPlan          *model.Tier
	PendingCycle         *model.BillingCycle
	PendingEffectiveDate *time.Time
}

type UserProfileRepository interface {
	// Save persists the profile with an optimistic version check: it fails
	// with domain.ErrConflict when the stored version no longer matches
	// profile.Version, and bumps the version on success.
	Save(ctx context.Context, tx Tx, profile *model.UserProfile) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.UserProfile, error)
	FindByEmail(ctx context.Context, tx Tx, email string) (*model.UserProfile, error)

	// UpdatePendingChange writes only the three pending-change fields.
	UpdatePendingChange(ctx context.Context, tx Tx, id string, patch PendingChangePatch) error

	// ListDuePending returns profiles whose scheduled change is due at `now`.
	ListDuePending(ctx context.Context, tx Tx, now time.Time) ([]*model.UserProfile, error)
	// ListDueRenewals returns paid profiles whose renewal date has passed and
	// that have no pending change queued.
	ListDueRenewals(ctx context.Context, tx Tx, now time.Time) ([]*model.UserProfile, error)

	CountByTier(ctx context.Context, tx Tx) (map[model.Tier]int, error)
}
