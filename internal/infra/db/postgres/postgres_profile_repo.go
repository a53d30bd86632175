package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"ubid-billing/internal/domain"
	"ubid-billing/internal/domain/model"
	"ubid-billing/internal/domain/ports/repository"
)

var _ repository.UserProfileRepository = (*PostgresProfileRepo)(nil)

type PostgresProfileRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresProfileRepo(pool *pgxpool.Pool) *PostgresProfileRepo {
	return &PostgresProfileRepo{pool: pool}
}

const profileColumns = `
  id, email, display_name, tier, billing_cycle, renewal_date,
  pending_plan, pending_cycle, pending_effective_date,
  promotion_tokens, extend_tokens, version, created_at, updated_at`

// Save upserts the profile. For existing rows the UPDATE is guarded by the
// version read into the entity; zero rows affected means a concurrent writer
// won and the caller gets domain.ErrConflict. The version is bumped in-place
// on success so the entity stays usable for a follow-up save.
func (r *PostgresProfileRepo) Save(ctx context.Context, tx repository.Tx, u *model.UserProfile) error {
	ex, err := getExecutor(r.pool, tx)
	if err != nil {
		return err
	}

	if u.Version == 0 {
		const q = `
INSERT INTO user_profiles (
  id, email, display_name, tier, billing_cycle, renewal_date,
  pending_plan, pending_cycle, pending_effective_date,
  promotion_tokens, extend_tokens, version, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,1,$12,$13);`
		if _, err := ex.Exec(ctx, q,
			u.ID, u.Email, u.DisplayName,
			string(u.Subscription.Tier), cycleArg(u.Subscription.Cycle), u.Subscription.RenewalDate,
			tierArg(u.Subscription.PendingPlan), cycleArg(u.Subscription.PendingCycle), u.Subscription.PendingEffectiveDate,
			u.PromotionTokens, u.ExtendTokens, u.CreatedAt, u.UpdatedAt,
		); err != nil {
			return fmt.Errorf("insert profile: %w", err)
		}
		u.Version = 1
		return nil
	}

	const q = `
UPDATE user_profiles SET
  email=$2, display_name=$3, tier=$4, billing_cycle=$5, renewal_date=$6,
  pending_plan=$7, pending_cycle=$8, pending_effective_date=$9,
  promotion_tokens=$10, extend_tokens=$11, version=version+1, updated_at=$12
WHERE id=$1 AND version=$13;`
	tag, err := ex.Exec(ctx, q,
		u.ID, u.Email, u.DisplayName,
		string(u.Subscription.Tier), cycleArg(u.Subscription.Cycle), u.Subscription.RenewalDate,
		tierArg(u.Subscription.PendingPlan), cycleArg(u.Subscription.PendingCycle), u.Subscription.PendingEffectiveDate,
		u.PromotionTokens, u.ExtendTokens, u.UpdatedAt, u.Version,
	)
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrConflict
	}
	u.Version++
	return nil
}

func (r *PostgresProfileRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.UserProfile, error) {
	q := `SELECT` + profileColumns + ` FROM user_profiles WHERE id=$1;`
	return r.scanOne(ctx, tx, q, id)
}

func (r *PostgresProfileRepo) FindByEmail(ctx context.Context, tx repository.Tx, email string) (*model.UserProfile, error) {
	q := `SELECT` + profileColumns + ` FROM user_profiles WHERE email=$1;`
	return r.scanOne(ctx, tx, q, email)
}

// UpdatePendingChange writes only the pending-change fields; re-applying the
// same patch is a no-op. Used by the scheduled path, which never touches the
// live tier/cycle/renewal columns.
func (r *PostgresProfileRepo) UpdatePendingChange(ctx context.Context, tx repository.Tx, id string, patch repository.PendingChangePatch) error {
	ex, err := getExecutor(r.pool, tx)
	if err != nil {
		return err
	}
	const q = `
UPDATE user_profiles
   SET pending_plan=$2, pending_cycle=$3, pending_effective_date=$4, updated_at=$5
 WHERE id=$1;`
	tag, err := ex.Exec(ctx, q, id, tierArg(patch.PendingPlan), cycleArg(patch.PendingCycle), patch.PendingEffectiveDate, time.Now())
	if err != nil {
		return fmt.Errorf("update pending change: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *PostgresProfileRepo) ListDuePending(ctx context.Context, tx repository.Tx, now time.Time) ([]*model.UserProfile, error) {
	q := `SELECT` + profileColumns + `
  FROM user_profiles
 WHERE pending_plan IS NOT NULL AND pending_effective_date <= $1;`
	return r.scanMany(ctx, tx, q, now)
}

func (r *PostgresProfileRepo) ListDueRenewals(ctx context.Context, tx repository.Tx, now time.Time) ([]*model.UserProfile, error) {
	q := `SELECT` + profileColumns + `
  FROM user_profiles
 WHERE tier <> 'free' AND renewal_date <= $1 AND pending_plan IS NULL;`
	return r.scanMany(ctx, tx, q, now)
}

func (r *PostgresProfileRepo) CountByTier(ctx context.Context, tx repository.Tx) (map[model.Tier]int, error) {
	ex, err := getExecutor(r.pool, tx)
	if err != nil {
		return nil, err
	}
	rows, err := ex.Query(ctx, `SELECT tier, COUNT(*) FROM user_profiles GROUP BY tier;`)
	if err != nil {
		return nil, fmt.Errorf("count by tier: %w", err)
	}
	defer rows.Close()
	out := make(map[model.Tier]int)
	for rows.Next() {
		var tier string
		var n int
		if err := rows.Scan(&tier, &n); err != nil {
			return nil, err
		}
		out[model.Tier(tier)] = n
	}
	return out, rows.Err()
}

func (r *PostgresProfileRepo) scanOne(ctx context.Context, tx repository.Tx, q string, arg interface{}) (*model.UserProfile, error) {
	ex, err := getExecutor(r.pool, tx)
	if err != nil {
		return nil, err
	}
	u, err := scanProfile(ex.QueryRow(ctx, q, arg))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return u, nil
}

func (r *PostgresProfileRepo) scanMany(ctx context.Context, tx repository.Tx, q string, args ...interface{}) ([]*model.UserProfile, error) {
	ex, err := getExecutor(r.pool, tx)
	if err != nil {
		return nil, err
	}
	rows, err := ex.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.UserProfile
	for rows.Next() {
		u, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanProfile(row rowScanner) (*model.UserProfile, error) {
	var u model.UserProfile
	var tier string
	var cycle, pendingPlan, pendingCycle *string
	if err := row.Scan(
		&u.ID, &u.Email, &u.DisplayName, &tier, &cycle, &u.Subscription.RenewalDate,
		&pendingPlan, &pendingCycle, &u.Subscription.PendingEffectiveDate,
		&u.PromotionTokens, &u.ExtendTokens, &u.Version, &u.CreatedAt, &u.UpdatedAt,
	); err != nil {
		return nil, err
	}
	u.Subscription.Tier = model.Tier(tier)
	if cycle != nil {
		c := model.BillingCycle(*cycle)
		u.Subscription.Cycle = &c
	}
	if pendingPlan != nil {
		t := model.Tier(*pendingPlan)
		u.Subscription.PendingPlan = &t
	}
	if pendingCycle != nil {
		c := model.BillingCycle(*pendingCycle)
		u.Subscription.PendingCycle = &c
	}
	return &u, nil
}

func tierArg(t *model.Tier) *string {
	if t == nil {
		return nil
	}
	s := string(*t)
	return &s
}

func cycleArg(c *model.BillingCycle) *string {
	if c == nil {
		return nil
	}
	s := string(*c)
	return &s
}
