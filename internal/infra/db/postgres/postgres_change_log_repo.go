package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/shopspring/decimal"

	"ubid-billing/internal/domain/model"
	"ubid-billing/internal/domain/ports/repository"
)

var _ repository.PlanChangeLogRepository = (*PostgresChangeLogRepo)(nil)

type PostgresChangeLogRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresChangeLogRepo(pool *pgxpool.Pool) *PostgresChangeLogRepo {
	return &PostgresChangeLogRepo{pool: pool}
}

func (r *PostgresChangeLogRepo) Save(ctx context.Context, tx repository.Tx, rec *model.PlanChangeRecord) error {
	ex, err := getExecutor(r.pool, tx)
	if err != nil {
		return err
	}
	const q = `
INSERT INTO plan_changes (
  id, user_id, kind, from_tier, from_cycle, to_tier, to_cycle,
  amount_due, effective_at, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10);`
	_, err = ex.Exec(ctx, q,
		rec.ID, rec.UserID, string(rec.Kind),
		string(rec.FromTier), cycleArg(rec.FromCycle),
		string(rec.ToTier), cycleArg(rec.ToCycle),
		rec.AmountDue.String(), rec.EffectiveAt, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert plan change: %w", err)
	}
	return nil
}

func (r *PostgresChangeLogRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string, limit int) ([]*model.PlanChangeRecord, error) {
	ex, err := getExecutor(r.pool, tx)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}
	const q = `
SELECT id, user_id, kind, from_tier, from_cycle, to_tier, to_cycle,
       amount_due, effective_at, created_at
  FROM plan_changes
 WHERE user_id=$1
 ORDER BY id DESC
 LIMIT $2;`
	rows, err := ex.Query(ctx, q, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list plan changes: %w", err)
	}
	defer rows.Close()

	var out []*model.PlanChangeRecord
	for rows.Next() {
		var rec model.PlanChangeRecord
		var kind, fromTier, toTier, amount string
		var fromCycle, toCycle *string
		if err := rows.Scan(
			&rec.ID, &rec.UserID, &kind, &fromTier, &fromCycle, &toTier, &toCycle,
			&amount, &rec.EffectiveAt, &rec.CreatedAt,
		); err != nil {
			return nil, err
		}
		rec.Kind = model.DecisionKind(kind)
		rec.FromTier = model.Tier(fromTier)
		rec.ToTier = model.Tier(toTier)
		if fromCycle != nil {
			c := model.BillingCycle(*fromCycle)
			rec.FromCycle = &c
		}
		if toCycle != nil {
			c := model.BillingCycle(*toCycle)
			rec.ToCycle = &c
		}
		rec.AmountDue, err = decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("parse amount: %w", err)
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}
