package repository

import (
	"context"

	"ubid-billing/internal/domain/model"
)

// PlanChangeLogRepository is the port for the plan-change audit trail.
type PlanChangeLogRepository interface {
	Save(ctx context.Context, tx Tx, rec *model.PlanChangeRecord) error
	ListByUser(ctx context.Context, tx Tx, userID string, limit int) ([]*model.PlanChangeRecord, error)
}
