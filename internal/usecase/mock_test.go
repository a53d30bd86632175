//go:build !integration

package usecase_test

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"ubid-billing/internal/domain"
	"ubid-billing/internal/domain/model"
	"ubid-billing/internal/domain/ports/adapter"
	"ubid-billing/internal/domain/ports/repository"
)

// memProfileRepo is an in-memory repository with the same optimistic
// versioning semantics as the Postgres implementation.
type memProfileRepo struct {
	mu    sync.RWMutex
	store map[string]*model.UserProfile

	// SaveFunc, when set, intercepts Save. Used to inject conflicts.
	SaveFunc func(ctx context.Context, tx repository.Tx, u *model.UserProfile) error
}

func newMemProfileRepo() *memProfileRepo {
	return &memProfileRepo{store: make(map[string]*model.UserProfile)}
}

// put seeds a profile directly, bypassing the version check.
func (m *memProfileRepo) put(u *model.UserProfile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u.Version == 0 {
		u.Version = 1
	}
	cp := *u
	m.store[u.ID] = &cp
}

func (m *memProfileRepo) Save(ctx context.Context, tx repository.Tx, u *model.UserProfile) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, tx, u)
	}
	return m.save(u)
}

func (m *memProfileRepo) save(u *model.UserProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.store[u.ID]
	if u.Version == 0 {
		if ok {
			return domain.ErrConflict
		}
		u.Version = 1
	} else {
		if !ok || stored.Version != u.Version {
			return domain.ErrConflict
		}
		u.Version++
	}
	cp := *u
	m.store[u.ID] = &cp
	return nil
}

func (m *memProfileRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.UserProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memProfileRepo) FindByEmail(ctx context.Context, tx repository.Tx, email string) (*model.UserProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.store {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memProfileRepo) UpdatePendingChange(ctx context.Context, tx repository.Tx, id string, patch repository.PendingChangePatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.store[id]
	if !ok {
		return domain.ErrNotFound
	}
	u.Subscription.PendingPlan = patch.PendingPlan
	u.Subscription.PendingCycle = patch.PendingCycle
	u.Subscription.PendingEffectiveDate = patch.PendingEffectiveDate
	return nil
}

func (m *memProfileRepo) ListDuePending(ctx context.Context, tx repository.Tx, now time.Time) ([]*model.UserProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.UserProfile
	for _, u := range m.store {
		if u.Subscription.PendingPlan != nil && u.Subscription.PendingEffectiveDate != nil && !u.Subscription.PendingEffectiveDate.After(now) {
			cp := *u
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memProfileRepo) ListDueRenewals(ctx context.Context, tx repository.Tx, now time.Time) ([]*model.UserProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.UserProfile
	for _, u := range m.store {
		if u.Subscription.Tier.Paid() && u.Subscription.PendingPlan == nil &&
			u.Subscription.RenewalDate != nil && !u.Subscription.RenewalDate.After(now) {
			cp := *u
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memProfileRepo) CountByTier(ctx context.Context, tx repository.Tx) (map[model.Tier]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[model.Tier]int)
	for _, u := range m.store {
		out[u.Subscription.Tier]++
	}
	return out, nil
}

// memChangeLogRepo collects audit records in memory.
type memChangeLogRepo struct {
	mu      sync.Mutex
	records []*model.PlanChangeRecord
}

func newMemChangeLogRepo() *memChangeLogRepo { return &memChangeLogRepo{} }

func (m *memChangeLogRepo) Save(ctx context.Context, tx repository.Tx, rec *model.PlanChangeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rec
	m.records = append(m.records, &cp)
	return nil
}

func (m *memChangeLogRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string, limit int) ([]*model.PlanChangeRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.PlanChangeRecord
	for i := len(m.records) - 1; i >= 0; i-- {
		if m.records[i].UserID == userID {
			cp := *m.records[i]
			out = append(out, &cp)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (m *memChangeLogRepo) last() *model.PlanChangeRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.records) == 0 {
		return nil
	}
	return m.records[len(m.records)-1]
}

// recordingGateway settles everything instantly and remembers the movements.
type recordingGateway struct {
	mu       sync.Mutex
	captures []decimal.Decimal
	refunds  []decimal.Decimal

	CaptureErr error
}

func (g *recordingGateway) Name() string { return "recording" }

func (g *recordingGateway) Capture(ctx context.Context, userID string, amount decimal.Decimal, description string) (adapter.CaptureResult, error) {
	if g.CaptureErr != nil {
		return adapter.CaptureResult{}, g.CaptureErr
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.captures = append(g.captures, amount)
	return adapter.CaptureResult{RefID: "cap", Amount: amount, Time: time.Now()}, nil
}

func (g *recordingGateway) Refund(ctx context.Context, userID string, amount decimal.Decimal, description string) (adapter.CaptureResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refunds = append(g.refunds, amount)
	return adapter.CaptureResult{RefID: "ref", Amount: amount.Neg(), Time: time.Now()}, nil
}

// newTestLogger creates a silent zerolog.Logger for use in tests.
func newTestLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}
