//go:build !integration

package web

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

// --- Mock repositories (ports) ---

type mockProfileRepo struct {
	mu    sync.RWMutex
	store map[string]*model.UserProfile
}

func newMockProfileRepo() *mockProfileRepo {
	return &mockProfileRepo{store: make(map[string]*model.UserProfile)}
}

func (m *mockProfileRepo) put(u *model.UserProfile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u.Version == 0 {
		u.Version = 1
	}
	cp := *u
	m.store[u.ID] = &cp
}

func (m *mockProfileRepo) Save(ctx context.Context, tx repository.Tx, u *model.UserProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.store[u.ID]
	if ok && stored.Version != u.Version {
		return domain.ErrConflict
	}
	u.Version++
	cp := *u
	m.store[u.ID] = &cp
	return nil
}

func (m *mockProfileRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.UserProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *mockProfileRepo) FindByEmail(ctx context.Context, tx repository.Tx, email string) (*model.UserProfile, error) {
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

func (m *mockProfileRepo) UpdatePendingChange(ctx context.Context, tx repository.Tx, id string, patch repository.PendingChangePatch) error {
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

func (m *mockProfileRepo) ListDuePending(ctx context.Context, tx repository.Tx, now time.Time) ([]*model.UserProfile, error) {
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

func (m *mockProfileRepo) ListDueRenewals(ctx context.Context, tx repository.Tx, now time.Time) ([]*model.UserProfile, error) {
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

func (m *mockProfileRepo) CountByTier(ctx context.Context, tx repository.Tx) (map[model.Tier]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[model.Tier]int)
	for _, u := range m.store {
		out[u.Subscription.Tier]++
	}
	return out, nil
}

type mockChangeLogRepo struct {
	mu      sync.Mutex
	records []*model.PlanChangeRecord
}

func (m *mockChangeLogRepo) Save(ctx context.Context, tx repository.Tx, rec *model.PlanChangeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rec
	m.records = append(m.records, &cp)
	return nil
}

func (m *mockChangeLogRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string, limit int) ([]*model.PlanChangeRecord, error) {
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

type mockGateway struct{}

func (mockGateway) Name() string { return "mock" }

func (mockGateway) Capture(ctx context.Context, userID string, amount decimal.Decimal, description string) (adapter.CaptureResult, error) {
	return adapter.CaptureResult{RefID: "cap", Amount: amount, Time: time.Now()}, nil
}

func (mockGateway) Refund(ctx context.Context, userID string, amount decimal.Decimal, description string) (adapter.CaptureResult, error) {
	return adapter.CaptureResult{RefID: "ref", Amount: amount.Neg(), Time: time.Now()}, nil
}

func newTestLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}
