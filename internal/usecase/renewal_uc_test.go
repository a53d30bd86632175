//go:build !integration

package usecase_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"ubid-billing/internal/domain/model"
	"ubid-billing/internal/domain/ports/repository"
	"ubid-billing/internal/usecase"
)

func newRenewalFixture(t *testing.T) (*usecase.RenewalUseCase, *memProfileRepo, *recordingGateway) {
	t.Helper()
	repo := newMemProfileRepo()
	gw := &recordingGateway{}
	uc := usecase.NewRenewalUseCase(repo, nil, gw, model.DefaultCatalog(), newTestLogger())
	return uc, repo, gw
}

func schedulePending(t *testing.T, repo *memProfileRepo, id string, target model.Tier, cycle model.BillingCycle, at time.Time) {
	t.Helper()
	u, err := repo.FindByID(context.Background(), repository.NoTX, id)
	if err != nil {
		t.Fatalf("find %s: %v", id, err)
	}
	if err := u.ApplySchedule(model.ChangeRequest{TargetTier: target, TargetCycle: cycle}, at.AddDate(0, 0, -10)); err != nil {
		t.Fatalf("schedule %s: %v", id, err)
	}
	if err := repo.Save(context.Background(), repository.NoTX, u); err != nil {
		t.Fatalf("save %s: %v", id, err)
	}
}

func TestRenewalUseCase_AppliesDuePendingDowngrade(t *testing.T) {
	ctx := context.Background()
	uc, repo, gw := newRenewalFixture(t)
	renewal := time.Date(2026, time.May, 10, 0, 0, 0, 0, time.UTC)
	seedProfile(t, repo, "user-1", model.TierUltimate, model.CycleMonthly, renewal)
	schedulePending(t, repo, "user-1", model.TierPlus, model.CycleMonthly, renewal)

	applied, renewed, err := uc.ApplyDue(ctx, renewal.Add(time.Hour))
	if err != nil {
		t.Fatalf("ApplyDue: %v", err)
	}
	if applied != 1 || renewed != 0 {
		t.Errorf("applied/renewed = %d/%d, want 1/0", applied, renewed)
	}

	stored, _ := repo.FindByID(ctx, repository.NoTX, "user-1")
	if stored.Subscription.Tier != model.TierPlus {
		t.Errorf("tier = %s, want plus", stored.Subscription.Tier)
	}
	if stored.Subscription.HasPending() {
		t.Error("pending fields should be cleared once applied")
	}
	want := model.AddCycle(renewal.Add(time.Hour), model.CycleMonthly)
	if !stored.Subscription.RenewalDate.Equal(want) {
		t.Errorf("renewal = %s, want %s", stored.Subscription.RenewalDate, want)
	}
	// The new cycle is charged at the plus monthly price.
	price := decimal.RequireFromString("4.99")
	if len(gw.captures) != 1 || !gw.captures[0].Equal(price) {
		t.Errorf("captures = %v, want one of %s", gw.captures, price)
	}
}

func TestRenewalUseCase_AppliesDueCancellation(t *testing.T) {
	ctx := context.Background()
	uc, repo, gw := newRenewalFixture(t)
	renewal := time.Date(2026, time.May, 10, 0, 0, 0, 0, time.UTC)
	seedProfile(t, repo, "user-1", model.TierUltimate, model.CycleYearly, renewal)
	schedulePending(t, repo, "user-1", model.TierFree, "", renewal)

	applied, renewed, err := uc.ApplyDue(ctx, renewal)
	if err != nil {
		t.Fatalf("ApplyDue: %v", err)
	}
	if applied != 1 || renewed != 0 {
		t.Errorf("applied/renewed = %d/%d, want 1/0", applied, renewed)
	}

	stored, _ := repo.FindByID(ctx, repository.NoTX, "user-1")
	if stored.Subscription.Tier != model.TierFree {
		t.Errorf("tier = %s, want free", stored.Subscription.Tier)
	}
	if stored.Subscription.RenewalDate != nil || stored.Subscription.Cycle != nil {
		t.Errorf("cancelled state should be reset: %+v", stored.Subscription)
	}
	if len(gw.captures) != 0 {
		t.Errorf("cancellation must not charge, got %v", gw.captures)
	}
}

func TestRenewalUseCase_RenewsUnchangedCycles(t *testing.T) {
	ctx := context.Background()
	uc, repo, gw := newRenewalFixture(t)
	renewal := time.Date(2026, time.May, 10, 0, 0, 0, 0, time.UTC)
	seedProfile(t, repo, "user-1", model.TierUltimate, model.CycleMonthly, renewal)

	// Sweep runs three days late; the next renewal stays anchored.
	applied, renewed, err := uc.ApplyDue(ctx, renewal.AddDate(0, 0, 3))
	if err != nil {
		t.Fatalf("ApplyDue: %v", err)
	}
	if applied != 0 || renewed != 1 {
		t.Errorf("applied/renewed = %d/%d, want 0/1", applied, renewed)
	}

	stored, _ := repo.FindByID(ctx, repository.NoTX, "user-1")
	want := time.Date(2026, time.June, 10, 0, 0, 0, 0, time.UTC)
	if !stored.Subscription.RenewalDate.Equal(want) {
		t.Errorf("renewal = %s, want %s", stored.Subscription.RenewalDate, want)
	}
	if stored.PromotionTokens != 5 || stored.ExtendTokens != 2 {
		t.Errorf("ultimate renewal should re-grant tokens, got %d/%d", stored.PromotionTokens, stored.ExtendTokens)
	}
	price := decimal.RequireFromString("9.99")
	if len(gw.captures) != 1 || !gw.captures[0].Equal(price) {
		t.Errorf("captures = %v, want one of %s", gw.captures, price)
	}
}

func TestRenewalUseCase_SkipsProfilesNotDue(t *testing.T) {
	ctx := context.Background()
	uc, repo, gw := newRenewalFixture(t)
	renewal := time.Date(2026, time.May, 10, 0, 0, 0, 0, time.UTC)
	seedProfile(t, repo, "early", model.TierPlus, model.CycleMonthly, renewal)
	seedProfile(t, repo, "free", model.TierFree, "", time.Time{})

	applied, renewed, err := uc.ApplyDue(ctx, renewal.AddDate(0, 0, -1))
	if err != nil {
		t.Fatalf("ApplyDue: %v", err)
	}
	if applied != 0 || renewed != 0 {
		t.Errorf("applied/renewed = %d/%d, want 0/0", applied, renewed)
	}
	stored, _ := repo.FindByID(ctx, repository.NoTX, "early")
	if !stored.Subscription.RenewalDate.Equal(renewal) {
		t.Error("profile not yet due must be untouched")
	}
	if len(gw.captures) != 0 {
		t.Errorf("unexpected captures: %v", gw.captures)
	}
}

func TestRenewalUseCase_PendingBlocksPlainRenewal(t *testing.T) {
	ctx := context.Background()
	uc, repo, _ := newRenewalFixture(t)
	renewal := time.Date(2026, time.May, 10, 0, 0, 0, 0, time.UTC)
	seedProfile(t, repo, "user-1", model.TierUltimate, model.CycleMonthly, renewal)
	schedulePending(t, repo, "user-1", model.TierFree, "", renewal)

	applied, renewed, err := uc.ApplyDue(ctx, renewal)
	if err != nil {
		t.Fatalf("ApplyDue: %v", err)
	}
	// The queued cancellation wins; the cycle is not rolled forward first.
	if applied != 1 || renewed != 0 {
		t.Errorf("applied/renewed = %d/%d, want 1/0", applied, renewed)
	}
	stored, _ := repo.FindByID(ctx, repository.NoTX, "user-1")
	if stored.Subscription.Tier != model.TierFree {
		t.Errorf("tier = %s, want free", stored.Subscription.Tier)
	}
}
