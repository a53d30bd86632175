package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"ubid-billing/internal/config"
	"ubid-billing/internal/domain/model"
	"ubid-billing/internal/domain/ports/repository"
	pg "ubid-billing/internal/infra/db/postgres"
)

// schema is applied idempotently before seeding.
const schema = `
CREATE TABLE IF NOT EXISTS user_profiles (
  id                     TEXT PRIMARY KEY,
  email                  TEXT NOT NULL UNIQUE,
  display_name           TEXT NOT NULL DEFAULT '',
  tier                   TEXT NOT NULL DEFAULT 'free',
  billing_cycle          TEXT,
  renewal_date           TIMESTAMPTZ,
  pending_plan           TEXT,
  pending_cycle          TEXT,
  pending_effective_date TIMESTAMPTZ,
  promotion_tokens       BIGINT NOT NULL DEFAULT 0,
  extend_tokens          BIGINT NOT NULL DEFAULT 0,
  version                BIGINT NOT NULL DEFAULT 1,
  created_at             TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at             TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_user_profiles_pending
  ON user_profiles (pending_effective_date) WHERE pending_plan IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_user_profiles_renewal
  ON user_profiles (renewal_date) WHERE tier <> 'free';

CREATE TABLE IF NOT EXISTS plan_changes (
  id           TEXT PRIMARY KEY,
  user_id      TEXT NOT NULL,
  kind         TEXT NOT NULL,
  from_tier    TEXT NOT NULL,
  from_cycle   TEXT,
  to_tier      TEXT NOT NULL,
  to_cycle     TEXT,
  amount_due   TEXT NOT NULL,
  effective_at TIMESTAMPTZ NOT NULL,
  created_at   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_plan_changes_user ON plan_changes (user_id);
`

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, true)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 4)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()

	if _, err := pool.Exec(ctx, schema); err != nil {
		log.Fatalf("apply schema: %v", err)
	}
	fmt.Println("schema applied")

	repo := pg.NewPostgresProfileRepo(pool)

	// If profiles already exist, do nothing
	counts, err := repo.CountByTier(ctx, repository.NoTX)
	if err != nil {
		log.Fatalf("count profiles: %v", err)
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	if total > 0 {
		fmt.Printf("%d profiles already present. No changes.\n", total)
		return
	}

	// Seed one profile per tier for testing the plan-change flow
	now := time.Now().UTC()
	seed := []struct {
		Email string
		Name  string
		Tier  model.Tier
		Cycle model.BillingCycle
	}{
		{"free@ubid.test", "Free Frida", model.TierFree, ""},
		{"plus@ubid.test", "Plus Pablo", model.TierPlus, model.CycleMonthly},
		{"ultimate@ubid.test", "Ultimate Uma", model.TierUltimate, model.CycleYearly},
	}

	for _, s := range seed {
		u, err := model.NewUserProfile("", s.Email, s.Name)
		if err != nil {
			log.Fatalf("build profile %s: %v", s.Email, err)
		}
		if s.Tier.Paid() {
			if err := u.ApplyImmediate(model.ChangeRequest{TargetTier: s.Tier, TargetCycle: s.Cycle}, now); err != nil {
				log.Fatalf("apply plan %s: %v", s.Email, err)
			}
		}
		if err := repo.Save(ctx, repository.NoTX, u); err != nil {
			log.Fatalf("save profile %s: %v", s.Email, err)
		}
		fmt.Printf("  - %s (%s", s.Email, u.Subscription.Tier)
		if u.Subscription.RenewalDate != nil {
			fmt.Printf(", renews %s", u.Subscription.RenewalDate.Format("2006-01-02"))
		}
		fmt.Println(")")
	}
	fmt.Println("seed complete")
}
