// Offline walkthrough of the decision engine: no database, no network.
// Prints what each plan-change request resolves to for a handful of states.
package main

import (
	"fmt"
	"log"
	"time"

	"ubid-billing/internal/domain/model"
)

func main() {
	catalog := model.DefaultCatalog()
	now := time.Date(2026, time.April, 25, 0, 0, 0, 0, time.UTC)

	monthly := model.CycleMonthly
	yearly := model.CycleYearly
	renewal := time.Date(2026, time.May, 10, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		label string
		state model.SubscriptionState
		req   model.ChangeRequest
	}{
		{
			label: "free account buys Plus monthly",
			state: model.SubscriptionState{Tier: model.TierFree},
			req:   model.ChangeRequest{TargetTier: model.TierPlus, TargetCycle: monthly},
		},
		{
			label: "Plus monthly upgrades to Ultimate monthly mid-cycle",
			state: model.SubscriptionState{Tier: model.TierPlus, Cycle: &monthly, RenewalDate: &renewal},
			req:   model.ChangeRequest{TargetTier: model.TierUltimate, TargetCycle: monthly},
		},
		{
			label: "Plus yearly upgrades to Ultimate monthly (refund case)",
			state: model.SubscriptionState{Tier: model.TierPlus, Cycle: &yearly, RenewalDate: &renewal},
			req:   model.ChangeRequest{TargetTier: model.TierUltimate, TargetCycle: monthly},
		},
		{
			label: "Ultimate monthly downgrades to Plus monthly",
			state: model.SubscriptionState{Tier: model.TierUltimate, Cycle: &monthly, RenewalDate: &renewal},
			req:   model.ChangeRequest{TargetTier: model.TierPlus, TargetCycle: monthly},
		},
		{
			label: "Plus monthly switches to Plus yearly",
			state: model.SubscriptionState{Tier: model.TierPlus, Cycle: &monthly, RenewalDate: &renewal},
			req:   model.ChangeRequest{TargetTier: model.TierPlus, TargetCycle: yearly},
		},
		{
			label: "Plus monthly re-selects Plus monthly",
			state: model.SubscriptionState{Tier: model.TierPlus, Cycle: &monthly, RenewalDate: &renewal},
			req:   model.ChangeRequest{TargetTier: model.TierPlus, TargetCycle: monthly},
		},
		{
			label: "Ultimate yearly cancels",
			state: model.SubscriptionState{Tier: model.TierUltimate, Cycle: &yearly, RenewalDate: &renewal},
			req:   model.ChangeRequest{TargetTier: model.TierFree},
		},
	}

	fmt.Printf("clock fixed at %s\n\n", now.Format("Jan 2, 2006"))
	for _, c := range cases {
		decision, err := model.Decide(c.state, c.req, now, catalog)
		if err != nil {
			log.Fatalf("%s: %v", c.label, err)
		}
		fmt.Printf("%s\n  decision: %s\n", c.label, decision.Kind)
		if decision.EffectiveDate != nil {
			fmt.Printf("  effective: %s\n", decision.EffectiveDate.Format("Jan 2, 2006"))
		}
		if p := decision.Proration; p != nil {
			fmt.Printf("  credit: $%s  new price: $%s  due: $%s\n",
				p.Credit.StringFixed(2), p.NewPrice.StringFixed(2), p.FinalPrice.StringFixed(2))
		}
		fmt.Println()
	}

	// Token grants on an Ultimate purchase.
	u, err := model.NewUserProfile("", "demo@ubid.test", "Demo")
	if err != nil {
		log.Fatal(err)
	}
	if err := u.ApplyImmediate(model.ChangeRequest{TargetTier: model.TierUltimate, TargetCycle: yearly}, now); err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Ultimate yearly purchase grants %d promotion and %d extend tokens; renews %s\n",
		u.PromotionTokens, u.ExtendTokens, u.Subscription.RenewalDate.Format("Jan 2, 2006"))
}
