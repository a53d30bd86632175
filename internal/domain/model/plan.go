package model

import (
	"time"

	"github.com/shopspring/decimal"

	"ubid-billing/internal/domain"
)

// Tier is a subscription tier. Free users have no billing cycle or renewal date.
type Tier string

const (
	TierFree     Tier = "free"
	TierPlus     Tier = "plus"
	TierUltimate Tier = "ultimate"
)

func (t Tier) Valid() bool {
	switch t {
	case TierFree, TierPlus, TierUltimate:
		return true
	}
	return false
}

func (t Tier) Paid() bool { return t == TierPlus || t == TierUltimate }

type BillingCycle string

const (
	CycleMonthly BillingCycle = "monthly"
	CycleYearly  BillingCycle = "yearly"
)

func (c BillingCycle) Valid() bool { return c == CycleMonthly || c == CycleYearly }

// Months purchased per cycle; token grants scale with this.
func (c BillingCycle) Months() int {
	if c == CycleYearly {
		return 12
	}
	return 1
}

// Plan describes a purchasable tier with its monthly and yearly price in USD.
type Plan struct {
	Tier         Tier
	Name         string
	MonthlyPrice decimal.Decimal
	YearlyPrice  decimal.Decimal
}

func (p *Plan) IsZero() bool { return p == nil || p.Tier == "" }

// NewPlan validates and constructs a plan. The yearly price must carry a
// discount against twelve monthly payments.
func NewPlan(tier Tier, name string, monthly, yearly decimal.Decimal) (*Plan, error) {
	if !tier.Valid() || tier == TierFree || name == "" {
		return nil, domain.ErrInvalidArgument
	}
	if !monthly.IsPositive() || !yearly.IsPositive() {
		return nil, domain.ErrInvalidArgument
	}
	if yearly.GreaterThanOrEqual(monthly.Mul(decimal.NewFromInt(12))) {
		return nil, domain.ErrInvalidArgument
	}
	return &Plan{Tier: tier, Name: name, MonthlyPrice: monthly, YearlyPrice: yearly}, nil
}

// Price returns the plan price for the given cycle.
func (p *Plan) Price(cycle BillingCycle) decimal.Decimal {
	if cycle == CycleYearly {
		return p.YearlyPrice
	}
	return p.MonthlyPrice
}

// Catalog maps paid tiers to their plans. The free tier is not listed; it
// prices at zero.
type Catalog map[Tier]*Plan

// DefaultCatalog returns the marketplace's static plan catalog.
func DefaultCatalog() Catalog {
	return Catalog{
		TierPlus: {
			Tier:         TierPlus,
			Name:         "Ubid Plus",
			MonthlyPrice: decimal.RequireFromString("4.99"),
			YearlyPrice:  decimal.RequireFromString("49.99"),
		},
		TierUltimate: {
			Tier:         TierUltimate,
			Name:         "Ubid Ultimate",
			MonthlyPrice: decimal.RequireFromString("9.99"),
			YearlyPrice:  decimal.RequireFromString("99.99"),
		},
	}
}

// PriceFor looks up the price of tier at cycle. The free tier is always zero.
func (c Catalog) PriceFor(tier Tier, cycle BillingCycle) (decimal.Decimal, error) {
	if tier == TierFree {
		return decimal.Zero, nil
	}
	p, ok := c[tier]
	if !ok || !cycle.Valid() {
		return decimal.Zero, domain.ErrInvalidArgument
	}
	return p.Price(cycle), nil
}

// AddCycle advances t by one billing cycle using calendar arithmetic.
// The day-of-month is clamped to the last valid day of the target month
// (Jan 31 + 1 month = Feb 28/29), never normalized forward.
func AddCycle(t time.Time, cycle BillingCycle) time.Time {
	if cycle == CycleYearly {
		return addMonthsClamped(t, 12)
	}
	return addMonthsClamped(t, 1)
}

// SubCycle rewinds t by one billing cycle with the same clamping policy.
// Used to locate the previous renewal when prorating.
func SubCycle(t time.Time, cycle BillingCycle) time.Time {
	if cycle == CycleYearly {
		return addMonthsClamped(t, -12)
	}
	return addMonthsClamped(t, -1)
}

func addMonthsClamped(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	m += time.Month(months)
	// normalize month into [1,12], adjusting year
	for m > 12 {
		m -= 12
		y++
	}
	for m < 1 {
		m += 12
		y--
	}
	if last := daysIn(y, m); d > last {
		d = last
	}
	h, min, sec := t.Clock()
	return time.Date(y, m, d, h, min, sec, t.Nanosecond(), t.Location())
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
