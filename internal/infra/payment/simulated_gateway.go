package payment

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"ubid-billing/internal/domain"
	"ubid-billing/internal/domain/ports/adapter"
)

var _ adapter.PaymentGateway = (*SimulatedGateway)(nil)

// SimulatedGateway settles every capture and refund against an in-memory
// ledger after a configurable processor delay. Stands in for the real card
// processor, which the billing engine assumes always succeeds once invoked.
type SimulatedGateway struct {
	mu    sync.Mutex
	seq   int64
	delay time.Duration

	// Settled keeps the full movement history, newest last.
	Settled []adapter.CaptureResult
}

func NewSimulatedGateway(delay time.Duration) *SimulatedGateway {
	return &SimulatedGateway{delay: delay}
}

func (g *SimulatedGateway) Name() string { return "simulated" }

func (g *SimulatedGateway) Capture(ctx context.Context, userID string, amount decimal.Decimal, description string) (adapter.CaptureResult, error) {
	if !amount.IsPositive() {
		return adapter.CaptureResult{}, domain.ErrInvalidArgument
	}
	return g.settle(ctx, amount)
}

func (g *SimulatedGateway) Refund(ctx context.Context, userID string, amount decimal.Decimal, description string) (adapter.CaptureResult, error) {
	if !amount.IsPositive() {
		return adapter.CaptureResult{}, domain.ErrInvalidArgument
	}
	return g.settle(ctx, amount.Neg())
}

func (g *SimulatedGateway) settle(ctx context.Context, amount decimal.Decimal) (adapter.CaptureResult, error) {
	if g.delay > 0 {
		select {
		case <-ctx.Done():
			return adapter.CaptureResult{}, ctx.Err()
		case <-time.After(g.delay):
		}
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	res := adapter.CaptureResult{
		RefID:  fmt.Sprintf("sim-%d", g.seq),
		Amount: amount,
		Time:   time.Now(),
	}
	g.Settled = append(g.Settled, res)
	return res, nil
}
