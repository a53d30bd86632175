package adapter

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// CaptureResult is the minimal, provider-agnostic result of a capture or
// refund against the stored payment method.
type CaptureResult struct {
	RefID  string    // provider transaction id
	Amount decimal.Decimal
	Time   time.Time
}

// PaymentGateway is the hex port for the card processor. The billing engine
// only computes amounts; capture is assumed to succeed once invoked, so
// implementations either settle or return a transport error, never a decline.
type PaymentGateway interface {
	Name() string

	// Capture charges the user's stored payment method.
	Capture(ctx context.Context, userID string, amount decimal.Decimal, description string) (CaptureResult, error)
	// Refund returns money to the original payment method.
	Refund(ctx context.Context, userID string, amount decimal.Decimal, description string) (CaptureResult, error)
}
