package payment

import (
	"context"
	"errors"
	"math"
)

var ErrInvalidSignature = errors.New("invalid webhook signature")

// Authorization is the gateway's hold object for an amount to be charged.
// It is created once per checkout session and amended in place afterwards.
type Authorization struct {
	IntentID     string
	ClientSecret string
	Amount       int64 // minor units
}

// Gateway is the payment provider boundary. Amounts cross this boundary in
// integer minor units only.
type Gateway interface {
	CreateIntent(ctx context.Context, amount int64, currency string, metadata map[string]string) (*Authorization, error)
	UpdateIntentAmount(ctx context.Context, intentID string, amount int64) error
}

// EventPublisher publishes order events, keyed by order id.
type EventPublisher interface {
	Publish(ctx context.Context, key string, event any) error
}

// MinorUnits converts a decimal dollar amount to cents. This is the only
// place decimal amounts become integer amounts.
func MinorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}
