package order

import (
	"context"
	"errors"
	"time"

	"github.com/example/promo-checkout/internal/domain/checkout"
	"github.com/example/promo-checkout/internal/domain/pricing"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

var (
	ErrNotFound = errors.New("order not found")
	ErrEmpty    = errors.New("order must have at least one song")
)

// Order is the durable record of a checkout attempt. It is created in
// pending status before any payment authorization exists, so its id can be
// embedded in the intent metadata for webhook reconciliation. Status moves
// to a terminal value only through the webhook reconciler, never from
// client-reported outcomes.
type Order struct {
	ID              string                  `json:"id"`
	Songs           []checkout.LineItem     `json:"songs"`
	Tiers           map[string]pricing.Tier `json:"tiers"`
	Addons          []pricing.Addon         `json:"addons"`
	Contact         checkout.BuyerContact   `json:"contact"`
	TotalAmount     float64                 `json:"total_amount"`
	PaymentIntentID string                  `json:"payment_intent_id,omitempty"`
	Status          Status                  `json:"status"`
	CreatedAt       time.Time               `json:"created_at"`
	UpdatedAt       time.Time               `json:"updated_at"`
}

// Store is the durable order store.
type Store interface {
	// Insert persists a new pending order and returns its id.
	Insert(ctx context.Context, o *Order) (string, error)

	// AttachPaymentIntent links an authorization to an existing order.
	// Best-effort from the caller's point of view: the webhook path can
	// still match via intent metadata if this write is lost.
	AttachPaymentIntent(ctx context.Context, orderID, intentID string) error

	// UpdateStatusByIntentID transitions the order matched by payment
	// intent id and returns the number of rows that actually changed.
	// Replaying the same transition changes zero rows.
	UpdateStatusByIntentID(ctx context.Context, intentID string, status Status) (int64, error)

	// GetByPaymentIntentID returns the order linked to an intent.
	GetByPaymentIntentID(ctx context.Context, intentID string) (*Order, error)

	GetByID(ctx context.Context, id string) (*Order, error)
	List(ctx context.Context) ([]*Order, error)
}
