package payment

import (
	"context"
	"fmt"

	"github.com/stripe/stripe-go/v72"
	"github.com/stripe/stripe-go/v72/client"
)

// StripeGateway implements Gateway against the Stripe PaymentIntents API.
type StripeGateway struct {
	api *client.API
}

func NewStripeGateway(secretKey string) *StripeGateway {
	api := &client.API{}
	api.Init(secretKey, nil)
	return &StripeGateway{api: api}
}

func (g *StripeGateway) CreateIntent(ctx context.Context, amount int64, currency string, metadata map[string]string) (*Authorization, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amount),
		Currency: stripe.String(currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}

	pi, err := g.api.PaymentIntents.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create payment intent: %w", err)
	}

	return &Authorization{
		IntentID:     pi.ID,
		ClientSecret: pi.ClientSecret,
		Amount:       pi.Amount,
	}, nil
}

func (g *StripeGateway) UpdateIntentAmount(ctx context.Context, intentID string, amount int64) error {
	params := &stripe.PaymentIntentParams{
		Amount: stripe.Int64(amount),
	}
	params.Context = ctx

	if _, err := g.api.PaymentIntents.Update(intentID, params); err != nil {
		return fmt.Errorf("failed to update payment intent %s: %w", intentID, err)
	}
	return nil
}
