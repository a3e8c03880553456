package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/example/promo-checkout/internal/domain/order"
	"github.com/stripe/stripe-go/v72"
	"github.com/stripe/stripe-go/v72/webhook"
)

// Reconciler applies asynchronous gateway events to persisted orders. It is
// the only component allowed to move an order to a terminal status; the
// buyer's browser session is never trusted for that.
//
// Delivery is at-least-once and unordered, so every transition is
// conditional on the stored status: replaying an event changes zero rows and
// triggers no duplicate side effects.
type Reconciler struct {
	orders    order.Store
	publisher EventPublisher
	secret    string
}

func NewReconciler(orders order.Store, publisher EventPublisher, webhookSecret string) *Reconciler {
	return &Reconciler{
		orders:    orders,
		publisher: publisher,
		secret:    webhookSecret,
	}
}

// HandleEvent verifies the signature of a raw webhook delivery and processes
// it. An invalid signature returns ErrInvalidSignature and mutates nothing.
func (r *Reconciler) HandleEvent(ctx context.Context, payload []byte, signature string) error {
	event, err := webhook.ConstructEvent(payload, signature, r.secret)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return r.Process(ctx, event)
}

// Process applies a verified gateway event. Unhandled event types are
// acknowledged and ignored.
func (r *Reconciler) Process(ctx context.Context, event stripe.Event) error {
	switch event.Type {
	case "payment_intent.succeeded":
		return r.transition(ctx, event, order.StatusCompleted, order.EventOrderCompleted)
	case "payment_intent.payment_failed":
		return r.transition(ctx, event, order.StatusFailed, order.EventOrderFailed)
	default:
		log.Printf("[Webhook] unhandled event type: %s", event.Type)
		return nil
	}
}

func (r *Reconciler) transition(ctx context.Context, event stripe.Event, status order.Status, eventType string) error {
	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		log.Printf("[Webhook] malformed %s payload: %v", event.Type, err)
		return nil
	}

	affected, err := r.orders.UpdateStatusByIntentID(ctx, pi.ID, status)
	if err != nil {
		// Store failure: surface it so the gateway redelivers.
		return fmt.Errorf("failed to update order for intent %s: %w", pi.ID, err)
	}
	if affected == 0 {
		// Unknown or already-terminal order. Acknowledge so the gateway
		// stops retrying.
		log.Printf("[Webhook] no order transitioned for intent %s (%s)", pi.ID, event.Type)
		return nil
	}

	log.Printf("[Webhook] order for intent %s marked %s", pi.ID, status)

	if r.publisher != nil {
		o, err := r.orders.GetByPaymentIntentID(ctx, pi.ID)
		if err != nil {
			log.Printf("[Webhook] could not load order for intent %s: %v", pi.ID, err)
			return nil
		}
		if err := r.publisher.Publish(ctx, o.ID, order.NewEvent(eventType, o)); err != nil {
			log.Printf("[Webhook] failed to publish %s for order %s: %v", eventType, o.ID, err)
		}
	}
	return nil
}
