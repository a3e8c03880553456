package notification

import (
	"context"
	"log"

	"github.com/example/promo-checkout/internal/domain/order"
	"github.com/example/promo-checkout/internal/email"
)

// Sender delivers order confirmation mail.
type Sender interface {
	SendOrderConfirmation(to, orderID string, total float64, items []email.OrderItem) error
}

// Handler turns order events into buyer notifications. Only completed
// orders produce mail; created and failed events are informational.
type Handler struct {
	sender Sender
}

func NewHandler(sender Sender) *Handler {
	return &Handler{sender: sender}
}

// HandleEvent processes one order event from Kafka.
func (h *Handler) HandleEvent(ctx context.Context, event order.Event) error {
	if event.Type != order.EventOrderCompleted {
		return nil
	}
	return h.handleOrderCompleted(event)
}

func (h *Handler) handleOrderCompleted(event order.Event) error {
	if event.Email == "" {
		log.Printf("[Notifier] Order %s completed without a buyer email, skipping", event.OrderID)
		return nil
	}

	items := make([]email.OrderItem, len(event.Items))
	for i, item := range event.Items {
		items[i] = email.OrderItem{
			TrackName: item.TrackName,
			Artist:    item.Artist,
			TierName:  item.TierName,
			Price:     item.Price,
		}
	}

	if err := h.sender.SendOrderConfirmation(event.Email, event.OrderID, event.TotalAmount, items); err != nil {
		log.Printf("[Notifier] Failed to send email to %s: %v", event.Email, err)
		return err
	}

	log.Printf("[Notifier] Order confirmation email sent to %s for order %s", event.Email, event.OrderID)
	return nil
}
