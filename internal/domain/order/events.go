package order

import "time"

// Event types published to the order events topic.
const (
	EventOrderCreated   = "order.created"
	EventOrderCompleted = "order.completed"
	EventOrderFailed    = "order.failed"
)

// EventItem is one promoted song as carried in an order event.
type EventItem struct {
	TrackName string  `json:"track_name"`
	Artist    string  `json:"artist"`
	TierName  string  `json:"tier_name"`
	Price     float64 `json:"price"`
}

// Event is the envelope written to Kafka, keyed by order id.
type Event struct {
	Type            string      `json:"type"`
	OrderID         string      `json:"order_id"`
	PaymentIntentID string      `json:"payment_intent_id,omitempty"`
	Email           string      `json:"email,omitempty"`
	TotalAmount     float64     `json:"total_amount"`
	Items           []EventItem `json:"items,omitempty"`
	OccurredAt      time.Time   `json:"occurred_at"`
}

// NewEvent builds an event from an order record.
func NewEvent(eventType string, o *Order) Event {
	items := make([]EventItem, 0, len(o.Songs))
	for _, song := range o.Songs {
		item := EventItem{
			TrackName: song.Track.Name,
			Artist:    song.Track.Artist,
		}
		if tier, ok := o.Tiers[song.InstanceID]; ok {
			item.TierName = tier.Name
			item.Price = tier.Price
		}
		items = append(items, item)
	}

	return Event{
		Type:            eventType,
		OrderID:         o.ID,
		PaymentIntentID: o.PaymentIntentID,
		Email:           o.Contact.Email,
		TotalAmount:     o.TotalAmount,
		Items:           items,
		OccurredAt:      time.Now(),
	}
}
