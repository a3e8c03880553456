package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/example/promo-checkout/internal/domain/checkout"
	"github.com/example/promo-checkout/internal/domain/order"
	"github.com/example/promo-checkout/internal/infrastructure/store/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v72"
)

const testWebhookSecret = "whsec_test_secret"

func intentEvent(eventType, intentID string) stripe.Event {
	raw, _ := json.Marshal(map[string]string{"id": intentID})
	return stripe.Event{
		Type: eventType,
		Data: &stripe.EventData{Raw: raw},
	}
}

// seedOrder inserts a pending order linked to the given intent id.
func seedOrder(t *testing.T, orders *mocks.MockOrderStore, intentID string) string {
	t.Helper()
	id, err := orders.Insert(context.Background(), &order.Order{
		Songs:       []checkout.LineItem{{InstanceID: "item-1", Track: checkout.Track{Name: "Song A", Artist: "Artist"}}},
		Contact:     checkout.BuyerContact{Email: "buyer@example.com", FirstName: "Jamie", LastName: "Rivera"},
		TotalAmount: 129.0,
		Status:      order.StatusPending,
	})
	require.NoError(t, err)
	require.NoError(t, orders.AttachPaymentIntent(context.Background(), id, intentID))
	return id
}

func TestReconciler_SucceededEventCompletesOrder(t *testing.T) {
	orders := mocks.NewMockOrderStore()
	publisher := &mockPublisher{}
	r := NewReconciler(orders, publisher, testWebhookSecret)
	orderID := seedOrder(t, orders, "pi_123")

	err := r.Process(context.Background(), intentEvent("payment_intent.succeeded", "pi_123"))

	require.NoError(t, err)
	o, err := orders.GetByID(context.Background(), orderID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusCompleted, o.Status)

	require.Len(t, publisher.Events, 1)
	evt := publisher.Events[0].(order.Event)
	assert.Equal(t, order.EventOrderCompleted, evt.Type)
	assert.Equal(t, orderID, evt.OrderID)
}

func TestReconciler_FailedEventMarksOrderFailed(t *testing.T) {
	orders := mocks.NewMockOrderStore()
	r := NewReconciler(orders, nil, testWebhookSecret)
	orderID := seedOrder(t, orders, "pi_456")

	err := r.Process(context.Background(), intentEvent("payment_intent.payment_failed", "pi_456"))

	require.NoError(t, err)
	o, _ := orders.GetByID(context.Background(), orderID)
	assert.Equal(t, order.StatusFailed, o.Status)
}

func TestReconciler_ReplayedEventIsIdempotent(t *testing.T) {
	orders := mocks.NewMockOrderStore()
	publisher := &mockPublisher{}
	r := NewReconciler(orders, publisher, testWebhookSecret)
	orderID := seedOrder(t, orders, "pi_123")
	ctx := context.Background()

	event := intentEvent("payment_intent.succeeded", "pi_123")
	require.NoError(t, r.Process(ctx, event))
	require.NoError(t, r.Process(ctx, event))

	o, _ := orders.GetByID(ctx, orderID)
	assert.Equal(t, order.StatusCompleted, o.Status)
	assert.Len(t, orders.StatusCalls, 2, "both deliveries hit the store")
	assert.Len(t, publisher.Events, 1, "only the first transition publishes")
}

func TestReconciler_UnknownIntentAcknowledged(t *testing.T) {
	orders := mocks.NewMockOrderStore()
	publisher := &mockPublisher{}
	r := NewReconciler(orders, publisher, testWebhookSecret)

	err := r.Process(context.Background(), intentEvent("payment_intent.payment_failed", "pi_nobody"))

	require.NoError(t, err, "the gateway must receive a success acknowledgment")
	assert.Empty(t, publisher.Events)
}

func TestReconciler_UnhandledEventTypeIgnored(t *testing.T) {
	orders := mocks.NewMockOrderStore()
	r := NewReconciler(orders, nil, testWebhookSecret)

	err := r.Process(context.Background(), stripe.Event{Type: "charge.refunded"})

	require.NoError(t, err)
	assert.Empty(t, orders.StatusCalls)
}

func signPayload(payload []byte, secret string, at time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", at.Unix(), payload)
	return fmt.Sprintf("t=%d,v1=%s", at.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func TestReconciler_HandleEvent_ValidSignature(t *testing.T) {
	orders := mocks.NewMockOrderStore()
	r := NewReconciler(orders, nil, testWebhookSecret)
	orderID := seedOrder(t, orders, "pi_789")

	payload := []byte(`{"id":"evt_1","type":"payment_intent.succeeded","data":{"object":{"id":"pi_789"}}}`)
	signature := signPayload(payload, testWebhookSecret, time.Now())

	err := r.HandleEvent(context.Background(), payload, signature)

	require.NoError(t, err)
	o, _ := orders.GetByID(context.Background(), orderID)
	assert.Equal(t, order.StatusCompleted, o.Status)
}

func TestReconciler_HandleEvent_InvalidSignatureMutatesNothing(t *testing.T) {
	orders := mocks.NewMockOrderStore()
	r := NewReconciler(orders, nil, testWebhookSecret)
	seedOrder(t, orders, "pi_789")

	payload := []byte(`{"id":"evt_1","type":"payment_intent.succeeded","data":{"object":{"id":"pi_789"}}}`)
	signature := signPayload(payload, "whsec_wrong_secret", time.Now())

	err := r.HandleEvent(context.Background(), payload, signature)

	assert.ErrorIs(t, err, ErrInvalidSignature)
	assert.Empty(t, orders.StatusCalls)
}
