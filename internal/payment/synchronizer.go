package payment

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/example/promo-checkout/internal/domain/checkout"
	"github.com/example/promo-checkout/internal/domain/order"
	"github.com/example/promo-checkout/internal/domain/pricing"
)

type SyncState string

const (
	StateUninitialized SyncState = "uninitialized"
	StateCreating      SyncState = "creating"
	StateActive        SyncState = "active"
	StateError         SyncState = "error"
)

// IntentState is a snapshot of the synchronizer for API responses.
type IntentState struct {
	State            SyncState `json:"state"`
	OrderID          string    `json:"order_id,omitempty"`
	IntentID         string    `json:"payment_intent_id,omitempty"`
	ClientSecret     string    `json:"client_secret,omitempty"`
	AuthorizedAmount int64     `json:"authorized_amount,omitempty"`
	LastError        string    `json:"last_error,omitempty"`
}

// Synchronizer keeps one payment authorization in lockstep with a session's
// grand total.
//
// It creates the authorization exactly once, on the first evaluation where
// the buyer contact is complete and the total is positive, and amends the
// existing authorization whenever the rounded amount changes afterwards. A
// failed create re-arms only when the contact is edited. The generation
// counter invalidates any in-flight gateway call that resolves after Reset,
// so a fresh session never inherits a stale authorization.
type Synchronizer struct {
	session   *checkout.Session
	orders    order.Store
	gateway   Gateway
	publisher EventPublisher
	currency  string

	mu             sync.Mutex
	state          SyncState
	generation     int
	orderID        string
	intentID       string
	clientSecret   string
	authorized     int64 // minor units the gateway last confirmed
	target         int64 // minor units the latest amend is aiming for
	lastErr        string
	contactAtError checkout.BuyerContact
}

func NewSynchronizer(session *checkout.Session, orders order.Store, gateway Gateway, publisher EventPublisher) *Synchronizer {
	return &Synchronizer{
		session:   session,
		orders:    orders,
		gateway:   gateway,
		publisher: publisher,
		currency:  "usd",
		state:     StateUninitialized,
	}
}

// Sync evaluates the session's current contact and total against the
// synchronizer state and issues at most one gateway call. Callers invoke it
// after every session mutation; it reacts to values, not to call counts, so
// repeated invocations with unchanged state are no-ops.
func (s *Synchronizer) Sync(ctx context.Context) {
	contact := s.session.Contact()
	amount := MinorUnits(s.session.Quote().GrandTotal)

	s.mu.Lock()

	if s.state == StateCreating {
		// Single in-flight create; this trigger is absorbed.
		s.mu.Unlock()
		return
	}

	if s.state == StateError {
		if contact == s.contactAtError {
			s.mu.Unlock()
			return
		}
		// Contact was edited since the failure; allow another attempt.
		s.state = StateUninitialized
		s.lastErr = ""
	}

	if s.state == StateUninitialized {
		if !contact.Complete() || amount <= 0 {
			s.mu.Unlock()
			return
		}
		s.state = StateCreating
		gen := s.generation
		s.mu.Unlock()
		s.create(ctx, gen, contact, amount)
		return
	}

	// Active: amend in place when the amount drifted from the latest
	// target. The comparison is against target, not authorized, so a total
	// that reverts while an amend is in flight still issues a follow-up
	// amend that supersedes the in-flight one. A zero total is not amended;
	// the gateway keeps the last positive amount until the cart is priced
	// again.
	if amount <= 0 || amount == s.target {
		s.mu.Unlock()
		return
	}
	s.target = amount
	gen := s.generation
	intentID := s.intentID
	s.mu.Unlock()

	err := s.gateway.UpdateIntentAmount(ctx, intentID, amount)

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation || s.target != amount {
		// Superseded by a newer total or by a reset; this response is stale.
		return
	}
	if err != nil {
		// Non-fatal: the stale amount persists until the next successful
		// amend; the gateway's own amount governs at submission.
		log.Printf("[PaymentSync] amend to %d failed for intent %s: %v", amount, intentID, err)
		return
	}
	s.authorized = amount
}

// Reset invalidates any in-flight gateway call and returns the synchronizer
// to the uninitialized state. Called alongside Session.Reset.
func (s *Synchronizer) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.generation++
	s.state = StateUninitialized
	s.orderID = ""
	s.intentID = ""
	s.clientSecret = ""
	s.authorized = 0
	s.target = 0
	s.lastErr = ""
	s.contactAtError = checkout.BuyerContact{}
}

// State returns a snapshot of the current intent state.
func (s *Synchronizer) State() IntentState {
	s.mu.Lock()
	defer s.mu.Unlock()

	return IntentState{
		State:            s.state,
		OrderID:          s.orderID,
		IntentID:         s.intentID,
		ClientSecret:     s.clientSecret,
		AuthorizedAmount: s.authorized,
		LastError:        s.lastErr,
	}
}

// create persists the pending order, then creates the authorization with the
// order id in its metadata, then best-effort links the two. The order insert
// happens first so a webhook can always be reconciled; if it fails, no
// authorization is attempted.
func (s *Synchronizer) create(ctx context.Context, gen int, contact checkout.BuyerContact, amount int64) {
	snapshot := s.snapshotOrder(contact)

	orderID, err := s.orders.Insert(ctx, snapshot)
	if err != nil {
		log.Printf("[PaymentSync] failed to persist pending order: %v", err)
		s.fail(gen, contact, fmt.Sprintf("failed to create order: %v", err))
		return
	}
	snapshot.ID = orderID

	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, orderID, order.NewEvent(order.EventOrderCreated, snapshot)); err != nil {
			log.Printf("[PaymentSync] failed to publish order.created for %s: %v", orderID, err)
		}
	}

	auth, err := s.gateway.CreateIntent(ctx, amount, s.currency, map[string]string{
		"order_id":   orderID,
		"user_email": contact.Email,
		"user_name":  contact.FirstName + " " + contact.LastName,
		"song_count": fmt.Sprintf("%d", len(snapshot.Songs)),
	})
	if err != nil {
		log.Printf("[PaymentSync] failed to create payment intent for order %s: %v", orderID, err)
		s.fail(gen, contact, fmt.Sprintf("failed to create payment intent: %v", err))
		return
	}

	// Best-effort: the webhook path matches via intent metadata even if
	// this link is lost.
	if err := s.orders.AttachPaymentIntent(ctx, orderID, auth.IntentID); err != nil {
		log.Printf("[PaymentSync] failed to attach intent %s to order %s: %v", auth.IntentID, orderID, err)
	}

	s.mu.Lock()
	if gen != s.generation {
		// The session was reset while the create was in flight; discard.
		s.mu.Unlock()
		return
	}
	s.state = StateActive
	s.orderID = orderID
	s.intentID = auth.IntentID
	s.clientSecret = auth.ClientSecret
	s.authorized = auth.Amount
	s.target = auth.Amount
	s.mu.Unlock()

	// The total may have moved while the create was in flight; converge.
	if MinorUnits(s.session.Quote().GrandTotal) != auth.Amount {
		s.Sync(ctx)
	}
}

func (s *Synchronizer) fail(gen int, contact checkout.BuyerContact, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.generation {
		return
	}
	s.state = StateError
	s.lastErr = reason
	s.contactAtError = contact
}

// snapshotOrder copies the session's cart into a pending order record.
func (s *Synchronizer) snapshotOrder(contact checkout.BuyerContact) *order.Order {
	quote := s.session.Quote()

	addons := make([]pricing.Addon, 0)
	for _, id := range s.session.AddonIDs() {
		if addon, ok := pricing.Addons[id]; ok {
			addons = append(addons, addon)
		}
	}

	return &order.Order{
		Songs:       s.session.Items(),
		Tiers:       s.session.TierAssignments(),
		Addons:      addons,
		Contact:     contact,
		TotalAmount: quote.GrandTotal,
		Status:      order.StatusPending,
	}
}
