package sessions

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/example/promo-checkout/internal/domain/checkout"
	"github.com/example/promo-checkout/internal/domain/order"
	"github.com/example/promo-checkout/internal/payment"
)

var ErrNotFound = errors.New("session not found")

const defaultMaxIdle = 2 * time.Hour

// Entry pairs one checkout session with the synchronizer that keeps its
// payment authorization aligned.
type Entry struct {
	ID           string
	Session      *checkout.Session
	Synchronizer *payment.Synchronizer

	mu         sync.Mutex
	lastActive time.Time
}

// Mutate applies a session mutation and then re-evaluates the payment
// authorization. Every cart change goes through here so the authorization
// can never drift from the priced total for longer than one gateway call.
func (e *Entry) Mutate(ctx context.Context, fn func(*checkout.Session) error) error {
	if err := fn(e.Session); err != nil {
		return err
	}
	e.Synchronizer.Sync(ctx)
	return nil
}

// Reset clears the cart and invalidates any in-flight authorization work.
func (e *Entry) Reset() {
	e.Session.Reset()
	e.Synchronizer.Reset()
}

func (e *Entry) touch() {
	e.mu.Lock()
	e.lastActive = time.Now()
	e.mu.Unlock()
}

func (e *Entry) idleSince(cutoff time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastActive.Before(cutoff)
}

// Registry holds active checkout sessions in memory. Sessions are anonymous
// and short-lived; an abandoned one is swept after a period of inactivity.
type Registry struct {
	orders    order.Store
	gateway   payment.Gateway
	publisher payment.EventPublisher

	mu      sync.RWMutex
	entries map[string]*Entry
	maxIdle time.Duration
}

func NewRegistry(orders order.Store, gateway payment.Gateway, publisher payment.EventPublisher) *Registry {
	return &Registry{
		orders:    orders,
		gateway:   gateway,
		publisher: publisher,
		entries:   make(map[string]*Entry),
		maxIdle:   defaultMaxIdle,
	}
}

// Create starts a new empty session.
func (r *Registry) Create() *Entry {
	session := checkout.NewSession()
	entry := &Entry{
		ID:           session.ID,
		Session:      session,
		Synchronizer: payment.NewSynchronizer(session, r.orders, r.gateway, r.publisher),
		lastActive:   time.Now(),
	}

	r.mu.Lock()
	r.entries[entry.ID] = entry
	r.mu.Unlock()

	return entry
}

// Get returns the session with the given id and marks it active.
func (r *Registry) Get(id string) (*Entry, error) {
	r.mu.RLock()
	entry, ok := r.entries[id]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	entry.touch()
	return entry, nil
}

// Delete removes a session. Missing ids are ignored.
func (r *Registry) Delete(id string) {
	r.mu.Lock()
	delete(r.entries, id)
	r.mu.Unlock()
}

// StartSweeper evicts idle sessions on an interval until ctx is cancelled.
func (r *Registry) StartSweeper(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.sweep()
			}
		}
	}()
}

func (r *Registry) sweep() {
	cutoff := time.Now().Add(-r.maxIdle)

	r.mu.Lock()
	defer r.mu.Unlock()
	for id, entry := range r.entries {
		if entry.idleSince(cutoff) {
			delete(r.entries, id)
			log.Printf("[Sessions] Evicted idle session %s", id)
		}
	}
}
