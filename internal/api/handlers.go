package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/example/promo-checkout/internal/domain/checkout"
	"github.com/example/promo-checkout/internal/domain/order"
	"github.com/example/promo-checkout/internal/domain/pricing"
	"github.com/example/promo-checkout/internal/payment"
	"github.com/example/promo-checkout/internal/sessions"
)

// Stripe caps webhook payloads well below this.
const maxWebhookBody = 1 << 16

// TrackSearcher answers storefront track searches.
type TrackSearcher interface {
	Search(ctx context.Context, query string) []checkout.Track
}

type Handlers struct {
	registry   *sessions.Registry
	tracks     TrackSearcher
	reconciler *payment.Reconciler
	orders     order.Store
}

func NewHandlers(registry *sessions.Registry, tracks TrackSearcher, reconciler *payment.Reconciler, orders order.Store) *Handlers {
	return &Handlers{
		registry:   registry,
		tracks:     tracks,
		reconciler: reconciler,
		orders:     orders,
	}
}

// sessionView is the full session state returned by every session endpoint,
// so the storefront can re-render from any response.
type sessionView struct {
	ID       string                  `json:"id"`
	Step     int                     `json:"step"`
	Items    []checkout.LineItem     `json:"items"`
	Tiers    map[string]pricing.Tier `json:"tiers"`
	Contact  checkout.BuyerContact   `json:"contact"`
	AddonIDs []string                `json:"addon_ids"`
	Quote    pricing.PriceQuote      `json:"quote"`
	Payment  payment.IntentState     `json:"payment"`
}

func viewOf(entry *sessions.Entry) sessionView {
	return sessionView{
		ID:       entry.ID,
		Step:     entry.Session.Step(),
		Items:    entry.Session.Items(),
		Tiers:    entry.Session.TierAssignments(),
		Contact:  entry.Session.Contact(),
		AddonIDs: entry.Session.AddonIDs(),
		Quote:    entry.Session.Quote(),
		Payment:  entry.Synchronizer.State(),
	}
}

// Session handlers

func (h *Handlers) CreateSession(w http.ResponseWriter, r *http.Request) {
	entry := h.registry.Create()
	respondJSON(w, http.StatusCreated, viewOf(entry))
}

func (h *Handlers) GetSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	entry, err := h.registry.Get(sessionID)
	if err != nil {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}
	respondJSON(w, http.StatusOK, viewOf(entry))
}

func (h *Handlers) AddItem(w http.ResponseWriter, r *http.Request, sessionID string) {
	entry, err := h.registry.Get(sessionID)
	if err != nil {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	var req struct {
		Track checkout.Track `json:"track"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Track.ID == "" || req.Track.Name == "" {
		http.Error(w, "track id and name are required", http.StatusBadRequest)
		return
	}

	var itemID string
	_ = entry.Mutate(r.Context(), func(s *checkout.Session) error {
		itemID = s.AddLineItem(req.Track)
		return nil
	})

	respondJSON(w, http.StatusCreated, struct {
		ItemID string `json:"item_id"`
		sessionView
	}{itemID, viewOf(entry)})
}

func (h *Handlers) RemoveItem(w http.ResponseWriter, r *http.Request, sessionID, itemID string) {
	entry, err := h.registry.Get(sessionID)
	if err != nil {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	_ = entry.Mutate(r.Context(), func(s *checkout.Session) error {
		s.RemoveLineItem(itemID)
		return nil
	})

	respondJSON(w, http.StatusOK, viewOf(entry))
}

func (h *Handlers) AssignTier(w http.ResponseWriter, r *http.Request, sessionID, itemID string) {
	entry, err := h.registry.Get(sessionID)
	if err != nil {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	var req struct {
		TierID string `json:"tier_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	err = entry.Mutate(r.Context(), func(s *checkout.Session) error {
		return s.AssignTier(itemID, req.TierID)
	})
	if errors.Is(err, checkout.ErrUnknownTier) {
		http.Error(w, "Unknown tier", http.StatusBadRequest)
		return
	}

	respondJSON(w, http.StatusOK, viewOf(entry))
}

func (h *Handlers) UpdateContact(w http.ResponseWriter, r *http.Request, sessionID string) {
	entry, err := h.registry.Get(sessionID)
	if err != nil {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	var update checkout.ContactUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	_ = entry.Mutate(r.Context(), func(s *checkout.Session) error {
		s.SetBuyerContact(update)
		return nil
	})

	respondJSON(w, http.StatusOK, viewOf(entry))
}

func (h *Handlers) SetAddons(w http.ResponseWriter, r *http.Request, sessionID string) {
	entry, err := h.registry.Get(sessionID)
	if err != nil {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	var req struct {
		AddonIDs []string `json:"addon_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	_ = entry.Mutate(r.Context(), func(s *checkout.Session) error {
		s.SetAddons(req.AddonIDs)
		return nil
	})

	respondJSON(w, http.StatusOK, viewOf(entry))
}

func (h *Handlers) SetStep(w http.ResponseWriter, r *http.Request, sessionID string) {
	entry, err := h.registry.Get(sessionID)
	if err != nil {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	var req struct {
		Step int `json:"step"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	err = entry.Mutate(r.Context(), func(s *checkout.Session) error {
		return s.SetStep(req.Step)
	})
	if errors.Is(err, checkout.ErrInvalidStep) {
		http.Error(w, "Invalid step", http.StatusBadRequest)
		return
	}

	respondJSON(w, http.StatusOK, viewOf(entry))
}

func (h *Handlers) ResetSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	entry, err := h.registry.Get(sessionID)
	if err != nil {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	entry.Reset()
	respondJSON(w, http.StatusOK, viewOf(entry))
}

// Track lookup

func (h *Handlers) SearchTracks(w http.ResponseWriter, r *http.Request) {
	tracks := h.tracks.Search(r.Context(), r.URL.Query().Get("q"))
	respondJSON(w, http.StatusOK, map[string][]checkout.Track{"tracks": tracks})
}

// Webhooks

func (h *Handlers) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	err = h.reconciler.HandleEvent(r.Context(), payload, r.Header.Get("Stripe-Signature"))
	if errors.Is(err, payment.ErrInvalidSignature) {
		http.Error(w, "invalid signature", http.StatusBadRequest)
		return
	}
	if err != nil {
		// Non-2xx makes the gateway redeliver, which is what we want when
		// the store was unreachable.
		log.Printf("[API] webhook processing failed: %v", err)
		http.Error(w, "webhook processing failed", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// Admin handlers

func (h *Handlers) AdminListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.List(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if orders == nil {
		orders = []*order.Order{}
	}
	respondJSON(w, http.StatusOK, orders)
}

func (h *Handlers) AdminGetOrder(w http.ResponseWriter, r *http.Request, orderID string) {
	o, err := h.orders.GetByID(r.Context(), orderID)
	if errors.Is(err, order.ErrNotFound) {
		http.Error(w, "Order not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, o)
}

// Helper functions

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
