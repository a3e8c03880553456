package api

import (
	"log"
	"net/http"
	"strings"

	"github.com/example/promo-checkout/internal/api/middleware"
	"github.com/example/promo-checkout/internal/auth"
)

func NewRouter(handlers *Handlers, jwtService *auth.JWTService) http.Handler {
	mux := http.NewServeMux()

	// Sessions
	mux.HandleFunc("/sessions", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			handlers.CreateSession(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("/sessions/", handlers.routeSession)

	// Track lookup
	mux.HandleFunc("/tracks/search", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			handlers.SearchTracks(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})

	// Webhooks
	mux.HandleFunc("/webhooks/stripe", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			handlers.StripeWebhook(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})

	// Admin
	requireOperator := middleware.RequireOperator(jwtService)
	mux.Handle("/admin/orders", requireOperator(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			handlers.AdminListOrders(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})))
	mux.Handle("/admin/orders/", requireOperator(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/admin/orders/")
		switch {
		case r.Method == http.MethodGet && id != "":
			handlers.AdminGetOrder(w, r, id)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})))

	return withLogging(mux)
}

// routeSession dispatches /sessions/{id}/... by path segments.
func (h *Handlers) routeSession(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/sessions/"), "/"), "/")
	if parts[0] == "" {
		http.Error(w, "Session id required", http.StatusBadRequest)
		return
	}
	sessionID := parts[0]
	rest := parts[1:]

	switch {
	case len(rest) == 0 && r.Method == http.MethodGet:
		h.GetSession(w, r, sessionID)
	case len(rest) == 1 && rest[0] == "items" && r.Method == http.MethodPost:
		h.AddItem(w, r, sessionID)
	case len(rest) == 2 && rest[0] == "items" && r.Method == http.MethodDelete:
		h.RemoveItem(w, r, sessionID, rest[1])
	case len(rest) == 3 && rest[0] == "items" && rest[2] == "tier" && r.Method == http.MethodPut:
		h.AssignTier(w, r, sessionID, rest[1])
	case len(rest) == 1 && rest[0] == "contact" && r.Method == http.MethodPut:
		h.UpdateContact(w, r, sessionID)
	case len(rest) == 1 && rest[0] == "addons" && r.Method == http.MethodPut:
		h.SetAddons(w, r, sessionID)
	case len(rest) == 1 && rest[0] == "step" && r.Method == http.MethodPut:
		h.SetStep(w, r, sessionID)
	case len(rest) == 1 && rest[0] == "reset" && r.Method == http.MethodPost:
		h.ResetSession(w, r, sessionID)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Printf("[API] %s %s", r.Method, r.URL.Path)
		next.ServeHTTP(w, r)
	})
}
