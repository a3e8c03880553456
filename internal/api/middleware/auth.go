package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/example/promo-checkout/internal/auth"
)

func respondError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// ExtractToken pulls the token from a cookie or the Authorization header.
func ExtractToken(r *http.Request) string {
	if cookie, err := r.Cookie("access_token"); err == nil {
		return cookie.Value
	}
	if authHeader := r.Header.Get("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	return ""
}

type contextKey string

const OperatorContextKey contextKey = "operator"

// RequireOperator validates the admin token and checks the operator role.
// The checkout surface is anonymous; only /admin routes pass through here.
func RequireOperator(jwtService *auth.JWTService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := ExtractToken(r)
			if tokenString == "" {
				respondError(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			claims, err := jwtService.ValidateToken(tokenString)
			if err != nil {
				respondError(w, "invalid token", http.StatusUnauthorized)
				return
			}
			if claims.Role != auth.RoleOperator {
				respondError(w, "forbidden", http.StatusForbidden)
				return
			}

			ctx := context.WithValue(r.Context(), OperatorContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OperatorFromContext retrieves operator claims from the request context.
func OperatorFromContext(ctx context.Context) (*auth.Claims, bool) {
	claims, ok := ctx.Value(OperatorContextKey).(*auth.Claims)
	return claims, ok
}
