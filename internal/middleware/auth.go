package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"pairspace-backend/internal/models"

	"github.com/go-chi/chi/v5"
)

type contextKey string

const authStateKey contextKey = "auth_state"

// CoupleResolver looks up the couple owning a bearer token
type CoupleResolver interface {
	ResolveByToken(ctx context.Context, token string) (*models.Couple, error)
}

// AuthState is the authenticated identity of a request
type AuthState struct {
	Token  string
	Couple *models.Couple
}

// AuthMiddleware resolves the bearer token to a couple and stores it in the
// request context
func AuthMiddleware(resolver CoupleResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				respondError(w, "Authorization header required", "AUTH_ERROR", http.StatusUnauthorized)
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				respondError(w, "Invalid authorization header format", "AUTH_ERROR", http.StatusUnauthorized)
				return
			}

			couple, err := resolver.ResolveByToken(r.Context(), parts[1])
			if err != nil {
				respondError(w, "Invalid token", "AUTH_ERROR", http.StatusUnauthorized)
				return
			}

			ctx := WithAuthState(r.Context(), &AuthState{Token: parts[1], Couple: couple})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireCoupleParam rejects requests whose URL parameter does not name the
// authenticated couple
func RequireCoupleParam(param string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			couple := GetCouple(r.Context())
			if couple == nil {
				respondError(w, "Authentication required", "AUTH_ERROR", http.StatusUnauthorized)
				return
			}
			if chi.URLParam(r, param) != couple.CoupleID {
				respondError(w, "Token does not belong to this couple", "FORBIDDEN", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WithAuthState returns a context carrying state
func WithAuthState(ctx context.Context, state *AuthState) context.Context {
	return context.WithValue(ctx, authStateKey, state)
}

// GetAuthState extracts the auth state from context
func GetAuthState(ctx context.Context) *AuthState {
	state, ok := ctx.Value(authStateKey).(*AuthState)
	if !ok {
		return nil
	}
	return state
}

// GetCouple extracts the authenticated couple from context
func GetCouple(ctx context.Context) *models.Couple {
	if state := GetAuthState(ctx); state != nil {
		return state.Couple
	}
	return nil
}

// respondError sends an error response
func respondError(w http.ResponseWriter, message, code string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{"error": message, "code": code})
}
