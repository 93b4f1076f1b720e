package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/telhawk-systems/rangehawk/internal/tokens"
)

const ClaimsKey = contextKey("claims")

// TokenValidator verifies a bearer token.
type TokenValidator interface {
	Validate(token string) (*tokens.Claims, error)
}

// RequireAuth rejects requests without a valid "Authorization: Bearer"
// header and stores the token claims in the request context.
func RequireAuth(v TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				unauthorized(w, "missing authorization header")
				return
			}

			scheme, token, ok := strings.Cut(authHeader, " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
				unauthorized(w, "invalid authorization header")
				return
			}

			claims, err := v.Validate(token)
			if err != nil {
				unauthorized(w, "invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), ClaimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetClaims returns the authenticated claims, or nil.
func GetClaims(ctx context.Context) *tokens.Claims {
	if claims, ok := ctx.Value(ClaimsKey).(*tokens.Claims); ok {
		return claims
	}
	return nil
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="rangehawk"`)
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
