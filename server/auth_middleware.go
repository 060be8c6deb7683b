package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/jwillz7667/verbio-auth/token"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const (
	// ContextKeyClaims stores the verified access token claims
	ContextKeyClaims ContextKey = "claims"
)

// RequireAccessToken validates a Bearer access token and injects its claims
// into the request context. Every failure answers with the same generic
// unauthorized body.
func (s *Server) RequireAccessToken() func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			claims := s.claimsFromRequest(r)
			if claims == nil {
				writeUnauthorized(w)
				return
			}

			ctx := context.WithValue(r.Context(), ContextKeyClaims, claims)
			next(w, r.WithContext(ctx))
		}
	}
}

// claimsFromRequest verifies the bearer token when present; nil when the
// header is missing or the token fails verification.
func (s *Server) claimsFromRequest(r *http.Request) *token.AccessClaims {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return nil
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
		return nil
	}

	claims, err := s.issuer.Verify(parts[1])
	if err != nil {
		return nil
	}
	return claims
}

// ClaimsFromContext returns the claims injected by RequireAccessToken.
func ClaimsFromContext(ctx context.Context) *token.AccessClaims {
	claims, _ := ctx.Value(ContextKeyClaims).(*token.AccessClaims)
	return claims
}
