package auth

import (
	"context"
	"net/http"
	"strings"
)

// contextKey is a private type for context keys.
type contextKey int

const tokenContextKey contextKey = iota

// WithToken stores a presented credential in the context.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenContextKey, token)
}

// GetToken retrieves the presented credential from the context.
func GetToken(ctx context.Context) string {
	if token, ok := ctx.Value(tokenContextKey).(string); ok {
		return token
	}
	return ""
}

// Middleware extracts a credential from the Authorization or X-API-Key
// header and, when an authenticator is configured, rejects requests that
// fail validation. A nil authenticator only propagates the token.
func Middleware(authenticator Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractToken(r)
			ctx := r.Context()
			if token != "" {
				ctx = WithToken(ctx, token)
			}

			if authenticator != nil {
				if _, err := authenticator.Authenticate(ctx); err != nil {
					http.Error(w, "Unauthorized", http.StatusUnauthorized)
					return
				}
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func extractToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(header, "Bearer "); ok {
		return token
	}
	return r.Header.Get("X-API-Key")
}
