package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// CookieName is the session cookie set on login.
const CookieName = "token"

type contextKey string

const userNameKey contextKey = "userName"

// RequireAuth rejects requests without a valid token with 401 and stores the
// token's user name in the request context otherwise.
func RequireAuth(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			name, err := extractUserName(r, tokens)
			if err != nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"error":"unauthorized","message":"valid authentication required"}`))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUserName(r.Context(), name)))
		})
	}
}

// OptionalAuth stores the user name when a valid token is present and lets
// every request through. The home page uses it to pre-fill the current user.
func OptionalAuth(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if name, err := extractUserName(r, tokens); err == nil {
				r = r.WithContext(WithUserName(r.Context(), name))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WithUserName returns a context carrying name as the authenticated user.
func WithUserName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, userNameKey, name)
}

// UserNameFromContext returns the authenticated user name, if any.
func UserNameFromContext(ctx context.Context) (string, bool) {
	name, ok := ctx.Value(userNameKey).(string)
	return name, ok && name != ""
}

// extractUserName reads the token from the session cookie, falling back to
// an "Authorization: Bearer" header for API clients such as matchctl.
func extractUserName(r *http.Request, tokens *TokenService) (string, error) {
	if cookie, err := r.Cookie(CookieName); err == nil && cookie.Value != "" {
		return tokens.Validate(cookie.Value)
	}
	header := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(header, "Bearer "); ok && token != "" {
		return tokens.Validate(token)
	}
	return "", errors.New("auth: no token")
}
