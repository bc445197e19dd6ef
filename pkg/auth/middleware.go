package auth

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
)

type contextKey string

const sessionTokenKey contextKey = "session_token"

// SessionValidator validates the session token for RequireSession.
type SessionValidator interface {
	ValidateSession(ctx context.Context, token string) error
}

// SessionTokenFromContext returns the session token stored by RequireSession.
func SessionTokenFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(sessionTokenKey).(string)
	return v, ok
}

// WithSessionToken stores a session token in ctx.
func WithSessionToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, sessionTokenKey, token)
}

func unauthorized(w http.ResponseWriter, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": code})
}

// RequireSession rejects requests without a valid session cookie and puts
// the token in the request context.
func RequireSession(v SessionValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(SessionCookieName())
			if err != nil || cookie.Value == "" {
				unauthorized(w, "unauthorized")
				return
			}

			if err := v.ValidateSession(r.Context(), cookie.Value); err != nil {
				unauthorized(w, "invalid_session")
				return
			}

			ctx := WithSessionToken(r.Context(), cookie.Value)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireBearer guards machine-to-machine routes with a shared secret sent
// as "Authorization: Bearer <secret>". An empty secret rejects everything.
func RequireBearer(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || secret == "" || subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
				unauthorized(w, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
