// Package identity binds HTTP requests to learner sessions.
package identity

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/ashureev/sciencebuddy/internal/domain"
	"github.com/ashureev/sciencebuddy/internal/session"
)

const (
	SessionCookieName   = "sciencebuddy_session"
	SessionHeaderName   = "X-Session-Token"
	sessionCookieMaxAge = 12 * time.Hour
)

type contextKey int

const (
	learnerKey contextKey = iota
	tokenKey
)

// LearnerFromContext returns the learner set by Middleware.
func LearnerFromContext(ctx context.Context) (domain.LearnerIdentity, bool) {
	id, ok := ctx.Value(learnerKey).(domain.LearnerIdentity)
	return id, ok
}

// TokenFromContext returns the session token set by Middleware.
func TokenFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(tokenKey).(string); ok {
		return v
	}
	return ""
}

// TokenFromRequest returns the session token from the header or cookie,
// or "" if none is present or it is malformed.
func TokenFromRequest(r *http.Request) string {
	token := r.Header.Get(SessionHeaderName)
	if token == "" {
		if c, err := r.Cookie(SessionCookieName); err == nil {
			token = c.Value
		}
	}
	if err := uuid.Validate(token); err != nil {
		return ""
	}
	return token
}

// FingerprintFromRequest derives the device fingerprint of r.
func FingerprintFromRequest(r *http.Request) string {
	return session.Fingerprint(r.UserAgent(), r.Header.Get("Accept-Language"), IPFromRequest(r))
}

// SetSessionCookie stores token in the learner's browser.
func SetSessionCookie(w http.ResponseWriter, token string, isDev bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(sessionCookieMaxAge.Seconds()),
		Expires:  time.Now().Add(sessionCookieMaxAge),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   !isDev,
	})
}

// ClearSessionCookie removes the session cookie.
func ClearSessionCookie(w http.ResponseWriter, isDev bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   !isDev,
	})
}

// Middleware resolves the session token to a learner. Requests without a
// live session get 401; a session taken over by another device gets
// session_terminated so the client can explain what happened.
func Middleware(guard *session.Guard) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := TokenFromRequest(r)
			id, ok := guard.Lookup(token)
			if !ok {
				if token != "" && guard.Evicted(token) {
					unauthorized(w, "session_terminated")
					return
				}
				unauthorized(w, "session_required")
				return
			}

			ctx := context.WithValue(r.Context(), learnerKey, id)
			ctx = context.WithValue(ctx, tokenKey, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// IPFromRequest returns the remote IP without its port.
func IPFromRequest(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func unauthorized(w http.ResponseWriter, reason string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"` + reason + `"}` + "\n"))
}
