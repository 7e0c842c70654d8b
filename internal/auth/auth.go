// Package auth guards teacher routes with a login token and a flat
// teacher → class mapping loaded from configuration.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// CookieName carries the teacher token.
	CookieName = "sciencebuddy_teacher"

	// LoginPath is where unauthenticated teachers are sent.
	LoginPath = "/teacher/login"

	// AllClasses in a class list grants every class.
	AllClasses = "*"

	defaultTokenTTL = 8 * time.Hour
)

// ErrInvalidCredentials is returned by Login for an unknown teacher or a wrong password.
var ErrInvalidCredentials = errors.New("invalid teacher credentials")

type contextKey int

const teacherKey contextKey = iota

// Config is the teacher directory.
type Config struct {
	// Credentials maps teacher ID to password.
	Credentials map[string]string
	// Classes maps teacher ID to the class numbers they may read.
	// A teacher without an entry sees every class.
	Classes  map[string][]string
	TokenTTL time.Duration
}

type grant struct {
	teacher string
	expires time.Time
}

// Authorizer issues and checks teacher tokens.
type Authorizer struct {
	cfg Config
	log *slog.Logger
	now func() time.Time

	mu     sync.Mutex
	tokens map[string]grant
}

// New creates an Authorizer.
func New(cfg Config, logger *slog.Logger) *Authorizer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = defaultTokenTTL
	}
	return &Authorizer{
		cfg:    cfg,
		log:    logger,
		now:    time.Now,
		tokens: make(map[string]grant),
	}
}

// Login checks the credentials and returns a new token.
func (a *Authorizer) Login(teacherID, password string) (string, error) {
	want, ok := a.cfg.Credentials[teacherID]
	if !ok || subtle.ConstantTimeCompare([]byte(want), []byte(password)) != 1 {
		a.log.Warn("Teacher login failed", "teacher_id", teacherID)
		return "", ErrInvalidCredentials
	}

	token := uuid.NewString()
	a.mu.Lock()
	a.tokens[token] = grant{teacher: teacherID, expires: a.now().Add(a.cfg.TokenTTL)}
	a.mu.Unlock()

	a.log.Info("Teacher logged in", "teacher_id", teacherID)
	return token, nil
}

// Logout revokes token.
func (a *Authorizer) Logout(token string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.tokens, token)
}

// TokenTTL returns the lifetime of issued tokens.
func (a *Authorizer) TokenTTL() time.Duration {
	return a.cfg.TokenTTL
}

// Authorize checks the request's teacher token. On failure it returns the
// path the client should be sent to.
func (a *Authorizer) Authorize(r *http.Request) (bool, string) {
	if _, ok := a.teacher(TokenFromRequest(r)); !ok {
		return false, LoginPath
	}
	return true, ""
}

// Middleware rejects requests that fail Authorize and stores the teacher
// ID in the request context for the rest.
func (a *Authorizer) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		teacherID, ok := a.teacher(TokenFromRequest(r))
		if !ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"unauthorized","redirect":"` + LoginPath + `"}`))
			return
		}
		ctx := context.WithValue(r.Context(), teacherKey, teacherID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Classes returns the classes teacherID may read, or nil for all classes.
func (a *Authorizer) Classes(teacherID string) []string {
	classes, ok := a.cfg.Classes[teacherID]
	if !ok || slices.Contains(classes, AllClasses) {
		return nil
	}
	return classes
}

// CanView reports whether teacherID may read records of class.
func (a *Authorizer) CanView(teacherID, class string) bool {
	classes := a.Classes(teacherID)
	return classes == nil || slices.Contains(classes, class)
}

// TeacherFromContext returns the teacher set by Middleware.
func TeacherFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(teacherKey).(string)
	return v, ok
}

// TokenFromRequest reads the token from a bearer header or the cookie.
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	if c, err := r.Cookie(CookieName); err == nil {
		return c.Value
	}
	return ""
}

func (a *Authorizer) teacher(token string) (string, bool) {
	if token == "" {
		return "", false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	g, ok := a.tokens[token]
	if !ok {
		return "", false
	}
	if a.now().After(g.expires) {
		delete(a.tokens, token)
		return "", false
	}
	return g.teacher, true
}
