// Package session keeps one active session per learner across devices.
package session

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ashureev/sciencebuddy/internal/domain"
)

// evictedTTL is how long an evicted token is remembered so its owner can
// be told the session was taken over.
const evictedTTL = time.Hour

type lease struct {
	identity    domain.LearnerIdentity
	fingerprint string
}

// Result reports what CheckAndRegister did.
type Result struct {
	// Conflict is set when another device held the learner's session.
	Conflict bool
	// EvictedToken is the token that lost its session on conflict.
	EvictedToken string
}

// Guard maps learners to their single active session token. State lives
// for the life of the process.
type Guard struct {
	mu        sync.Mutex
	byToken   map[string]lease
	byLearner map[string]string
	evicted   map[string]time.Time
	now       func() time.Time
	log       *slog.Logger
}

// NewGuard creates an empty guard.
func NewGuard(logger *slog.Logger) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{
		byToken:   make(map[string]lease),
		byLearner: make(map[string]string),
		evicted:   make(map[string]time.Time),
		now:       time.Now,
		log:       logger,
	}
}

// NewToken returns a fresh session token.
func NewToken() string {
	return uuid.NewString()
}

// Fingerprint derives a device fingerprint from client headers. It tells
// devices apart; it does not authenticate them.
func Fingerprint(userAgent, acceptLanguage, ip string) string {
	sum := sha256.Sum256([]byte(strings.Join([]string{userAgent, acceptLanguage, ip}, "\x00")))
	return hex.EncodeToString(sum[:])
}

// CheckAndRegister binds token to id. A session held by the same device is
// taken over silently; one held by another device is evicted and reported.
func (g *Guard) CheckAndRegister(id domain.LearnerIdentity, token, fingerprint string) Result {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.pruneEvicted()
	key := id.Key()

	// The token may have belonged to another learner on this device.
	if prev, ok := g.byToken[token]; ok && prev.identity.Key() != key {
		g.unbind(token, prev)
	}

	var res Result
	if current, ok := g.byLearner[key]; ok && current != token {
		held := g.byToken[current]
		g.unbind(current, held)
		if held.fingerprint != fingerprint {
			g.evicted[current] = g.now()
			res = Result{Conflict: true, EvictedToken: current}
			g.log.Info("Learner session taken over by another device",
				"class_number", id.ClassNumber, "student_number", id.StudentNumber)
		}
	}

	g.byToken[token] = lease{identity: id, fingerprint: fingerprint}
	g.byLearner[key] = token
	delete(g.evicted, token)
	return res
}

// Lookup returns the learner bound to token.
func (g *Guard) Lookup(token string) (domain.LearnerIdentity, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	l, ok := g.byToken[token]
	return l.identity, ok
}

// Evicted reports whether token recently lost its session to another device.
func (g *Guard) Evicted(token string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	at, ok := g.evicted[token]
	return ok && g.now().Sub(at) < evictedTTL
}

// Release ends the session held by token.
func (g *Guard) Release(token string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if l, ok := g.byToken[token]; ok {
		g.unbind(token, l)
	}
	delete(g.evicted, token)
}

// Active returns the number of live sessions.
func (g *Guard) Active() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.byToken)
}

func (g *Guard) unbind(token string, l lease) {
	delete(g.byToken, token)
	if key := l.identity.Key(); g.byLearner[key] == token {
		delete(g.byLearner, key)
	}
}

func (g *Guard) pruneEvicted() {
	now := g.now()
	for token, at := range g.evicted {
		if now.Sub(at) >= evictedTTL {
			delete(g.evicted, token)
		}
	}
}
