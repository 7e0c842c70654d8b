package session

import (
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/sciencebuddy/internal/domain"
)

func learner(c, s string) domain.LearnerIdentity {
	return domain.LearnerIdentity{ClassNumber: c, StudentNumber: s}
}

func TestGuard_FirstRegistration(t *testing.T) {
	g := NewGuard(nil)
	res := g.CheckAndRegister(learner("1", "7"), "tok-a", "device-a")
	if res.Conflict {
		t.Fatal("first registration should not conflict")
	}

	id, ok := g.Lookup("tok-a")
	if !ok || id != learner("1", "7") {
		t.Errorf("Lookup = %v, %v", id, ok)
	}
}

func TestGuard_ConflictFromAnotherDevice(t *testing.T) {
	g := NewGuard(nil)
	id := learner("1", "7")

	g.CheckAndRegister(id, "tok-a", "device-a")
	res := g.CheckAndRegister(id, "tok-b", "device-b")

	if !res.Conflict {
		t.Fatal("expected conflict from a second device")
	}
	if res.EvictedToken != "tok-a" {
		t.Errorf("EvictedToken = %q, want tok-a", res.EvictedToken)
	}
	if _, ok := g.Lookup("tok-a"); ok {
		t.Error("evicted token should no longer resolve")
	}
	if !g.Evicted("tok-a") {
		t.Error("evicted token should be reported as evicted")
	}
	if got, ok := g.Lookup("tok-b"); !ok || got != id {
		t.Errorf("new token should resolve, got %v, %v", got, ok)
	}
}

func TestGuard_SameDeviceReload(t *testing.T) {
	g := NewGuard(nil)
	id := learner("2", "3")

	g.CheckAndRegister(id, "tok-a", "device-a")
	if res := g.CheckAndRegister(id, "tok-a", "device-a"); res.Conflict {
		t.Error("re-registering the same token should not conflict")
	}

	res := g.CheckAndRegister(id, "tok-new", "device-a")
	if res.Conflict {
		t.Error("a new token from the same device should not conflict")
	}
	if g.Evicted("tok-a") {
		t.Error("same-device takeover should not be reported as eviction")
	}
	if g.Active() != 1 {
		t.Errorf("Active() = %d, want 1", g.Active())
	}
}

func TestGuard_TokenSwitchesLearner(t *testing.T) {
	g := NewGuard(nil)

	g.CheckAndRegister(learner("1", "1"), "tok", "device")
	g.CheckAndRegister(learner("1", "2"), "tok", "device")

	if id, _ := g.Lookup("tok"); id != learner("1", "2") {
		t.Errorf("Lookup = %v, want 1/2", id)
	}
	// The first learner's slot is free again.
	if res := g.CheckAndRegister(learner("1", "1"), "other", "elsewhere"); res.Conflict {
		t.Error("released learner should register without conflict")
	}
}

func TestGuard_Release(t *testing.T) {
	g := NewGuard(nil)
	id := learner("1", "7")

	g.CheckAndRegister(id, "tok-a", "device-a")
	g.Release("tok-a")

	if _, ok := g.Lookup("tok-a"); ok {
		t.Error("released token should not resolve")
	}
	if res := g.CheckAndRegister(id, "tok-b", "device-b"); res.Conflict {
		t.Error("registration after release should not conflict")
	}
}

func TestGuard_EvictionIsForgotten(t *testing.T) {
	g := NewGuard(nil)
	now := time.Now()
	g.now = func() time.Time { return now }
	id := learner("1", "7")

	g.CheckAndRegister(id, "tok-a", "device-a")
	g.CheckAndRegister(id, "tok-b", "device-b")

	now = now.Add(evictedTTL + time.Minute)
	if g.Evicted("tok-a") {
		t.Error("eviction should expire")
	}
}

func TestFingerprint(t *testing.T) {
	a := Fingerprint("Mozilla/5.0", "ja", "10.0.0.1")
	if a != Fingerprint("Mozilla/5.0", "ja", "10.0.0.1") {
		t.Error("fingerprint should be deterministic")
	}
	if a == Fingerprint("Mozilla/5.0", "ja", "10.0.0.2") {
		t.Error("different IPs should differ")
	}
	if Fingerprint("ab", "c", "") == Fingerprint("a", "bc", "") {
		t.Error("field boundaries should matter")
	}
}

func TestGuard_ConcurrentAccess(t *testing.T) {
	g := NewGuard(nil)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := learner("1", strconv.Itoa(i%5))
			tok := "tok-" + strconv.Itoa(i)
			g.CheckAndRegister(id, tok, "device-"+strconv.Itoa(i))
			g.Lookup(tok)
			g.Evicted(tok)
		}(i)
	}
	wg.Wait()

	if g.Active() != 5 {
		t.Errorf("Active() = %d, want one session per learner", g.Active())
	}
}
