package authgate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hatchpanel/authgate/identity"
	"github.com/hatchpanel/authgate/session"
)

func TestAuthenticateNoCredential(t *testing.T) {
	users := newMockUserStore()
	engine, _ := newTestEngine(t, testConfig(), users, nil)

	res, err := engine.Authenticate(context.Background(), "", GateStandard)
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if res.State != StateNoCredential {
		t.Fatalf("expected StateNoCredential, got %s", res.State)
	}
}

func TestAuthenticateInvalidCredential(t *testing.T) {
	users := newMockUserStore()
	engine, _ := newTestEngine(t, testConfig(), users, nil)

	for _, raw := range []string{"garbage", "a.b.c"} {
		res, err := engine.Authenticate(context.Background(), raw, GateStandard)
		if err != nil {
			t.Fatalf("Authenticate failed: %v", err)
		}
		if res.State != StateInvalidCredential {
			t.Fatalf("input %q: expected StateInvalidCredential, got %s", raw, res.State)
		}
	}
}

func TestAuthenticateHappyPath(t *testing.T) {
	users := newMockUserStore()
	engine, _ := newTestEngine(t, testConfig(), users, nil)
	userID := seedUser(t, users, nil)

	started := beginTestSession(t, engine, userID)
	if started.TwoFactorPending {
		t.Fatal("account without 2FA must not start pending")
	}

	res, err := engine.Authenticate(context.Background(), started.CookieValue, GateStandard)
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if res.State != StateAuthenticated {
		t.Fatalf("expected StateAuthenticated, got %s", res.State)
	}
	if res.Identity.UserID != userID {
		t.Fatalf("resolved wrong identity: %s", res.Identity.UserID)
	}
	if res.SessionToken != started.Token {
		t.Fatal("resolution must carry the session token")
	}
}

func TestAuthenticateAfterLogout(t *testing.T) {
	users := newMockUserStore()
	engine, _ := newTestEngine(t, testConfig(), users, nil)
	userID := seedUser(t, users, nil)

	started := beginTestSession(t, engine, userID)
	if err := engine.Logout(context.Background(), started.CookieValue); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}

	res, err := engine.Authenticate(context.Background(), started.CookieValue, GateStandard)
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if res.State != StateExpiredSession {
		t.Fatalf("expected StateExpiredSession, got %s", res.State)
	}
}

func TestAuthenticateExpiredSession(t *testing.T) {
	users := newMockUserStore()
	cfg := testConfig()
	engine, mr := newTestEngine(t, cfg, users, nil)
	userID := seedUser(t, users, nil)

	started := beginTestSession(t, engine, userID)

	// Swap in a store whose clock sits past the session expiry.
	future := time.Now().Add(cfg.Session.TTL + time.Hour)
	engine.sessions = session.NewStore(
		redis.NewClient(&redis.Options{Addr: mr.Addr()}),
		cfg.Session.RedisPrefix, cfg.Session.ExpiredGrace,
		session.WithClock(func() time.Time { return future }),
	)

	res, err := engine.Authenticate(context.Background(), started.CookieValue, GateStandard)
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if res.State != StateExpiredSession {
		t.Fatalf("expected StateExpiredSession, got %s", res.State)
	}
}

func TestAuthenticateTwoFactorPending(t *testing.T) {
	users := newMockUserStore()
	engine, _ := newTestEngine(t, testConfig(), users, newMockVerifier())
	userID := seedUser(t, users, func(rec *UserRecord) {
		rec.TwoFactorEnabled = true
	})

	started := beginTestSession(t, engine, userID)
	if !started.TwoFactorPending {
		t.Fatal("two-factor account must start pending")
	}

	res, err := engine.Authenticate(context.Background(), started.CookieValue, GateStandard)
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if res.State != StateTwoFactorPending {
		t.Fatalf("standard gate: expected StateTwoFactorPending, got %s", res.State)
	}
	if res.SessionToken != started.Token {
		t.Fatal("pending resolution must carry the session token")
	}

	// The exempt gate lets the same session through so the challenge can
	// be consumed.
	res, err = engine.Authenticate(context.Background(), started.CookieValue, GateTwoFactorExempt)
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if res.State != StateAuthenticated {
		t.Fatalf("exempt gate: expected StateAuthenticated, got %s", res.State)
	}
}

func TestAuthenticateSecondFactorSatisfiedSkipsPending(t *testing.T) {
	users := newMockUserStore()
	engine, _ := newTestEngine(t, testConfig(), users, newMockVerifier())
	userID := seedUser(t, users, func(rec *UserRecord) {
		rec.TwoFactorEnabled = true
	})

	started, err := engine.BeginSession(context.Background(), BeginSessionOptions{
		UserID:                userID,
		IP:                    "203.0.113.9",
		SecondFactorSatisfied: true,
	})
	if err != nil {
		t.Fatalf("BeginSession failed: %v", err)
	}
	if started.TwoFactorPending {
		t.Fatal("flow that satisfied a factor must not start pending")
	}

	res, err := engine.Authenticate(context.Background(), started.CookieValue, GateStandard)
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if res.State != StateAuthenticated {
		t.Fatalf("expected StateAuthenticated, got %s", res.State)
	}
}

func TestAuthenticateElevated(t *testing.T) {
	users := newMockUserStore()
	engine, _ := newTestEngine(t, testConfig(), users, nil)
	rootID := seedUser(t, users, func(rec *UserRecord) {
		rec.Root = true
	})
	plainID := seedUser(t, users, func(rec *UserRecord) {
		rec.Username = "bob"
		rec.Email = "bob@example.com"
	})

	rootSession := beginTestSession(t, engine, rootID)
	plainSession := beginTestSession(t, engine, plainID)

	res, err := engine.Authenticate(context.Background(), rootSession.CookieValue, GateElevated)
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if res.State != StateElevated {
		t.Fatalf("expected StateElevated for root, got %s", res.State)
	}

	res, err = engine.Authenticate(context.Background(), plainSession.CookieValue, GateElevated)
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if res.State != StatePrivilegeRejected {
		t.Fatalf("expected StatePrivilegeRejected, got %s", res.State)
	}

	// The rejected session is still valid under the standard gate.
	res, err = engine.Authenticate(context.Background(), plainSession.CookieValue, GateStandard)
	if err != nil || res.State != StateAuthenticated {
		t.Fatalf("standard gate after rejection: state=%s err=%v", res.State, err)
	}
}

func TestAuthenticateElevatedPredicateOverride(t *testing.T) {
	users := newMockUserStore()
	cfg := testConfig()
	cfg.Gate.ElevatedPredicate = func(snap identity.Snapshot) bool {
		return snap.EmailVerified
	}
	engine, _ := newTestEngine(t, cfg, users, nil)
	userID := seedUser(t, users, func(rec *UserRecord) {
		rec.EmailVerified = true
		rec.Root = false
	})

	started := beginTestSession(t, engine, userID)

	res, err := engine.Authenticate(context.Background(), started.CookieValue, GateElevated)
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if res.State != StateElevated {
		t.Fatalf("expected predicate to grant elevation, got %s", res.State)
	}
}

func TestAuthenticateCacheCoherence(t *testing.T) {
	users := newMockUserStore()
	engine, _ := newTestEngine(t, testConfig(), users, nil)
	userID := seedUser(t, users, nil)

	started := beginTestSession(t, engine, userID)

	if _, err := engine.Authenticate(context.Background(), started.CookieValue, GateStandard); err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}

	if err := engine.UpdateUsername(context.Background(), userID, "renamed"); err != nil {
		t.Fatalf("UpdateUsername failed: %v", err)
	}

	res, err := engine.Authenticate(context.Background(), started.CookieValue, GateStandard)
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if res.Identity.Username != "renamed" {
		t.Fatalf("stale cache: got username %q", res.Identity.Username)
	}
}

func TestAuthenticateOrphanSession(t *testing.T) {
	users := newMockUserStore()
	engine, _ := newTestEngine(t, testConfig(), users, nil)
	userID := seedUser(t, users, nil)

	started := beginTestSession(t, engine, userID)

	// Delete the user behind the engine's back and drop the cache entry.
	if err := users.Delete(context.Background(), userID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	engine.cache.Remove(userID)

	res, err := engine.Authenticate(context.Background(), started.CookieValue, GateStandard)
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if res.State != StateExpiredSession {
		t.Fatalf("expected orphan session rejected, got %s", res.State)
	}
}

func TestAuthenticateStoreUnavailable(t *testing.T) {
	users := newMockUserStore()
	engine, mr := newTestEngine(t, testConfig(), users, nil)
	userID := seedUser(t, users, nil)

	started := beginTestSession(t, engine, userID)

	mr.Close()

	_, err := engine.Authenticate(context.Background(), started.CookieValue, GateStandard)
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}
