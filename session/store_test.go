package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T, opts ...Option) (*Store, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewStore(client, "ag", 24*time.Hour, opts...), mr
}

func testRecord(userID uuid.UUID, token string, expiresAt time.Time) *Record {
	return &Record{
		Token:      token,
		UserID:     userID,
		CreationIP: "203.0.113.9",
		ExpiresAt:  expiresAt.Unix(),
	}
}

func TestCreateAndGet(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	userID := uuid.New()

	rec := testRecord(userID, "tok-1", time.Now().Add(time.Hour))
	rec.TwoFactorPending = true
	if err := store.Create(ctx, rec); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if rec.CreatedAt == 0 {
		t.Fatal("expected CreatedAt to be stamped")
	}

	got, status, err := store.Get(ctx, "tok-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if status != StatusValid {
		t.Fatalf("expected StatusValid, got %s", status)
	}
	if got.UserID != userID {
		t.Fatalf("expected user %s, got %s", userID, got.UserID)
	}
	if got.CreationIP != "203.0.113.9" {
		t.Fatalf("unexpected creation ip %q", got.CreationIP)
	}
	if !got.TwoFactorPending {
		t.Fatal("expected pending flag to round-trip")
	}
}

func TestCreateRejectsPastExpiry(t *testing.T) {
	store, _ := newTestStore(t)

	rec := testRecord(uuid.New(), "tok-1", time.Now().Add(-time.Minute))
	err := store.Create(context.Background(), rec)
	if !errors.Is(err, ErrExpiryInPast) {
		t.Fatalf("expected ErrExpiryInPast, got %v", err)
	}

	_, status, err := store.Get(context.Background(), "tok-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if status != StatusNotFound {
		t.Fatalf("rejected creation must leave no record, got %s", status)
	}
}

func TestCreateTokenCollision(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	first := testRecord(uuid.New(), "tok-1", time.Now().Add(time.Hour))
	if err := store.Create(ctx, first); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	second := testRecord(uuid.New(), "tok-1", time.Now().Add(time.Hour))
	if err := store.Create(ctx, second); !errors.Is(err, ErrTokenCollision) {
		t.Fatalf("expected ErrTokenCollision, got %v", err)
	}

	// The original record must survive untouched.
	got, status, err := store.Get(ctx, "tok-1")
	if err != nil || status != StatusValid {
		t.Fatalf("Get after collision: status=%s err=%v", status, err)
	}
	if got.UserID != first.UserID {
		t.Fatal("collision overwrote the original record")
	}
}

func TestGetUnknownToken(t *testing.T) {
	store, _ := newTestStore(t)

	rec, status, err := store.Get(context.Background(), "nope")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if status != StatusNotFound {
		t.Fatalf("expected StatusNotFound, got %s", status)
	}
	if rec != nil {
		t.Fatal("expected nil record for unknown token")
	}
}

func TestExpiredDistinctFromNotFound(t *testing.T) {
	now := time.Now()
	store, _ := newTestStore(t, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	rec := testRecord(uuid.New(), "tok-1", now.Add(time.Hour))
	if err := store.Create(ctx, rec); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	now = now.Add(2 * time.Hour)

	got, status, err := store.Get(ctx, "tok-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if status != StatusExpired {
		t.Fatalf("expected StatusExpired, got %s", status)
	}
	if got == nil || got.Token != "tok-1" {
		t.Fatal("expired read should still surface the record")
	}

	// The expired read purged the record; a second read cannot tell it
	// apart from a token that never existed.
	_, status, err = store.Get(ctx, "tok-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if status != StatusNotFound {
		t.Fatalf("expected StatusNotFound after purge, got %s", status)
	}
}

func TestSessionsForUserOldestFirst(t *testing.T) {
	now := time.Now()
	store, _ := newTestStore(t, WithClock(func() time.Time { return now }))
	ctx := context.Background()
	userID := uuid.New()

	tokens := []string{"tok-a", "tok-b", "tok-c"}
	for _, token := range tokens {
		if err := store.Create(ctx, testRecord(userID, token, now.Add(time.Hour))); err != nil {
			t.Fatalf("Create %s failed: %v", token, err)
		}
		now = now.Add(time.Minute)
	}

	records, err := store.SessionsForUser(ctx, userID)
	if err != nil {
		t.Fatalf("SessionsForUser failed: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 sessions, got %d", len(records))
	}
	for i, token := range tokens {
		if records[i].Token != token {
			t.Fatalf("position %d: expected %s, got %s", i, token, records[i].Token)
		}
	}

	count, err := store.CountForUser(ctx, userID)
	if err != nil {
		t.Fatalf("CountForUser failed: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected count 3, got %d", count)
	}
}

func TestSessionsForUserPrunesExpired(t *testing.T) {
	now := time.Now()
	store, _ := newTestStore(t, WithClock(func() time.Time { return now }))
	ctx := context.Background()
	userID := uuid.New()

	if err := store.Create(ctx, testRecord(userID, "tok-short", now.Add(time.Minute))); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := store.Create(ctx, testRecord(userID, "tok-long", now.Add(time.Hour))); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	now = now.Add(30 * time.Minute)

	records, err := store.SessionsForUser(ctx, userID)
	if err != nil {
		t.Fatalf("SessionsForUser failed: %v", err)
	}
	if len(records) != 1 || records[0].Token != "tok-long" {
		t.Fatalf("expected only tok-long to survive, got %d records", len(records))
	}
}

func TestTwoFactorPendingTransitions(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	rec := testRecord(uuid.New(), "tok-1", time.Now().Add(time.Hour))
	rec.TwoFactorPending = true
	if err := store.Create(ctx, rec); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	pending, err := store.GetTwoFactorPending(ctx, "tok-1")
	if err != nil {
		t.Fatalf("GetTwoFactorPending failed: %v", err)
	}
	if !pending {
		t.Fatal("expected pending true")
	}

	if err := store.SetTwoFactorPending(ctx, "tok-1", false); err != nil {
		t.Fatalf("SetTwoFactorPending failed: %v", err)
	}

	pending, err = store.GetTwoFactorPending(ctx, "tok-1")
	if err != nil {
		t.Fatalf("GetTwoFactorPending failed: %v", err)
	}
	if pending {
		t.Fatal("expected pending cleared")
	}

	if err := store.SetTwoFactorPending(ctx, "missing", true); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown token, got %v", err)
	}
}

func TestDeleteIdempotent(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	userID := uuid.New()

	if err := store.Create(ctx, testRecord(userID, "tok-1", time.Now().Add(time.Hour))); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := store.Delete(ctx, "tok-1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := store.Delete(ctx, "tok-1"); err != nil {
		t.Fatalf("second Delete failed: %v", err)
	}

	count, err := store.CountForUser(ctx, userID)
	if err != nil {
		t.Fatalf("CountForUser failed: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no sessions after delete, got %d", count)
	}
}

func TestDeleteAllForUser(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	victim := uuid.New()
	bystander := uuid.New()

	for _, token := range []string{"v-1", "v-2"} {
		if err := store.Create(ctx, testRecord(victim, token, time.Now().Add(time.Hour))); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}
	if err := store.Create(ctx, testRecord(bystander, "b-1", time.Now().Add(time.Hour))); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := store.DeleteAllForUser(ctx, victim); err != nil {
		t.Fatalf("DeleteAllForUser failed: %v", err)
	}

	count, err := store.CountForUser(ctx, victim)
	if err != nil || count != 0 {
		t.Fatalf("expected victim to have 0 sessions, got %d err=%v", count, err)
	}

	_, status, err := store.Get(ctx, "b-1")
	if err != nil || status != StatusValid {
		t.Fatalf("bystander session must survive: status=%s err=%v", status, err)
	}
}

func TestSweepRemovesOnlyExpired(t *testing.T) {
	now := time.Now()
	store, _ := newTestStore(t, WithClock(func() time.Time { return now }))
	ctx := context.Background()
	userID := uuid.New()

	if err := store.Create(ctx, testRecord(userID, "tok-old", now.Add(time.Minute))); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := store.Create(ctx, testRecord(userID, "tok-new", now.Add(time.Hour))); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	now = now.Add(10 * time.Minute)

	removed, err := store.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}

	_, status, err := store.Get(ctx, "tok-new")
	if err != nil || status != StatusValid {
		t.Fatalf("live session must survive sweep: status=%s err=%v", status, err)
	}
	_, status, err = store.Get(ctx, "tok-old")
	if err != nil || status != StatusNotFound {
		t.Fatalf("swept session must be gone: status=%s err=%v", status, err)
	}

	// Nothing left to sweep.
	removed, err = store.Sweep(ctx)
	if err != nil || removed != 0 {
		t.Fatalf("expected idle sweep, removed=%d err=%v", removed, err)
	}
}

func TestStoreUnavailable(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	if err := store.Create(ctx, testRecord(uuid.New(), "tok-1", time.Now().Add(time.Hour))); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	mr.Close()

	_, _, err := store.Get(ctx, "tok-1")
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}

	err = store.Create(ctx, testRecord(uuid.New(), "tok-2", time.Now().Add(time.Hour)))
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable on create, got %v", err)
	}
}
