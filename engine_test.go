package authgate

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, client
}

func testConfig() Config {
	cfg := defaultConfig()
	cfg.Credential.Secret = []byte("a-test-secret-of-at-least-32-bytes!!")
	cfg.Credential.Issuer = "authgate-test"
	return cfg
}

func newTestEngine(t *testing.T, cfg Config, users *mockUserStore, verifier SecondFactorVerifier) (*Engine, *miniredis.Miniredis) {
	t.Helper()

	mr, rdb := newTestRedis(t)
	t.Cleanup(mr.Close)

	builder := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserStore(users)
	if verifier != nil {
		builder = builder.WithSecondFactorVerifier(verifier)
	}

	engine, err := builder.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	return engine, mr
}

func seedUser(t *testing.T, users *mockUserStore, mutate func(*UserRecord)) uuid.UUID {
	t.Helper()

	rec := UserRecord{
		UserID:        uuid.New(),
		Username:      "alice",
		Email:         "alice@example.com",
		EmailVerified: true,
		MaxSessions:   3,
		CreatedAt:     time.Now(),
	}
	if mutate != nil {
		mutate(&rec)
	}
	users.put(rec)
	return rec.UserID
}

func beginTestSession(t *testing.T, engine *Engine, userID uuid.UUID) *StartedSession {
	t.Helper()

	started, err := engine.BeginSession(context.Background(), BeginSessionOptions{
		UserID: userID,
		IP:     "203.0.113.9",
	})
	if err != nil {
		t.Fatalf("BeginSession failed: %v", err)
	}
	return started
}

// mockUserStore is an in-memory UserStore with full partial-update support.
type mockUserStore struct {
	mu      sync.RWMutex
	byID    map[uuid.UUID]UserRecord
	byEmail map[string]uuid.UUID
}

func newMockUserStore() *mockUserStore {
	return &mockUserStore{
		byID:    make(map[uuid.UUID]UserRecord),
		byEmail: make(map[string]uuid.UUID),
	}
}

func (s *mockUserStore) put(rec UserRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[rec.UserID] = rec
	s.byEmail[strings.ToLower(rec.Email)] = rec.UserID
}

func (s *mockUserStore) GetByID(_ context.Context, id uuid.UUID) (*UserRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.byID[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &rec, nil
}

func (s *mockUserStore) GetByEmail(_ context.Context, email string) (*UserRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, ErrUserNotFound
	}
	rec := s.byID[id]
	return &rec, nil
}

func (s *mockUserStore) GetByProviderID(_ context.Context, provider Provider, providerUserID string) (*UserRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, rec := range s.byID {
		if linkedProviderID(&rec, provider) == providerUserID && providerUserID != "" {
			out := rec
			return &out, nil
		}
	}
	return nil, ErrUserNotFound
}

func (s *mockUserStore) Create(_ context.Context, rec UserRecord) (*UserRecord, error) {
	if rec.UserID == uuid.Nil {
		rec.UserID = uuid.New()
	}
	s.put(rec)
	out := rec
	return &out, nil
}

func (s *mockUserStore) Update(_ context.Context, id uuid.UUID, update UserUpdate) (*UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.byID[id]
	if !ok {
		return nil, ErrUserNotFound
	}

	if update.Username != nil {
		rec.Username = *update.Username
	}
	if update.Email != nil {
		delete(s.byEmail, strings.ToLower(rec.Email))
		rec.Email = *update.Email
		s.byEmail[strings.ToLower(rec.Email)] = id
	}
	if update.Avatar != nil {
		rec.Avatar = *update.Avatar
	}
	if update.MaxSessions != nil {
		rec.MaxSessions = *update.MaxSessions
	}
	if update.EmailVerified != nil {
		rec.EmailVerified = *update.EmailVerified
	}
	if update.TwoFactorEnabled != nil {
		rec.TwoFactorEnabled = *update.TwoFactorEnabled
	}
	if update.LatestIP != nil {
		rec.LatestIP = *update.LatestIP
	}
	if update.LastLogin != nil {
		rec.LastLogin = *update.LastLogin
	}
	if update.GoogleID != nil {
		rec.GoogleID = *update.GoogleID
	}
	if update.DiscordID != nil {
		rec.DiscordID = *update.DiscordID
	}
	if update.GithubID != nil {
		rec.GithubID = *update.GithubID
	}

	s.byID[id] = rec
	out := rec
	return &out, nil
}

func (s *mockUserStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.byID[id]
	if !ok {
		return ErrUserNotFound
	}
	delete(s.byEmail, strings.ToLower(rec.Email))
	delete(s.byID, id)
	return nil
}

func (s *mockUserStore) Exists(_ context.Context, usernameOrEmail string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byEmail[strings.ToLower(usernameOrEmail)]
	return ok, nil
}

var _ UserStore = (*mockUserStore)(nil)

// mockVerifier accepts a fixed OTP and single-use backup codes.
type mockVerifier struct {
	mu     sync.Mutex
	otp    string
	backup map[string]bool
}

func newMockVerifier() *mockVerifier {
	return &mockVerifier{
		otp:    "123456",
		backup: map[string]bool{"backup-1": false},
	}
}

func (v *mockVerifier) VerifyOTP(_ context.Context, _ uuid.UUID, code string) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return code == v.otp, nil
}

func (v *mockVerifier) ConsumeBackupCode(_ context.Context, _ uuid.UUID, code string) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	used, known := v.backup[code]
	if !known || used {
		return false, nil
	}
	v.backup[code] = true
	return true, nil
}
