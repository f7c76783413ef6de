// Command authgate-smoke seeds users and sessions against Redis (or an
// embedded miniredis) and drives concurrent gate passes, printing latency
// percentiles per phase.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	authgate "github.com/hatchpanel/authgate"
)

func main() {
	var (
		users       = flag.Int("users", 1000, "number of users to seed")
		concurrency = flag.Int("concurrency", 256, "number of concurrent workers")
		ops         = flag.Int("ops", 200000, "gate passes per phase")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "ag", "session key prefix")
	)
	flag.Parse()

	if *users <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "users, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	store := newSeededStore(*users)

	cfg := authgate.DefaultConfig()
	cfg.Credential.Secret = []byte("smoke-test-secret-of-at-least-32-bytes")
	cfg.Session.RedisPrefix = *prefix
	cfg.Session.DefaultMaxSessions = 2

	engine, err := authgate.New().
		WithConfig(cfg).
		WithRedis(client).
		WithUserStore(store).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "build engine: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	fmt.Printf("seeding %d sessions...\n", *users)
	startSeed := time.Now()
	credentials := make([]string, 0, *users)
	for _, id := range store.ids {
		started, err := engine.BeginSession(ctx, authgate.BeginSessionOptions{
			UserID: id,
			IP:     "127.0.0.1",
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "begin session: %v\n", err)
			os.Exit(1)
		}
		credentials = append(credentials, started.CookieValue)
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	warmStats := runGatePhase(ctx, engine, credentials, *ops, *concurrency)
	// Second pass runs entirely against the warmed identity cache.
	cachedStats := runGatePhase(ctx, engine, credentials, *ops, *concurrency)

	fmt.Println("---- results ----")
	printStats("gate-cold", warmStats)
	printStats("gate-warm", cachedStats)

	snap := engine.MetricsSnapshot()
	fmt.Printf("authenticated=%d cache_hits=%d cache_misses=%d store_failures=%d\n",
		snap.Counters[authgate.MetricGateAuthenticated],
		snap.Counters[authgate.MetricCacheHit],
		snap.Counters[authgate.MetricCacheMiss],
		snap.Counters[authgate.MetricGateStoreFailure],
	)
}

func runGatePhase(ctx context.Context, engine *authgate.Engine, credentials []string, ops, concurrency int) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				idx := r.Intn(len(credentials))
				t0 := time.Now()
				res, err := engine.Authenticate(ctx, credentials[idx], authgate.GateStandard)
				d := time.Since(t0)
				if err != nil || !res.State.Authenticated() {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	total := time.Since(start)
	return computeStats(total, latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}

// seededStore is a fixed read-mostly UserStore for the smoke run.
type seededStore struct {
	mu   sync.RWMutex
	byID map[uuid.UUID]authgate.UserRecord
	ids  []uuid.UUID
}

func newSeededStore(n int) *seededStore {
	s := &seededStore{
		byID: make(map[uuid.UUID]authgate.UserRecord, n),
		ids:  make([]uuid.UUID, 0, n),
	}
	for i := 0; i < n; i++ {
		id := uuid.New()
		s.byID[id] = authgate.UserRecord{
			UserID:      id,
			Username:    fmt.Sprintf("user-%d", i),
			Email:       fmt.Sprintf("user-%d@example.com", i),
			MaxSessions: 2,
			CreatedAt:   time.Now(),
		}
		s.ids = append(s.ids, id)
	}
	return s
}

func (s *seededStore) GetByID(_ context.Context, id uuid.UUID) (*authgate.UserRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.byID[id]
	if !ok {
		return nil, authgate.ErrUserNotFound
	}
	return &rec, nil
}

func (s *seededStore) GetByEmail(_ context.Context, email string) (*authgate.UserRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, rec := range s.byID {
		if rec.Email == email {
			out := rec
			return &out, nil
		}
	}
	return nil, authgate.ErrUserNotFound
}

func (s *seededStore) GetByProviderID(context.Context, authgate.Provider, string) (*authgate.UserRecord, error) {
	return nil, authgate.ErrUserNotFound
}

func (s *seededStore) Create(_ context.Context, rec authgate.UserRecord) (*authgate.UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.UserID == uuid.Nil {
		rec.UserID = uuid.New()
	}
	s.byID[rec.UserID] = rec
	s.ids = append(s.ids, rec.UserID)
	out := rec
	return &out, nil
}

func (s *seededStore) Update(_ context.Context, id uuid.UUID, update authgate.UserUpdate) (*authgate.UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.byID[id]
	if !ok {
		return nil, authgate.ErrUserNotFound
	}
	if update.LatestIP != nil {
		rec.LatestIP = *update.LatestIP
	}
	if update.LastLogin != nil {
		rec.LastLogin = *update.LastLogin
	}
	if update.MaxSessions != nil {
		rec.MaxSessions = *update.MaxSessions
	}
	s.byID[id] = rec
	out := rec
	return &out, nil
}

func (s *seededStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byID, id)
	return nil
}

func (s *seededStore) Exists(context.Context, string) (bool, error) {
	return false, nil
}
