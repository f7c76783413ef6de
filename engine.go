package authgate

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/hatchpanel/authgate/credential"
	"github.com/hatchpanel/authgate/identity"
	"github.com/hatchpanel/authgate/internal/audit"
	"github.com/hatchpanel/authgate/internal/rate"
	"github.com/hatchpanel/authgate/session"
)

// Engine composes the session store, identity cache, and credential codec
// into the request-guard pipeline and the flows that feed it. Construct one
// through [Builder.Build]; all methods are safe for concurrent use
// afterwards.
type Engine struct {
	config     Config
	sessions   *session.Store
	cache      *identity.Cache
	codec      *credential.Codec
	stateStore *oauthStateStore
	limiter    *rate.Limiter
	dispatcher *audit.Dispatcher
	metrics    *Metrics
	users      UserStore
	verifier   SecondFactorVerifier

	sweeping atomic.Bool
}

// Close flushes the audit dispatcher. The engine must not be used after
// Close returns.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.dispatcher != nil {
		e.dispatcher.Close()
	}
}

// MetricsSnapshot returns a point-in-time copy of the engine's counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// AuditDropped reports how many audit events were discarded under
// backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.dispatcher == nil {
		return 0
	}
	return e.dispatcher.Dropped()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// storeCtx bounds a backing-store round-trip so a slow store surfaces as
// ErrStoreUnavailable instead of hanging the request.
func (e *Engine) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, e.config.Session.StoreTimeout)
}

// storeErr folds the various backend sentinels into the single
// ErrStoreUnavailable classification callers map to a server error.
func (e *Engine) storeErr(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, ErrStoreUnavailable):
		return err
	case errors.Is(err, session.ErrStoreUnavailable),
		errors.Is(err, rate.ErrRedisUnavailable),
		errors.Is(err, errStateRedisUnavailable),
		errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	default:
		return err
	}
}

// userStoreErr classifies collaborator failures: unknown users keep their
// sentinel, everything else is a store failure the gate fails closed on.
func (e *Engine) userStoreErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrUserNotFound) {
		return ErrUserNotFound
	}
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}

// resolveSnapshot serves the gate's cache-first user resolution: a miss
// loads the authoritative record and populates the cache before returning.
func (e *Engine) resolveSnapshot(ctx context.Context, userID uuid.UUID) (identity.Snapshot, error) {
	if snap, ok := e.cache.Get(userID); ok {
		e.metricInc(MetricCacheHit)
		return snap, nil
	}
	e.metricInc(MetricCacheMiss)

	rec, err := e.users.GetByID(ctx, userID)
	if err != nil {
		return identity.Snapshot{}, e.userStoreErr(err)
	}

	snap := snapshotFromRecord(rec)
	e.cache.Put(snap)
	return snap, nil
}

// cacheRecord reconciles the identity cache after a user mutation. Every
// mutating flow calls exactly one of cacheRecord or evictUser before
// reporting success.
func (e *Engine) cacheRecord(rec *UserRecord) {
	if rec == nil {
		return
	}
	e.cache.Put(snapshotFromRecord(rec))
}

func (e *Engine) evictUser(userID uuid.UUID) {
	e.cache.Remove(userID)
}

// Cache exposes read access to the identity cache for callers that only
// need lookups (e.g. resolving a user ID from an email).
func (e *Engine) Cache() *identity.Cache {
	if e == nil {
		return nil
	}
	return e.cache
}

func (e *Engine) auditEvent(ctx context.Context, eventType string, userID uuid.UUID, sessionToken, ip string, success bool, failure error) {
	if e == nil || e.dispatcher == nil {
		return
	}

	event := audit.Event{
		Timestamp: time.Now(),
		EventType: eventType,
		SessionID: sessionToken,
		IP:        ip,
		Success:   success,
	}
	if userID != uuid.Nil {
		event.UserID = userID.String()
	}
	if failure != nil {
		event.Error = failure.Error()
	}

	e.dispatcher.Emit(ctx, event)
}
