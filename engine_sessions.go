package authgate

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/hatchpanel/authgate/credential"
	"github.com/hatchpanel/authgate/internal"
	"github.com/hatchpanel/authgate/session"
)

const tokenCollisionRetries = 3

// BeginSessionOptions describes one successful login or OAuth callback
// about to mint a session.
type BeginSessionOptions struct {
	UserID uuid.UUID
	IP     string

	// SecondFactorSatisfied marks that the flow itself already confirmed a
	// second factor (e.g. a trusted OAuth provider), so the session starts
	// fully authenticated even for a two-factor account.
	SecondFactorSatisfied bool
}

// StartedSession is the outcome of BeginSession. CookieValue is the signed
// credential to hand to the client; CookieTTL its outer expiry hint.
type StartedSession struct {
	Token            string
	CookieValue      string
	CookieTTL        time.Duration
	TwoFactorPending bool
	ExpiresAt        time.Time
}

// BeginSession mints a session for a user whose primary authentication
// already succeeded elsewhere. It enforces the per-user session quota
// before creating (best-effort; concurrent logins of the same user may
// briefly exceed it by one), decides the two-factor pending flag, and
// returns the signed credential cookie value.
//
// A rejection leaves no session behind.
func (e *Engine) BeginSession(ctx context.Context, opts BeginSessionOptions) (*StartedSession, error) {
	opCtx, cancel := e.storeCtx(ctx)
	defer cancel()

	snap, err := e.resolveSnapshot(opCtx, opts.UserID)
	if err != nil {
		return nil, err
	}

	maxSessions := snap.MaxSessions
	if maxSessions <= 0 {
		maxSessions = e.config.Session.DefaultMaxSessions
	}

	count, err := e.sessions.CountForUser(opCtx, opts.UserID)
	if err != nil {
		return nil, e.storeErr(err)
	}
	if count >= maxSessions {
		e.metricInc(MetricSessionQuotaRejected)
		e.auditEvent(ctx, "session.quota_rejected", opts.UserID, "", opts.IP, false, ErrQuotaExceeded)
		return nil, ErrQuotaExceeded
	}

	pending := e.config.TwoFactor.Enabled &&
		snap.TwoFactorEnabled &&
		!opts.SecondFactorSatisfied

	now := time.Now()
	rec := &session.Record{
		UserID:           opts.UserID,
		CreationIP:       opts.IP,
		TwoFactorPending: pending,
		CreatedAt:        now.Unix(),
		ExpiresAt:        now.Add(e.config.Session.TTL).Unix(),
	}

	var token string
	for attempt := 0; ; attempt++ {
		t, err := internal.NewToken()
		if err != nil {
			return nil, err
		}
		rec.Token = t.String()

		err = e.sessions.Create(opCtx, rec)
		if err == nil {
			token = rec.Token
			break
		}
		if errors.Is(err, session.ErrTokenCollision) && attempt < tokenCollisionRetries {
			continue
		}
		return nil, e.storeErr(err)
	}

	cookieValue, err := e.codec.Encode(credential.Payload{SessionToken: token}, e.config.Credential.CookieTTL)
	if err != nil {
		// No usable credential means no session either.
		_ = e.sessions.Delete(opCtx, token)
		return nil, err
	}

	// Last-login bookkeeping is best effort; a failure here must not undo
	// the login.
	ip := opts.IP
	if updated, err := e.users.Update(opCtx, opts.UserID, UserUpdate{
		LatestIP:  &ip,
		LastLogin: &now,
	}); err == nil {
		e.cacheRecord(updated)
	}

	e.metricInc(MetricSessionCreated)
	e.auditEvent(ctx, "session.begin", opts.UserID, token, opts.IP, true, nil)

	return &StartedSession{
		Token:            token,
		CookieValue:      cookieValue,
		CookieTTL:        e.config.Credential.CookieTTL,
		TwoFactorPending: pending,
		ExpiresAt:        time.Unix(rec.ExpiresAt, 0),
	}, nil
}

// Logout deletes the session behind a credential cookie value. Missing or
// invalid credentials are a no-op; logout is idempotent.
func (e *Engine) Logout(ctx context.Context, rawCredential string) error {
	if rawCredential == "" {
		return nil
	}
	payload, err := e.codec.Decode(rawCredential)
	if err != nil || payload.SessionToken == "" {
		return nil
	}
	return e.LogoutToken(ctx, payload.SessionToken)
}

// LogoutToken deletes a session by its raw token.
func (e *Engine) LogoutToken(ctx context.Context, token string) error {
	opCtx, cancel := e.storeCtx(ctx)
	defer cancel()

	userID, _, err := e.sessions.LookupUser(opCtx, token)
	if err != nil {
		return e.storeErr(err)
	}

	if err := e.sessions.Delete(opCtx, token); err != nil {
		return e.storeErr(err)
	}

	e.metricInc(MetricSessionRevoked)
	e.auditEvent(ctx, "session.logout", userID, token, "", true, nil)
	return nil
}

// Sessions lists a user's active sessions oldest-first.
func (e *Engine) Sessions(ctx context.Context, userID uuid.UUID) ([]SessionInfo, error) {
	opCtx, cancel := e.storeCtx(ctx)
	defer cancel()

	records, err := e.sessions.SessionsForUser(opCtx, userID)
	if err != nil {
		return nil, e.storeErr(err)
	}

	infos := make([]SessionInfo, 0, len(records))
	for _, rec := range records {
		infos = append(infos, SessionInfo{
			Token:      rec.Token,
			CreationIP: rec.CreationIP,
			CreatedAt:  time.Unix(rec.CreatedAt, 0),
			ExpiresAt:  time.Unix(rec.ExpiresAt, 0),
		})
	}
	return infos, nil
}

// RevokeSession deletes one of userID's sessions by token. Tokens owned by
// a different user are rejected as not found rather than revealed.
func (e *Engine) RevokeSession(ctx context.Context, userID uuid.UUID, token string) error {
	opCtx, cancel := e.storeCtx(ctx)
	defer cancel()

	owner, ok, err := e.sessions.LookupUser(opCtx, token)
	if err != nil {
		return e.storeErr(err)
	}
	if !ok || owner != userID {
		return ErrSessionNotFound
	}

	if err := e.sessions.Delete(opCtx, token); err != nil {
		return e.storeErr(err)
	}

	e.metricInc(MetricSessionRevoked)
	e.auditEvent(ctx, "session.revoke", userID, token, "", true, nil)
	return nil
}

// RevokeAllSessions deletes every session the user holds.
func (e *Engine) RevokeAllSessions(ctx context.Context, userID uuid.UUID) error {
	opCtx, cancel := e.storeCtx(ctx)
	defer cancel()

	if err := e.sessions.DeleteAllForUser(opCtx, userID); err != nil {
		return e.storeErr(err)
	}

	e.metricInc(MetricSessionRevoked)
	e.auditEvent(ctx, "session.revoke_all", userID, "", "", true, nil)
	return nil
}

// Sweep removes sessions whose expiry has passed and returns how many were
// deleted. Overlapping invocations are collapsed: if a sweep is already in
// progress the call returns immediately with zero. Callers drive it from a
// fixed timer.
func (e *Engine) Sweep(ctx context.Context) (int, error) {
	if !e.sweeping.CompareAndSwap(false, true) {
		return 0, nil
	}
	defer e.sweeping.Store(false)

	opCtx, cancel := e.storeCtx(ctx)
	defer cancel()

	swept, err := e.sessions.Sweep(opCtx)
	if err != nil {
		return swept, e.storeErr(err)
	}

	for i := 0; i < swept; i++ {
		e.metricInc(MetricSessionSwept)
	}
	return swept, nil
}
