package authgate

import (
	"context"
	"errors"
	"time"

	"github.com/hatchpanel/authgate/identity"
	"github.com/hatchpanel/authgate/session"
)

// GateMode selects the guard variant applied to a request.
type GateMode uint8

const (
	// GateStandard rejects sessions with the two-factor challenge still
	// pending. Every protected endpoint uses this unless it is one of the
	// two challenge-consuming endpoints.
	GateStandard GateMode = iota

	// GateTwoFactorExempt skips the pending check. Reserved for the OTP and
	// backup-code verification endpoints; using it anywhere else lets a
	// half-authenticated session through.
	GateTwoFactorExempt

	// GateElevated is GateStandard plus a privilege predicate over the
	// resolved snapshot.
	GateElevated
)

// GateState is the terminal state of one pass through the gate pipeline.
type GateState uint8

const (
	StateNoCredential GateState = iota
	StateInvalidCredential
	StateExpiredSession
	StateTwoFactorPending
	StatePrivilegeRejected
	StateAuthenticated
	StateElevated
)

func (s GateState) String() string {
	switch s {
	case StateNoCredential:
		return "no_credential"
	case StateInvalidCredential:
		return "invalid_credential"
	case StateExpiredSession:
		return "expired_session"
	case StateTwoFactorPending:
		return "two_factor_pending"
	case StatePrivilegeRejected:
		return "privilege_rejected"
	case StateAuthenticated:
		return "authenticated"
	case StateElevated:
		return "elevated"
	default:
		return "unknown"
	}
}

// Authenticated reports whether the state grants access to a protected
// endpoint under the mode that produced it.
func (s GateState) Authenticated() bool {
	return s == StateAuthenticated || s == StateElevated
}

// Resolution is the outcome of authenticating one request. SessionToken is
// set from StateTwoFactorPending onward; Identity is populated only when
// State.Authenticated() is true.
type Resolution struct {
	State        GateState
	SessionToken string
	Identity     identity.Snapshot
}

// Authenticate runs the gate pipeline over a raw credential cookie value:
// decode the credential, validate the embedded session, enforce the
// two-factor pending flag, resolve the identity snapshot, and apply the
// privilege predicate when the mode demands it.
//
// Rejections are reported through Resolution.State, not the error. The
// error is non-nil only when the backing store could not be consulted, and
// callers must treat that as "cannot authenticate".
func (e *Engine) Authenticate(ctx context.Context, rawCredential string, mode GateMode) (Resolution, error) {
	start := time.Now()
	defer func() {
		if e.metrics != nil {
			e.metrics.Observe(MetricAuthenticateLatency, time.Since(start))
		}
	}()

	if rawCredential == "" {
		e.metricInc(MetricGateNoCredential)
		return Resolution{State: StateNoCredential}, nil
	}

	payload, err := e.codec.Decode(rawCredential)
	if err != nil || payload.SessionToken == "" {
		e.metricInc(MetricGateInvalidCredential)
		return Resolution{State: StateInvalidCredential}, nil
	}

	opCtx, cancel := e.storeCtx(ctx)
	defer cancel()

	rec, status, err := e.sessions.Get(opCtx, payload.SessionToken)
	if err != nil {
		e.metricInc(MetricGateStoreFailure)
		return Resolution{}, e.storeErr(err)
	}
	if status != session.StatusValid {
		e.metricInc(MetricGateExpiredSession)
		return Resolution{State: StateExpiredSession}, nil
	}

	if rec.TwoFactorPending && mode != GateTwoFactorExempt {
		e.metricInc(MetricGateTwoFactorPending)
		return Resolution{
			State:        StateTwoFactorPending,
			SessionToken: rec.Token,
		}, nil
	}

	snap, err := e.resolveSnapshot(opCtx, rec.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			// The owning account is gone; the session is an orphan.
			_ = e.sessions.Delete(opCtx, rec.Token)
			e.metricInc(MetricGateExpiredSession)
			return Resolution{State: StateExpiredSession}, nil
		}
		e.metricInc(MetricGateStoreFailure)
		return Resolution{}, err
	}

	if mode == GateElevated && !e.elevatedAllowed(snap) {
		e.metricInc(MetricGatePrivilegeRejected)
		return Resolution{
			State:        StatePrivilegeRejected,
			SessionToken: rec.Token,
		}, nil
	}

	state := StateAuthenticated
	if mode == GateElevated {
		state = StateElevated
	}
	e.metricInc(MetricGateAuthenticated)

	return Resolution{
		State:        state,
		SessionToken: rec.Token,
		Identity:     snap,
	}, nil
}

func (e *Engine) elevatedAllowed(snap identity.Snapshot) bool {
	if e.config.Gate.ElevatedPredicate != nil {
		return e.config.Gate.ElevatedPredicate(snap)
	}
	return snap.Root
}
