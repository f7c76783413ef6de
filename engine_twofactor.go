package authgate

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/hatchpanel/authgate/internal/rate"
	"github.com/hatchpanel/authgate/session"
)

// VerifyOTP consumes a pending two-factor challenge with a TOTP code. The
// session token comes from a Resolution obtained through the two-factor
// exempt gate; on success the pending flag is cleared before the call
// returns, so the very next gate pass sees a fully authenticated session.
func (e *Engine) VerifyOTP(ctx context.Context, sessionToken, code string) error {
	return e.consumeSecondFactor(ctx, sessionToken, code, "2fa.otp", func(ctx context.Context, userID uuid.UUID, code string) (bool, error) {
		return e.verifier.VerifyOTP(ctx, userID, code)
	})
}

// VerifyBackupCode consumes a pending two-factor challenge with a single-use
// backup code. A code that verifies is invalidated by the verifier.
func (e *Engine) VerifyBackupCode(ctx context.Context, sessionToken, code string) error {
	return e.consumeSecondFactor(ctx, sessionToken, code, "2fa.backup_code", func(ctx context.Context, userID uuid.UUID, code string) (bool, error) {
		return e.verifier.ConsumeBackupCode(ctx, userID, code)
	})
}

func (e *Engine) consumeSecondFactor(ctx context.Context, sessionToken, code, eventType string, verify func(context.Context, uuid.UUID, string) (bool, error)) error {
	if e.verifier == nil {
		return ErrVerifierNotConfigured
	}

	opCtx, cancel := e.storeCtx(ctx)
	defer cancel()

	rec, status, err := e.sessions.Get(opCtx, sessionToken)
	if err != nil {
		return e.storeErr(err)
	}
	if status != session.StatusValid {
		return ErrSessionNotFound
	}
	if !rec.TwoFactorPending {
		return ErrSecondFactorNotPending
	}

	if e.limiter != nil {
		if err := e.limiter.CheckSecondFactor(opCtx, sessionToken); err != nil {
			if errors.Is(err, rate.ErrRateLimited) {
				e.metricInc(MetricSecondFactorRateLimited)
				e.auditEvent(ctx, eventType, rec.UserID, sessionToken, "", false, ErrSecondFactorRateLimited)
				return ErrSecondFactorRateLimited
			}
			return e.storeErr(err)
		}
	}

	ok, err := verify(opCtx, rec.UserID, code)
	if err != nil {
		return err
	}
	if !ok {
		if e.limiter != nil {
			// A budget exhausted by this very attempt still reports the
			// attempt itself as invalid; the next one gets rate limited.
			if err := e.limiter.IncrementSecondFactor(opCtx, sessionToken); err != nil && !errors.Is(err, rate.ErrRateLimited) {
				return e.storeErr(err)
			}
		}
		e.metricInc(MetricSecondFactorFailure)
		e.auditEvent(ctx, eventType, rec.UserID, sessionToken, "", false, ErrSecondFactorInvalid)
		return ErrSecondFactorInvalid
	}

	// The flag must be gone before success is reported, so the caller's
	// next request passes the standard gate.
	if err := e.sessions.SetTwoFactorPending(opCtx, sessionToken, false); err != nil {
		return e.storeErr(err)
	}

	if e.limiter != nil {
		_ = e.limiter.ResetSecondFactor(opCtx, sessionToken)
	}

	e.metricInc(MetricSecondFactorSuccess)
	e.auditEvent(ctx, eventType, rec.UserID, sessionToken, "", true, nil)
	return nil
}
