package authgate

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// UpdateEmail changes the user's email address. The new address starts
// unverified; verification flows live outside the engine.
func (e *Engine) UpdateEmail(ctx context.Context, userID uuid.UUID, email string) error {
	opCtx, cancel := e.storeCtx(ctx)
	defer cancel()

	verified := false
	updated, err := e.users.Update(opCtx, userID, UserUpdate{
		Email:         &email,
		EmailVerified: &verified,
	})
	if err != nil {
		return err
	}

	e.cacheRecord(updated)
	e.auditEvent(ctx, "account.update_email", userID, "", "", true, nil)
	return nil
}

// UpdateUsername changes the user's display name.
func (e *Engine) UpdateUsername(ctx context.Context, userID uuid.UUID, username string) error {
	opCtx, cancel := e.storeCtx(ctx)
	defer cancel()

	updated, err := e.users.Update(opCtx, userID, UserUpdate{Username: &username})
	if err != nil {
		return err
	}

	e.cacheRecord(updated)
	e.auditEvent(ctx, "account.update_username", userID, "", "", true, nil)
	return nil
}

// UpdateAvatar changes the user's avatar reference.
func (e *Engine) UpdateAvatar(ctx context.Context, userID uuid.UUID, avatar string) error {
	opCtx, cancel := e.storeCtx(ctx)
	defer cancel()

	updated, err := e.users.Update(opCtx, userID, UserUpdate{Avatar: &avatar})
	if err != nil {
		return err
	}

	e.cacheRecord(updated)
	e.auditEvent(ctx, "account.update_avatar", userID, "", "", true, nil)
	return nil
}

// UpdateMaxSessions changes the user's concurrent session quota. Reductions
// below the current live session count are rejected; existing sessions are
// never truncated to fit a new quota.
func (e *Engine) UpdateMaxSessions(ctx context.Context, userID uuid.UUID, maxSessions int) error {
	if maxSessions <= 0 {
		return errors.New("max sessions must be positive")
	}

	opCtx, cancel := e.storeCtx(ctx)
	defer cancel()

	active, err := e.sessions.CountForUser(opCtx, userID)
	if err != nil {
		return e.storeErr(err)
	}
	if maxSessions < active {
		return ErrQuotaBelowActive
	}

	updated, err := e.users.Update(opCtx, userID, UserUpdate{MaxSessions: &maxSessions})
	if err != nil {
		return err
	}

	e.cacheRecord(updated)
	e.auditEvent(ctx, "account.update_max_sessions", userID, "", "", true, nil)
	return nil
}

// SetTwoFactorEnabled toggles two-factor on the account. Disabling also
// clears any pending challenge on the user's live sessions so they are not
// stranded behind a factor that no longer exists.
func (e *Engine) SetTwoFactorEnabled(ctx context.Context, userID uuid.UUID, enabled bool) error {
	opCtx, cancel := e.storeCtx(ctx)
	defer cancel()

	updated, err := e.users.Update(opCtx, userID, UserUpdate{TwoFactorEnabled: &enabled})
	if err != nil {
		return err
	}
	e.cacheRecord(updated)

	if !enabled {
		records, err := e.sessions.SessionsForUser(opCtx, userID)
		if err != nil {
			return e.storeErr(err)
		}
		for _, rec := range records {
			if !rec.TwoFactorPending {
				continue
			}
			if err := e.sessions.SetTwoFactorPending(opCtx, rec.Token, false); err != nil {
				return e.storeErr(err)
			}
		}
	}

	e.auditEvent(ctx, "account.set_two_factor", userID, "", "", true, nil)
	return nil
}

// DeleteAccount removes the user, revokes every session they hold, and
// evicts them from the identity cache.
func (e *Engine) DeleteAccount(ctx context.Context, userID uuid.UUID) error {
	opCtx, cancel := e.storeCtx(ctx)
	defer cancel()

	if err := e.sessions.DeleteAllForUser(opCtx, userID); err != nil {
		return e.storeErr(err)
	}

	if err := e.users.Delete(opCtx, userID); err != nil {
		return err
	}

	e.evictUser(userID)
	e.auditEvent(ctx, "account.delete", userID, "", "", true, nil)
	return nil
}
