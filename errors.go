package authgate

import (
	"errors"

	"github.com/hatchpanel/authgate/session"
)

var (
	// ErrEngineNotReady is returned when an Engine method is called on a nil
	// or unbuilt engine.
	ErrEngineNotReady = errors.New("engine not ready")
	// ErrStoreUnavailable wraps any backing-store I/O failure or timeout.
	// The gate fails closed on it: the caller maps it to a server error,
	// never to an authenticated identity.
	ErrStoreUnavailable = errors.New("backing store unavailable")
	// ErrExpiryInPast is returned when a session is created with a non-future
	// expiry. Programmer or input error; the session is not created.
	ErrExpiryInPast = session.ErrExpiryInPast
	// ErrSessionNotFound is returned by session operations that target a
	// token the store does not hold, including revocation of a token owned
	// by a different user.
	ErrSessionNotFound = session.ErrNotFound
	// ErrUserNotFound is returned by engine operations targeting a user the
	// UserStore does not know. UserStore implementations return it from
	// their lookup methods.
	ErrUserNotFound = errors.New("user not found")
	// ErrQuotaExceeded is returned when a login would exceed the user's
	// concurrent session quota. No session record is left behind.
	ErrQuotaExceeded = errors.New("session quota exceeded")
	// ErrQuotaBelowActive is returned when an account-settings change would
	// reduce max sessions below the user's current live session count.
	// Existing sessions are never silently truncated.
	ErrQuotaBelowActive = errors.New("max sessions below active session count")
	// ErrSecondFactorNotPending is returned by the OTP and backup-code
	// verification flows when the session has no pending two-factor
	// challenge to consume.
	ErrSecondFactorNotPending = errors.New("no two-factor challenge pending")
	// ErrSecondFactorInvalid is returned when the submitted OTP or backup
	// code does not verify.
	ErrSecondFactorInvalid = errors.New("invalid second factor")
	// ErrSecondFactorRateLimited is returned once a session exhausts its
	// second-factor attempt budget for the current window.
	ErrSecondFactorRateLimited = errors.New("second factor attempts rate limited")
	// ErrVerifierNotConfigured is returned by the two-factor flows when no
	// SecondFactorVerifier was supplied at build time.
	ErrVerifierNotConfigured = errors.New("second factor verifier not configured")
	// ErrStateMissing is returned by CompleteOAuthFlow when the state cookie
	// is absent or its record was already consumed.
	ErrStateMissing = errors.New("oauth state missing")
	// ErrStateMismatch is returned when the state echoed by the provider
	// does not match the nonce bound to the initiating request.
	ErrStateMismatch = errors.New("oauth state mismatch")
	// ErrAlreadyLinked is returned when the local account already holds an
	// identity for the provider. Links are never overwritten.
	ErrAlreadyLinked = errors.New("provider already linked to this account")
	// ErrProviderIdentityTaken is returned when the third-party identity is
	// attached to a different local account.
	ErrProviderIdentityTaken = errors.New("provider identity linked to another account")
	// ErrNotLinked is returned by UnlinkProvider when there is nothing to
	// unlink.
	ErrNotLinked = errors.New("provider not linked to this account")
)
