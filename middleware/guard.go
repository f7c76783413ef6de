package middleware

import (
	"context"
	"net/http"

	authgate "github.com/hatchpanel/authgate"
	"github.com/hatchpanel/authgate/credential"
	"github.com/hatchpanel/authgate/identity"
)

type resolutionContextKey struct{}

// ResolutionFromContext returns the gate resolution injected by a guard.
func ResolutionFromContext(ctx context.Context) (authgate.Resolution, bool) {
	res, ok := ctx.Value(resolutionContextKey{}).(authgate.Resolution)
	return res, ok
}

// IdentityFromContext returns the resolved identity snapshot, valid only
// behind RequireAuth or RequireElevated.
func IdentityFromContext(ctx context.Context) (identity.Snapshot, bool) {
	res, ok := ResolutionFromContext(ctx)
	if !ok || !res.State.Authenticated() {
		return identity.Snapshot{}, false
	}
	return res.Identity, true
}

// Guard wraps a handler with the given gate mode. Rejections map to 401
// (no, invalid, or expired credential and two-factor pending), 403
// (privilege rejected), and 500 (store failure, fail closed).
func Guard(engine *authgate.Engine, mode authgate.GateMode) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			raw, _ := credential.ReadCookie(r, credential.SessionCookieName)

			res, err := engine.Authenticate(r.Context(), raw, mode)
			if err != nil {
				http.Error(w, "service unavailable", http.StatusInternalServerError)
				return
			}

			switch res.State {
			case authgate.StatePrivilegeRejected:
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			case authgate.StateTwoFactorPending:
				http.Error(w, "two factor required", http.StatusUnauthorized)
				return
			case authgate.StateNoCredential, authgate.StateInvalidCredential, authgate.StateExpiredSession:
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), resolutionContextKey{}, res)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAuth enforces the standard gate.
func RequireAuth(engine *authgate.Engine) func(http.Handler) http.Handler {
	return Guard(engine, authgate.GateStandard)
}

// RequireTwoFactorExempt admits two-factor-pending sessions. Only the two
// challenge-consuming handlers may sit behind it.
func RequireTwoFactorExempt(engine *authgate.Engine) func(http.Handler) http.Handler {
	return Guard(engine, authgate.GateTwoFactorExempt)
}

// RequireElevated enforces the standard gate plus the privilege predicate.
func RequireElevated(engine *authgate.Engine) func(http.Handler) http.Handler {
	return Guard(engine, authgate.GateElevated)
}
