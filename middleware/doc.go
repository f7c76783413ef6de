// Package middleware exposes net/http guards built on top of
// authgate.Engine resolution.
//
// # Guards
//
//   - [Guard] — wraps a handler with any gate mode.
//   - [RequireAuth] — standard gate, rejects two-factor-pending sessions.
//   - [RequireTwoFactorExempt] — lets pending sessions through; only the OTP
//     and backup-code verification handlers may use it.
//   - [RequireElevated] — standard gate plus the privilege predicate.
//
// Each guard reads the session cookie, calls Engine.Authenticate, and on
// success injects the resolution into the request context for
// [ResolutionFromContext] and [IdentityFromContext].
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. It does NOT
// implement authentication logic itself; all decisions are delegated to
// Engine.Authenticate.
package middleware
