// Package authgate turns an opaque client-held credential into a verified,
// rate-limited, possibly two-factor-pending identity on every request, while
// keeping a fast-lookup cache of user snapshots coherent with the
// authoritative user store.
//
// The package is designed for concurrent server workloads: Engine methods
// are safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// authgate is the public surface. It exposes [Engine], [Builder], [Config],
// and value types (Resolution, MetricsSnapshot, SessionInfo, etc.). The
// session store, identity cache, and credential codec live in leaf
// subpackages; flow orchestration, rate limiting, and audit dispatch live
// under internal/ and are never exported.
//
// HTTP routing, the relational user store, outbound email, provider token
// exchange, and TOTP secret generation are collaborator concerns. Callers
// supply them through [UserStore] and [SecondFactorVerifier]; the engine
// never performs SQL or provider handshakes itself.
//
// # Failure posture
//
// Authenticate is the hot path and fails closed: any backing-store failure
// surfaces as [ErrStoreUnavailable], never as an authenticated identity.
// Every rejection path leaves no partial state behind.
package authgate
