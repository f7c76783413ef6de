// Package session provides Redis-backed persistence for session records and
// a compact binary record encoding for authentication hot paths.
//
// # Record lifecycle
//
// A record is created by a successful login or OAuth callback, mutated only
// through the two-factor-pending flag, and destroyed by explicit deletion,
// by the sweep, or opportunistically whenever a read observes it past
// expiry. Tokens are unique; a creation that collides with an existing token
// fails rather than overwriting.
//
// # Expiry semantics
//
// The record's embedded expiry is authoritative. Redis key TTLs are set to
// expiry plus a grace window so a read shortly after expiry can still report
// Expired (distinct from NotFound) before deleting the record.
//
// # Architecture boundaries
//
// This package owns the [Store] and the [Record] model. It does not decode
// credentials, resolve user snapshots, or enforce gate policy — those
// responsibilities belong to the Engine.
package session
