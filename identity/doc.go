// Package identity holds the fast-path cache of denormalized user
// snapshots.
//
// The cache is never the system of record. Every component that mutates a
// user in the authoritative store must, within the same logical operation,
// either Put the freshly reloaded record or Remove the entry — a stale
// snapshot after a mutation is a correctness bug, not an acceptable
// staleness window.
//
// The cache never reaches into the user store itself; on a miss the caller
// loads and calls Put. This keeps the dependency direction leaf-ward.
package identity
