// Package credential encodes and decodes the client-held bearer credential:
// a signed, tamper-evident token carried in an httponly cookie.
//
// Two payload shapes share one codec. The session credential embeds only the
// session token; the OAuth state credential embeds a state ID, a nonce, and
// an optional rejoin URI. Signature verification always happens before any
// embedded field is trusted.
//
// The outer cookie expiry is a hint to the client. The inner session expiry,
// checked server-side against the session store, is authoritative.
package credential
