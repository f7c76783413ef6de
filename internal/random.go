package internal

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
)

// Token is an opaque random session token. Tokens are generated once at
// session creation and never derived from user data.
type Token [24]byte

const stateNonceSize = 32

func NewToken() (Token, error) {
	var t Token
	_, err := rand.Read(t[:])
	return t, err
}

func (t Token) Bytes() []byte {
	return t[:]
}

func (t Token) String() string {
	// base64url, no padding, compact
	return base64.RawURLEncoding.EncodeToString(t[:])
}

func ParseToken(token string) (Token, error) {
	var t Token

	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return t, err
	}
	if len(raw) != len(t) {
		return t, errors.New("invalid token size")
	}

	copy(t[:], raw)
	return t, nil
}

// NewStateNonce returns a one-time value binding an OAuth redirect back to
// the request that initiated it.
func NewStateNonce() (string, error) {
	raw := make([]byte, stateNonceSize)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// NewStateID returns the key under which a state record is stored. It is
// distinct from the nonce so the storage key never reveals the nonce itself.
func NewStateID() (string, error) {
	raw := make([]byte, 16)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}
