package session

import "github.com/google/uuid"

// Record is one active login from one client. CreationIP and CreatedAt are
// set once at creation and never change; TwoFactorPending is the only
// mutable field.
type Record struct {
	Token            string
	UserID           uuid.UUID
	CreationIP       string
	TwoFactorPending bool

	CreatedAt int64
	ExpiresAt int64
}

// Status classifies the outcome of a session lookup. Callers must treat
// [StatusExpired] and [StatusNotFound] identically for authorization
// purposes; the distinction exists for diagnostics only.
type Status uint8

const (
	StatusValid Status = iota
	StatusExpired
	StatusNotFound
)

func (s Status) String() string {
	switch s {
	case StatusValid:
		return "valid"
	case StatusExpired:
		return "expired"
	case StatusNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}
