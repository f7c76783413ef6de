package identity

import (
	"time"

	"github.com/google/uuid"
)

// Snapshot is the denormalized copy of a user record that request handlers
// read. It is an explicit field set, not a serialized blob: the cache format
// never couples to an in-process representation.
type Snapshot struct {
	UserID   uuid.UUID
	Username string
	Email    string
	Avatar   string

	EmailVerified    bool
	TwoFactorEnabled bool
	Root             bool

	GoogleID  string
	DiscordID string
	GithubID  string

	MaxSessions int

	SignupIP  string
	LatestIP  string
	LastLogin time.Time
	CreatedAt time.Time
}
