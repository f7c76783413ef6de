package authgate

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/hatchpanel/authgate/identity"
	internalaudit "github.com/hatchpanel/authgate/internal/audit"
)

// Provider identifies a third-party identity provider.
type Provider string

const (
	ProviderGoogle  Provider = "google"
	ProviderDiscord Provider = "discord"
	ProviderGithub  Provider = "github"
)

// UserRecord is the authoritative user row as the [UserStore] returns it.
// The engine only ever copies it into an [identity.Snapshot]; it never
// writes fields back except through [UserStore.Update].
type UserRecord struct {
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

// UserUpdate is a partial-field update. Nil pointers leave the field
// unchanged; a pointer to the zero value clears it.
type UserUpdate struct {
	Username         *string
	Email            *string
	Avatar           *string
	MaxSessions      *int
	EmailVerified    *bool
	TwoFactorEnabled *bool
	LatestIP         *string
	LastLogin        *time.Time

	GoogleID  *string
	DiscordID *string
	GithubID  *string
}

// UserStore is the collaborator interface over the authoritative user
// store. The engine performs no SQL or queries of its own; it calls this
// interface and immediately reconciles the identity cache afterward.
//
// Lookup methods return [ErrUserNotFound] (possibly wrapped) when no user
// matches. Update returns the freshly reloaded record so the engine can
// cache it without a second round-trip.
type UserStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*UserRecord, error)
	GetByEmail(ctx context.Context, email string) (*UserRecord, error)
	GetByProviderID(ctx context.Context, provider Provider, providerUserID string) (*UserRecord, error)
	Create(ctx context.Context, rec UserRecord) (*UserRecord, error)
	Update(ctx context.Context, id uuid.UUID, update UserUpdate) (*UserRecord, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Exists(ctx context.Context, usernameOrEmail string) (bool, error)
}

// SecondFactorVerifier is the opaque second-factor capability. TOTP secret
// generation, QR provisioning, and backup-code bookkeeping all live behind
// it; the engine only asks whether a submitted code verifies. Backup codes
// are single-use: a successful ConsumeBackupCode must invalidate the code.
type SecondFactorVerifier interface {
	VerifyOTP(ctx context.Context, userID uuid.UUID, code string) (bool, error)
	ConsumeBackupCode(ctx context.Context, userID uuid.UUID, code string) (bool, error)
}

// ProviderIdentity is the normalized result of a provider token exchange,
// performed outside this package. It contains facts only, no decisions.
type ProviderIdentity struct {
	Provider       Provider
	ProviderUserID string
	Email          string
	AvatarURL      string
	EmailVerified  bool
}

// SessionInfo is the caller-facing view of one active session, used for
// "your active sessions" displays and revocation.
type SessionInfo struct {
	Token      string
	CreationIP string
	CreatedAt  time.Time
	ExpiresAt  time.Time
}

func snapshotFromRecord(rec *UserRecord) identity.Snapshot {
	return identity.Snapshot{
		UserID:           rec.UserID,
		Username:         rec.Username,
		Email:            rec.Email,
		Avatar:           rec.Avatar,
		EmailVerified:    rec.EmailVerified,
		TwoFactorEnabled: rec.TwoFactorEnabled,
		Root:             rec.Root,
		GoogleID:         rec.GoogleID,
		DiscordID:        rec.DiscordID,
		GithubID:         rec.GithubID,
		MaxSessions:      rec.MaxSessions,
		SignupIP:         rec.SignupIP,
		LatestIP:         rec.LatestIP,
		LastLogin:        rec.LastLogin,
		CreatedAt:        rec.CreatedAt,
	}
}

// AuditEvent is a structured audit record emitted by the engine.
type AuditEvent = internalaudit.Event

// AuditSink receives [AuditEvent] values from the engine's audit
// dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink is an [AuditSink] that silently discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based [AuditSink].
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink is an [AuditSink] that writes JSON-encoded events to an
// [io.Writer].
type JSONWriterSink = internalaudit.JSONWriterSink

// NewChannelSink creates a [ChannelSink] with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a [JSONWriterSink] that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}
