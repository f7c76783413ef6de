package authgate

import (
	"errors"
	"time"

	"github.com/hatchpanel/authgate/identity"
)

// Config defines the engine's tunables. Instances are cloned at Build time
// and treated as immutable afterwards.
type Config struct {
	Credential CredentialConfig
	Session    SessionConfig
	TwoFactor  TwoFactorConfig
	OAuth      OAuthConfig
	Gate       GateConfig
	Audit      AuditConfig
	Metrics    MetricsConfig
}

/*
====================================
CREDENTIAL CONFIG
====================================
*/

// CredentialConfig controls the signed cookie credential.
type CredentialConfig struct {
	// Secret signs the cookie credential (HMAC-SHA256). At least 32 bytes.
	Secret []byte
	Issuer string
	Leeway time.Duration
	// CookieTTL is the outer cookie expiry hint, independent of the inner
	// session expiry. Zero defaults to Session.TTL.
	CookieTTL time.Duration
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls the persistent session store.
type SessionConfig struct {
	RedisPrefix string
	// TTL is the session lifetime stamped into new records.
	TTL time.Duration
	// ExpiredGrace is how long past expiry a record key is retained so a
	// read can still report Expired rather than NotFound.
	ExpiredGrace time.Duration
	// StoreTimeout bounds every backing-store round-trip. An operation that
	// does not complete in time surfaces as ErrStoreUnavailable.
	StoreTimeout time.Duration
	// DefaultMaxSessions applies when a user record carries no quota.
	DefaultMaxSessions int
}

/*
====================================
TWO-FACTOR CONFIG
====================================
*/

// TwoFactorConfig controls the two-factor-pending gate behavior.
type TwoFactorConfig struct {
	// Enabled gates the whole pending mechanism. When false, sessions are
	// never created pending.
	Enabled bool
	// MaxAttempts bounds OTP/backup-code submissions per session per window.
	MaxAttempts    int
	AttemptsWindow time.Duration
}

/*
====================================
OAUTH CONFIG
====================================
*/

// OAuthConfig controls the anti-CSRF state handshake.
type OAuthConfig struct {
	// StateTTL bounds the linking/login handshake. State records are
	// single-use regardless of TTL.
	StateTTL time.Duration
}

/*
====================================
GATE CONFIG
====================================
*/

// GateConfig controls the request-guard pipeline.
type GateConfig struct {
	// ElevatedPredicate decides whether a resolved snapshot may pass the
	// elevated gate. Nil defaults to the snapshot's Root flag.
	ElevatedPredicate func(identity.Snapshot) bool
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls the in-process metrics counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns the engine defaults. Callers fill in the credential
// secret and adjust from there.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Credential: CredentialConfig{
			Leeway: 30 * time.Second,
		},
		Session: SessionConfig{
			RedisPrefix:        "ag",
			TTL:                28 * 24 * time.Hour,
			ExpiredGrace:       24 * time.Hour,
			StoreTimeout:       5 * time.Second,
			DefaultMaxSessions: 5,
		},
		TwoFactor: TwoFactorConfig{
			Enabled:        true,
			MaxAttempts:    5,
			AttemptsWindow: 15 * time.Minute,
		},
		OAuth: OAuthConfig{
			StateTTL: 10 * time.Minute,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// Validate rejects configurations the engine cannot run safely with.
func (c *Config) Validate() error {
	if len(c.Credential.Secret) < 32 {
		return errors.New("credential secret must be at least 32 bytes")
	}
	if c.Session.TTL <= 0 {
		return errors.New("session TTL must be positive")
	}
	if c.Session.ExpiredGrace < 0 {
		return errors.New("session expired grace must not be negative")
	}
	if c.Session.StoreTimeout <= 0 {
		return errors.New("store timeout must be positive")
	}
	if c.Session.DefaultMaxSessions <= 0 {
		return errors.New("default max sessions must be positive")
	}
	if c.Session.RedisPrefix == "" {
		return errors.New("redis prefix must not be empty")
	}
	if c.TwoFactor.Enabled {
		if c.TwoFactor.MaxAttempts <= 0 {
			return errors.New("two-factor max attempts must be positive")
		}
		if c.TwoFactor.AttemptsWindow <= 0 {
			return errors.New("two-factor attempts window must be positive")
		}
	}
	if c.OAuth.StateTTL <= 0 {
		return errors.New("oauth state TTL must be positive")
	}
	return nil
}

func cloneConfig(cfg Config) Config {
	out := cfg
	if cfg.Credential.Secret != nil {
		out.Credential.Secret = make([]byte, len(cfg.Credential.Secret))
		copy(out.Credential.Secret, cfg.Credential.Secret)
	}
	return out
}
