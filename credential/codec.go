package credential

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Decode failure classes. An expired or malformed token never yields a
// usable payload.
var (
	ErrMalformed        = errors.New("credential malformed")
	ErrSignatureInvalid = errors.New("credential signature invalid")
	ErrExpired          = errors.New("credential expired")
)

const minSecretSize = 32

// Config holds the codec's signing parameters. The algorithm is pinned at
// construction; tokens signed with anything else are rejected outright.
type Config struct {
	Secret []byte
	Issuer string
	Leeway time.Duration
}

// Payload is the field set embedded in a credential. SessionToken is set for
// session credentials; StateID, StateNonce, and RejoinURI for OAuth state
// credentials.
type Payload struct {
	SessionToken string
	StateID      string
	StateNonce   string
	RejoinURI    string
}

type credentialClaims struct {
	SessionToken string `json:"sid,omitempty"`
	StateID      string `json:"stid,omitempty"`
	StateNonce   string `json:"nonce,omitempty"`
	RejoinURI    string `json:"rejoin,omitempty"`
	jwt.RegisteredClaims
}

// Codec signs and verifies credentials with HMAC-SHA256 over a server-held
// secret.
type Codec struct {
	config Config
}

func NewCodec(cfg Config) (*Codec, error) {
	if len(cfg.Secret) < minSecretSize {
		return nil, errors.New("credential secret must be at least 32 bytes")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	return &Codec{config: cfg}, nil
}

// Encode produces a signed token string carrying the payload. ttl bounds the
// outer token lifetime; it is independent of any inner session expiry.
func (c *Codec) Encode(p Payload, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		return "", errors.New("credential ttl must be positive")
	}

	now := time.Now()
	claims := credentialClaims{
		SessionToken: p.SessionToken,
		StateID:      p.StateID,
		StateNonce:   p.StateNonce,
		RejoinURI:    p.RejoinURI,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    c.config.Issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(c.config.Secret)
}

// Decode verifies the signature and returns the embedded payload. Failures
// map to [ErrMalformed], [ErrSignatureInvalid], or [ErrExpired].
func (c *Codec) Decode(tokenStr string) (*Payload, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	}
	if c.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(c.config.Leeway))
	}
	if c.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(c.config.Issuer))
	}

	parsed, err := jwt.ParseWithClaims(tokenStr, &credentialClaims{}, func(t *jwt.Token) (interface{}, error) {
		return c.config.Secret, nil
	}, options...)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
			return nil, ErrSignatureInvalid
		default:
			return nil, ErrMalformed
		}
	}

	claims, ok := parsed.Claims.(*credentialClaims)
	if !ok || !parsed.Valid {
		return nil, ErrMalformed
	}

	return &Payload{
		SessionToken: claims.SessionToken,
		StateID:      claims.StateID,
		StateNonce:   claims.StateNonce,
		RejoinURI:    claims.RejoinURI,
	}, nil
}
