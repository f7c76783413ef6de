package authgate

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/hatchpanel/authgate/credential"
	"github.com/hatchpanel/authgate/internal"
)

// OAuthFlowStart is the material for redirecting a user to a provider.
// Nonce goes into the provider redirect's state parameter; CookieValue is
// the signed side cookie the callback must present.
type OAuthFlowStart struct {
	StateID     string
	Nonce       string
	CookieValue string
	CookieTTL   time.Duration
}

// OAuthFlowResult is a successfully completed state handshake.
type OAuthFlowResult struct {
	RejoinURI string
}

// BeginOAuthFlow starts the anti-CSRF state handshake for an OAuth login or
// linking flow. It binds a fresh nonce to the rejoin URI in a single-use
// server-side record and returns the signed state cookie that the callback
// must echo alongside the provider's state parameter.
func (e *Engine) BeginOAuthFlow(ctx context.Context, rejoinURI string) (*OAuthFlowStart, error) {
	stateID, err := internal.NewStateID()
	if err != nil {
		return nil, err
	}
	nonce, err := internal.NewStateNonce()
	if err != nil {
		return nil, err
	}

	opCtx, cancel := e.storeCtx(ctx)
	defer cancel()

	record := &oauthStateRecord{
		NonceHash: sha256.Sum256([]byte(nonce)),
		RejoinURI: rejoinURI,
		ExpiresAt: time.Now().Add(e.config.OAuth.StateTTL).Unix(),
	}
	if err := e.stateStore.Save(opCtx, stateID, record, e.config.OAuth.StateTTL); err != nil {
		return nil, e.storeErr(err)
	}

	cookieValue, err := e.codec.Encode(credential.Payload{
		StateID:    stateID,
		StateNonce: nonce,
		RejoinURI:  rejoinURI,
	}, e.config.OAuth.StateTTL)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricOAuthStateIssued)

	return &OAuthFlowStart{
		StateID:     stateID,
		Nonce:       nonce,
		CookieValue: cookieValue,
		CookieTTL:   e.config.OAuth.StateTTL,
	}, nil
}

// CompleteOAuthFlow validates a provider callback against the handshake
// started by BeginOAuthFlow. The state record is consumed exactly once, so
// a replayed callback reports ErrStateMissing even with a valid cookie. A
// mismatched state never touches the user store.
func (e *Engine) CompleteOAuthFlow(ctx context.Context, returnedState, rawStateCookie string) (*OAuthFlowResult, error) {
	if rawStateCookie == "" {
		e.metricInc(MetricOAuthStateMismatch)
		return nil, ErrStateMissing
	}

	payload, err := e.codec.Decode(rawStateCookie)
	if err != nil || payload.StateID == "" || payload.StateNonce == "" {
		e.metricInc(MetricOAuthStateMismatch)
		return nil, ErrStateMissing
	}

	opCtx, cancel := e.storeCtx(ctx)
	defer cancel()

	record, err := e.stateStore.Consume(opCtx, payload.StateID)
	if err != nil {
		if errors.Is(err, errStateNotFound) {
			e.metricInc(MetricOAuthStateMismatch)
			return nil, ErrStateMissing
		}
		return nil, e.storeErr(err)
	}

	returnedHash := sha256.Sum256([]byte(returnedState))
	cookieHash := sha256.Sum256([]byte(payload.StateNonce))
	match := subtle.ConstantTimeCompare(returnedHash[:], record.NonceHash[:]) &
		subtle.ConstantTimeCompare(cookieHash[:], record.NonceHash[:])
	if match != 1 {
		e.metricInc(MetricOAuthStateMismatch)
		return nil, ErrStateMismatch
	}

	e.metricInc(MetricOAuthStateConsumed)
	return &OAuthFlowResult{RejoinURI: record.RejoinURI}, nil
}

// LinkProvider attaches a third-party identity to a local account. A
// provider identity belongs to at most one account, and an account holds at
// most one identity per provider; conflicts are rejected, never
// overwritten. Callers run CompleteOAuthFlow first.
func (e *Engine) LinkProvider(ctx context.Context, userID uuid.UUID, ident ProviderIdentity) error {
	opCtx, cancel := e.storeCtx(ctx)
	defer cancel()

	existing, err := e.users.GetByProviderID(opCtx, ident.Provider, ident.ProviderUserID)
	if err == nil && existing != nil {
		e.metricInc(MetricLinkRejected)
		if existing.UserID == userID {
			return ErrAlreadyLinked
		}
		return ErrProviderIdentityTaken
	}
	if err != nil && !errors.Is(err, ErrUserNotFound) {
		return e.userStoreErr(err)
	}

	rec, err := e.users.GetByID(opCtx, userID)
	if err != nil {
		return e.userStoreErr(err)
	}
	if linkedProviderID(rec, ident.Provider) != "" {
		e.metricInc(MetricLinkRejected)
		return ErrAlreadyLinked
	}

	update := UserUpdate{}
	if err := setProviderID(&update, ident.Provider, ident.ProviderUserID); err != nil {
		return err
	}

	updated, err := e.users.Update(opCtx, userID, update)
	if err != nil {
		return err
	}

	e.cacheRecord(updated)
	e.auditEvent(ctx, "oauth.link", userID, "", "", true, nil)
	return nil
}

// UnlinkProvider removes a third-party identity from a local account.
func (e *Engine) UnlinkProvider(ctx context.Context, userID uuid.UUID, provider Provider) error {
	opCtx, cancel := e.storeCtx(ctx)
	defer cancel()

	rec, err := e.users.GetByID(opCtx, userID)
	if err != nil {
		return e.userStoreErr(err)
	}
	if linkedProviderID(rec, provider) == "" {
		return ErrNotLinked
	}

	update := UserUpdate{}
	if err := setProviderID(&update, provider, ""); err != nil {
		return err
	}

	updated, err := e.users.Update(opCtx, userID, update)
	if err != nil {
		return err
	}

	e.cacheRecord(updated)
	e.auditEvent(ctx, "oauth.unlink", userID, "", "", true, nil)
	return nil
}

func linkedProviderID(rec *UserRecord, provider Provider) string {
	switch provider {
	case ProviderGoogle:
		return rec.GoogleID
	case ProviderDiscord:
		return rec.DiscordID
	case ProviderGithub:
		return rec.GithubID
	default:
		return ""
	}
}

func setProviderID(update *UserUpdate, provider Provider, id string) error {
	switch provider {
	case ProviderGoogle:
		update.GoogleID = &id
	case ProviderDiscord:
		update.DiscordID = &id
	case ProviderGithub:
		update.GithubID = &id
	default:
		return errors.New("unknown provider: " + string(provider))
	}
	return nil
}
