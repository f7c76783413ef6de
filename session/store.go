package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrStoreUnavailable wraps any Redis I/O failure. Callers must fail closed
// on it: a session whose state cannot be read is never treated as valid.
var ErrStoreUnavailable = errors.New("session store unavailable")

// ErrExpiryInPast is returned by [Store.Create] when the requested expiry is
// not strictly in the future.
var ErrExpiryInPast = errors.New("session expiry must be in the future")

// ErrTokenCollision is returned by [Store.Create] when the token already
// exists. Collisions are creation failures, never silent overwrites.
var ErrTokenCollision = errors.New("session token collision")

// ErrNotFound is returned by record mutations targeting a session that does
// not exist or has expired.
var ErrNotFound = errors.New("session not found")

// Store is a Redis-backed session store. It maintains three structures per
// prefix: the record keys themselves, a per-user index sorted by creation
// time (oldest first), and a global expiry index used by [Store.Sweep].
type Store struct {
	redis        redis.UniversalClient
	prefix       string
	expiredGrace time.Duration
	now          func() time.Time
}

// Option adjusts Store construction.
type Option func(*Store)

// WithClock overrides the store's time source. Tests use it to move the
// clock past session expiries without sleeping.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore creates a session [Store] backed by the given Redis client.
// prefix sets the Redis key namespace; expiredGrace is how long past expiry
// a record key is retained so reads can still distinguish Expired from
// NotFound.
func NewStore(redisClient redis.UniversalClient, prefix string, expiredGrace time.Duration, opts ...Option) *Store {
	s := &Store{
		redis:        redisClient,
		prefix:       prefix,
		expiredGrace: expiredGrace,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) recordKey(token string) string {
	return s.prefix + ":sess:" + token
}

func (s *Store) userKey(userID uuid.UUID) string {
	return s.prefix + ":user:" + userID.String()
}

func (s *Store) expiryIndexKey() string {
	return s.prefix + ":exp"
}

// Create persists a new record. The record's CreatedAt is stamped by the
// store; ExpiresAt must be strictly in the future.
//
// On an index write failure the record key is removed again so a rejected
// creation leaves no partial state behind.
func (s *Store) Create(ctx context.Context, rec *Record) error {
	now := s.now()
	if rec.ExpiresAt <= now.Unix() {
		return ErrExpiryInPast
	}
	if rec.Token == "" {
		return errors.New("session token must not be empty")
	}
	rec.CreatedAt = now.Unix()

	data, err := Encode(rec)
	if err != nil {
		return err
	}

	ttl := time.Unix(rec.ExpiresAt, 0).Sub(now) + s.expiredGrace
	key := s.recordKey(rec.Token)

	created, err := s.redis.SetNX(ctx, key, data, ttl).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !created {
		return ErrTokenCollision
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, s.userKey(rec.UserID), redis.Z{Score: float64(rec.CreatedAt), Member: rec.Token})
		pipe.ZAdd(ctx, s.expiryIndexKey(), redis.Z{Score: float64(rec.ExpiresAt), Member: rec.Token})
		return nil
	})
	if err != nil {
		_ = s.redis.Del(ctx, key).Err()
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	return nil
}

// Get retrieves a record and classifies it. A record observed past its
// expiry is deleted as a side effect and reported as [StatusExpired]; the
// returned record is still populated for diagnostics.
func (s *Store) Get(ctx context.Context, token string) (*Record, Status, error) {
	data, err := s.redis.Get(ctx, s.recordKey(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, StatusNotFound, nil
		}
		return nil, StatusNotFound, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	rec, err := Decode(data)
	if err != nil {
		// Corrupt record: purge it and report the token as unknown.
		if delErr := s.deleteRecordAndIndex(ctx, token, nil); delErr != nil {
			return nil, StatusNotFound, delErr
		}
		return nil, StatusNotFound, nil
	}
	rec.Token = token

	if rec.ExpiresAt <= s.now().Unix() {
		if err := s.deleteRecordAndIndex(ctx, token, &rec.UserID); err != nil {
			return nil, StatusExpired, err
		}
		return rec, StatusExpired, nil
	}

	return rec, StatusValid, nil
}

// Validate reports whether a token still identifies a live session.
func (s *Store) Validate(ctx context.Context, token string) (Status, error) {
	_, status, err := s.Get(ctx, token)
	return status, err
}

// LookupUser returns the owning user of a live session. ok is false for
// expired and unknown tokens alike.
func (s *Store) LookupUser(ctx context.Context, token string) (uuid.UUID, bool, error) {
	rec, status, err := s.Get(ctx, token)
	if err != nil || status != StatusValid {
		return uuid.Nil, false, err
	}
	return rec.UserID, true, nil
}

// SessionsForUser returns the user's live sessions ordered oldest first.
// Index entries whose records have vanished or expired are pruned along the
// way.
func (s *Store) SessionsForUser(ctx context.Context, userID uuid.UUID) ([]*Record, error) {
	tokens, err := s.redis.ZRange(ctx, s.userKey(userID), 0, -1).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []*Record{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if len(tokens) == 0 {
		return []*Record{}, nil
	}

	pipe := s.redis.Pipeline()
	cmds := make([]*redis.StringCmd, len(tokens))
	for i, token := range tokens {
		cmds[i] = pipe.Get(ctx, s.recordKey(token))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	nowUnix := s.now().Unix()
	records := make([]*Record, 0, len(tokens))
	for i, cmd := range cmds {
		data, cmdErr := cmd.Bytes()
		if cmdErr != nil {
			if errors.Is(cmdErr, redis.Nil) {
				// TTL beat the sweep to it; drop the stale index entry.
				if err := s.pruneIndexEntry(ctx, tokens[i], userID); err != nil {
					return nil, err
				}
				continue
			}
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, cmdErr)
		}

		rec, decErr := Decode(data)
		if decErr != nil {
			if err := s.deleteRecordAndIndex(ctx, tokens[i], &userID); err != nil {
				return nil, err
			}
			continue
		}
		rec.Token = tokens[i]

		if rec.ExpiresAt <= nowUnix {
			if err := s.deleteRecordAndIndex(ctx, tokens[i], &userID); err != nil {
				return nil, err
			}
			continue
		}

		records = append(records, rec)
	}

	return records, nil
}

// CountForUser returns the number of live sessions the user holds. Login
// flows call it before Create to enforce the session quota; the
// check-then-create pair is deliberately not atomic (quota is a UX control,
// not a security boundary).
func (s *Store) CountForUser(ctx context.Context, userID uuid.UUID) (int, error) {
	records, err := s.SessionsForUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	return len(records), nil
}

// SetTwoFactorPending flips the pending flag on a live session, preserving
// the record's TTL. Returns [ErrNotFound] for expired or unknown tokens.
func (s *Store) SetTwoFactorPending(ctx context.Context, token string, pending bool) error {
	rec, status, err := s.Get(ctx, token)
	if err != nil {
		return err
	}
	if status != StatusValid {
		return ErrNotFound
	}
	if rec.TwoFactorPending == pending {
		return nil
	}

	rec.TwoFactorPending = pending
	data, err := Encode(rec)
	if err != nil {
		return err
	}

	if err := s.redis.Set(ctx, s.recordKey(token), data, redis.KeepTTL).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// GetTwoFactorPending reports the pending flag of a live session. Returns
// [ErrNotFound] for expired or unknown tokens.
func (s *Store) GetTwoFactorPending(ctx context.Context, token string) (bool, error) {
	rec, status, err := s.Get(ctx, token)
	if err != nil {
		return false, err
	}
	if status != StatusValid {
		return false, ErrNotFound
	}
	return rec.TwoFactorPending, nil
}

// Delete removes a session and its index entries. Deleting an absent token
// is not an error.
func (s *Store) Delete(ctx context.Context, token string) error {
	data, err := s.redis.Get(ctx, s.recordKey(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			// Record already gone; clear any straggling expiry-index entry.
			if err := s.redis.ZRem(ctx, s.expiryIndexKey(), token).Err(); err != nil {
				return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
			}
			return nil
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	rec, decErr := Decode(data)
	if decErr != nil {
		return s.deleteRecordAndIndex(ctx, token, nil)
	}
	return s.deleteRecordAndIndex(ctx, token, &rec.UserID)
}

// DeleteAllForUser removes every session the user holds.
func (s *Store) DeleteAllForUser(ctx context.Context, userID uuid.UUID) error {
	tokens, err := s.redis.ZRange(ctx, s.userKey(userID), 0, -1).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, token := range tokens {
			pipe.Del(ctx, s.recordKey(token))
			pipe.ZRem(ctx, s.expiryIndexKey(), token)
		}
		pipe.Del(ctx, s.userKey(userID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Sweep deletes every record whose expiry has passed and prunes the expiry
// index. It returns the number of records removed. Callers serialize Sweep
// invocations; the Engine guarantees a sweep in progress is never
// re-triggered.
func (s *Store) Sweep(ctx context.Context) (int, error) {
	nowUnix := s.now().Unix()
	tokens, err := s.redis.ZRangeByScore(ctx, s.expiryIndexKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(nowUnix, 10),
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	removed := 0
	for _, token := range tokens {
		if err := s.Delete(ctx, token); err != nil {
			return removed, err
		}
		removed++
	}

	return removed, nil
}

// Clear removes every session under the store's prefix. Administrative use
// only.
func (s *Store) Clear(ctx context.Context) error {
	pattern := s.prefix + ":*"
	var cursor uint64

	for {
		keys, next, err := s.redis.Scan(ctx, cursor, pattern, 1000).Result()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		if len(keys) > 0 {
			if err := s.redis.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

func (s *Store) deleteRecordAndIndex(ctx context.Context, token string, userID *uuid.UUID) error {
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.recordKey(token))
		pipe.ZRem(ctx, s.expiryIndexKey(), token)
		if userID != nil {
			pipe.ZRem(ctx, s.userKey(*userID), token)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *Store) pruneIndexEntry(ctx context.Context, token string, userID uuid.UUID) error {
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRem(ctx, s.userKey(userID), token)
		pipe.ZRem(ctx, s.expiryIndexKey(), token)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}
