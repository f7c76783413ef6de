package authgate

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	oauthStateKeyPrefix       = "agos"
	oauthStateRecordVersionV1 = 1
)

var (
	errStateNotFound         = errors.New("oauth state record not found")
	errStateRedisUnavailable = errors.New("oauth state redis unavailable")
)

// oauthStateRecord binds an initiated OAuth flow to its callback. Only the
// nonce hash is persisted; the plaintext nonce lives in the signed side
// cookie held by the client.
type oauthStateRecord struct {
	NonceHash [32]byte
	RejoinURI string
	ExpiresAt int64
}

type oauthStateStore struct {
	redis  redis.UniversalClient
	prefix string
}

func newOAuthStateStore(redisClient redis.UniversalClient) *oauthStateStore {
	return &oauthStateStore{
		redis:  redisClient,
		prefix: oauthStateKeyPrefix,
	}
}

func (s *oauthStateStore) key(stateID string) string {
	return s.prefix + ":" + stateID
}

func (s *oauthStateStore) Save(ctx context.Context, stateID string, record *oauthStateRecord, ttl time.Duration) error {
	encoded, err := encodeOAuthStateRecord(record)
	if err != nil {
		return err
	}

	if err := s.redis.Set(ctx, s.key(stateID), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", errStateRedisUnavailable, err)
	}

	return nil
}

// Consume removes and returns the record in one atomic step, so a nonce can
// be redeemed exactly once. A second call for the same state ID reports
// errStateNotFound.
func (s *oauthStateStore) Consume(ctx context.Context, stateID string) (*oauthStateRecord, error) {
	data, err := s.redis.GetDel(ctx, s.key(stateID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, errStateNotFound
		}
		return nil, fmt.Errorf("%w: %v", errStateRedisUnavailable, err)
	}

	record, err := decodeOAuthStateRecord(data)
	if err != nil {
		return nil, err
	}

	if time.Now().Unix() > record.ExpiresAt {
		return nil, errStateNotFound
	}

	return record, nil
}

func encodeOAuthStateRecord(record *oauthStateRecord) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(oauthStateRecordVersionV1)
	buf.Write(record.NonceHash[:])

	rejoin := []byte(record.RejoinURI)
	if len(rejoin) > 0xFFFF {
		return nil, errors.New("rejoin uri too long")
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(rejoin))); err != nil {
		return nil, err
	}
	buf.Write(rejoin)

	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func decodeOAuthStateRecord(data []byte) (*oauthStateRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != oauthStateRecordVersionV1 {
		return nil, errors.New("invalid oauth state record version")
	}

	record := &oauthStateRecord{}

	if _, err := io.ReadFull(reader, record.NonceHash[:]); err != nil {
		return nil, err
	}

	var rejoinLen uint16
	if err := binary.Read(reader, binary.BigEndian, &rejoinLen); err != nil {
		return nil, err
	}
	rejoin := make([]byte, rejoinLen)
	if _, err := io.ReadFull(reader, rejoin); err != nil {
		return nil, err
	}
	record.RejoinURI = string(rejoin)

	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, err
	}

	return record, nil
}
