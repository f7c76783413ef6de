package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"

	"github.com/google/uuid"
)

// Record wire format, version 1. Append-only: later versions may add fields
// but never reinterpret old ones.
const recordFormatVersionV1 = 1

const flagTwoFactorPending = 1 << 0

func Encode(r *Record) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(recordFormatVersionV1)
	buf.Write(r.UserID[:])

	if len(r.CreationIP) > 255 {
		return nil, errors.New("creation ip too long")
	}
	buf.WriteByte(byte(len(r.CreationIP)))
	buf.WriteString(r.CreationIP)

	var flags byte
	if r.TwoFactorPending {
		flags |= flagTwoFactorPending
	}
	buf.WriteByte(flags)

	if err := binary.Write(&buf, binary.BigEndian, r.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, r.ExpiresAt); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func Decode(data []byte) (*Record, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != recordFormatVersionV1 {
		return nil, errors.New("invalid record version")
	}

	r := &Record{}

	var rawID [16]byte
	if _, err := io.ReadFull(reader, rawID[:]); err != nil {
		return nil, err
	}
	r.UserID = uuid.UUID(rawID)

	ipLen, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	ip := make([]byte, ipLen)
	if _, err := io.ReadFull(reader, ip); err != nil {
		return nil, err
	}
	r.CreationIP = string(ip)

	flags, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	r.TwoFactorPending = flags&flagTwoFactorPending != 0

	if err := binary.Read(reader, binary.BigEndian, &r.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &r.ExpiresAt); err != nil {
		return nil, err
	}

	return r, nil
}
