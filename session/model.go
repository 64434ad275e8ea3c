package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

const recordFormatVersionCurrent = 1

const flagRememberMeOnly byte = 1 << 0

// Record is the server-side state bound to one session identifier.
// Timestamps are Unix milliseconds.
type Record struct {
	ID             string
	Username       string
	RememberMeOnly bool
	CreatedAt      int64
	LastAccessAt   int64
}

// Encode serializes a [Record] into the compact binary wire format stored in
// Redis. The session ID is the Redis key and is not part of the blob.
func Encode(r *Record) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(recordFormatVersionCurrent)

	if len(r.Username) > 255 {
		return nil, errors.New("username too long")
	}
	buf.WriteByte(byte(len(r.Username)))
	buf.WriteString(r.Username)

	var flags byte
	if r.RememberMeOnly {
		flags |= flagRememberMeOnly
	}
	buf.WriteByte(flags)

	if err := binary.Write(&buf, binary.BigEndian, r.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, r.LastAccessAt); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Decode parses a stored session blob. The caller assigns Record.ID from the
// Redis key it was fetched under.
func Decode(data []byte) (*Record, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != recordFormatVersionCurrent {
		return nil, errors.New("invalid session record version")
	}

	r := &Record{}

	userLen, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	username := make([]byte, userLen)
	if _, err := io.ReadFull(reader, username); err != nil {
		return nil, err
	}
	r.Username = string(username)

	flags, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	r.RememberMeOnly = flags&flagRememberMeOnly != 0

	if err := binary.Read(reader, binary.BigEndian, &r.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &r.LastAccessAt); err != nil {
		return nil, err
	}

	return r, nil
}
