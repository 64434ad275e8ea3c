package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strings"
)

// SessionID is the raw form of an opaque session identifier.
type SessionID [16]byte

const tokenSecretSize = 32

// NewSessionID returns a cryptographically random session identifier.
func NewSessionID() (SessionID, error) {
	var sid SessionID
	_, err := rand.Read(sid[:])
	return sid, err
}

func (s SessionID) Bytes() []byte {
	return s[:]
}

func (s SessionID) String() string {
	// base64url, no padding, compact
	return base64.RawURLEncoding.EncodeToString(s[:])
}

// ParseSessionID decodes the cookie form of a session identifier. Malformed
// input is rejected so arbitrary cookie values never reach the store as keys.
func ParseSessionID(sessionID string) (SessionID, error) {
	var sid SessionID

	raw, err := base64.RawURLEncoding.DecodeString(sessionID)
	if err != nil {
		return sid, err
	}
	if len(raw) != len(sid) {
		return sid, errors.New("invalid session id size")
	}

	copy(sid[:], raw)
	return sid, nil
}

// NewTokenSecret returns the random value half of a remember-me token.
func NewTokenSecret() ([tokenSecretSize]byte, error) {
	var secret [tokenSecretSize]byte
	_, err := rand.Read(secret[:])
	return secret, err
}

// HashTokenSecret reduces a token secret to the digest that is persisted.
// Only the digest is stored; the plaintext value lives in the client cookie.
func HashTokenSecret(secret [tokenSecretSize]byte) [32]byte {
	return sha256.Sum256(secret[:])
}

// EncodeTokenValue renders a remember-me token in its series:secret cookie
// form.
func EncodeTokenValue(series string, secret [tokenSecretSize]byte) string {
	return series + ":" + base64.RawURLEncoding.EncodeToString(secret[:])
}

// DecodeTokenValue parses the cookie form of a remember-me token. Malformed
// values are rejected before any store lookup happens.
func DecodeTokenValue(value string) (string, [tokenSecretSize]byte, error) {
	var secret [tokenSecretSize]byte

	series, encoded, ok := strings.Cut(value, ":")
	if !ok || series == "" {
		return "", secret, errors.New("invalid token value format")
	}

	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return "", secret, err
	}
	if len(raw) != tokenSecretSize {
		return "", secret, errors.New("invalid token value size")
	}

	copy(secret[:], raw)
	return series, secret, nil
}
