package rememberme

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/webgatekit/webgate/internal"
)

// ErrInvalid is returned when a presented token's series is unknown or
// expired. Callers must not distinguish the two cases to the client.
var ErrInvalid = errors.New("remember-me token invalid")

// ErrReplay is returned when the series exists but the presented secret
// does not match the stored one. The whole series has been revoked by the
// time this error is returned.
var ErrReplay = errors.New("remember-me token replayed")

// ErrRedisUnavailable wraps transport-level Redis failures.
var ErrRedisUnavailable = errors.New("redis unavailable")

const (
	validateStatusNotFound int64 = 0
	validateStatusMismatch int64 = 2
	validateStatusRotated  int64 = 3
)

// validateTokenScript is the compare-and-rotate core of the rotating token
// scheme. A secret mismatch on a live series is treated as evidence the
// token was stolen and replayed, so the series is destroyed rather than
// merely refused; the legitimate holder is forced back through a
// credential login.
//
//	KEYS[1] = series hash
//	ARGV    = provided digest, next digest, validity ms,
//	          principal index prefix, series ID
const validateTokenScript = `
local series_key = KEYS[1]
local provided = ARGV[1]
local next_digest = ARGV[2]
local validity_ms = tonumber(ARGV[3])
local index_prefix = ARGV[4]
local series_id = ARGV[5]

local fields = redis.call("HMGET", series_key, "user", "digest")
local user = fields[1]
local digest = fields[2]
if not user or not digest then
  return {0}
end

if digest ~= provided then
  redis.call("DEL", series_key)
  redis.call("SREM", index_prefix .. user, series_id)
  return {2, user}
end

redis.call("HSET", series_key, "digest", next_digest)
redis.call("PEXPIRE", series_key, validity_ms)
return {3, user}
`

var validateTokenLua = redis.NewScript(validateTokenScript)

// Token is a remember-me credential as handed to the client: an opaque
// series identifier plus a one-use secret. Only a digest of the secret is
// stored server side.
type Token struct {
	Series    string
	Secret    [32]byte
	ExpiresAt time.Time
}

// CookieValue renders the token in the series:secret wire form carried by
// the remember-me cookie.
func (t *Token) CookieValue() string {
	return internal.EncodeTokenValue(t.Series, t.Secret)
}

// Service owns remember-me token series: issuance, validate-and-rotate,
// replay revocation, and per-principal revocation.
type Service struct {
	redis    redis.UniversalClient
	prefix   string
	validity time.Duration
}

// NewService creates a [Service]. validity bounds how long an untouched
// series survives; each successful validation renews it.
func NewService(redis redis.UniversalClient, prefix string, validity time.Duration) *Service {
	return &Service{redis: redis, prefix: prefix, validity: validity}
}

func (s *Service) seriesKey(series string) string {
	return s.prefix + ":t:" + series
}

func (s *Service) indexKey(username string) string {
	return s.prefix + ":tu:" + username
}

// Issue creates a fresh series for username and returns the token to hand
// to the client.
func (s *Service) Issue(ctx context.Context, username string) (*Token, error) {
	secret, err := internal.NewTokenSecret()
	if err != nil {
		return nil, err
	}

	series := uuid.NewString()
	digest := internal.HashTokenSecret(secret)

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.seriesKey(series), "user", username, "digest", digest[:])
		pipe.PExpire(ctx, s.seriesKey(series), s.validity)
		pipe.SAdd(ctx, s.indexKey(username), series)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return &Token{
		Series:    series,
		Secret:    secret,
		ExpiresAt: time.Now().Add(s.validity),
	}, nil
}

// Validate checks a presented token and, on success, rotates its secret in
// the same atomic script. It returns the owning username and the rotated
// replacement token. A mismatched secret revokes the series and returns
// [ErrReplay]; an unknown or expired series returns [ErrInvalid].
func (s *Service) Validate(ctx context.Context, series string, secret [32]byte) (string, *Token, error) {
	nextSecret, err := internal.NewTokenSecret()
	if err != nil {
		return "", nil, err
	}

	provided := internal.HashTokenSecret(secret)
	next := internal.HashTokenSecret(nextSecret)

	result, err := validateTokenLua.Run(
		ctx,
		s.redis,
		[]string{s.seriesKey(series)},
		provided[:],
		next[:],
		s.validity.Milliseconds(),
		s.prefix+":tu:",
		series,
	).Result()
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	parts, ok := result.([]interface{})
	if !ok || len(parts) == 0 {
		return "", nil, fmt.Errorf("%w: invalid validate script response", ErrRedisUnavailable)
	}

	code, ok := parts[0].(int64)
	if !ok {
		return "", nil, fmt.Errorf("%w: invalid validate script status", ErrRedisUnavailable)
	}

	switch code {
	case validateStatusNotFound:
		return "", nil, ErrInvalid
	case validateStatusMismatch:
		return "", nil, ErrReplay
	case validateStatusRotated:
		if len(parts) < 2 {
			return "", nil, fmt.Errorf("%w: missing validate script username", ErrRedisUnavailable)
		}
		var username string
		switch v := parts[1].(type) {
		case string:
			username = v
		case []byte:
			username = string(v)
		default:
			return "", nil, fmt.Errorf("%w: invalid validate script username", ErrRedisUnavailable)
		}

		return username, &Token{
			Series:    series,
			Secret:    nextSecret,
			ExpiresAt: time.Now().Add(s.validity),
		}, nil
	default:
		return "", nil, fmt.Errorf("%w: unknown validate script status", ErrRedisUnavailable)
	}
}

// Revoke destroys a single series. Revoking an absent series is not an
// error.
func (s *Service) Revoke(ctx context.Context, series string) error {
	username, err := s.redis.HGet(ctx, s.seriesKey(series), "user").Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.seriesKey(series))
		pipe.SRem(ctx, s.indexKey(username), series)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// RevokeAll destroys every series belonging to username.
func (s *Service) RevokeAll(ctx context.Context, username string) error {
	indexKey := s.indexKey(username)

	series, err := s.redis.SMembers(ctx, indexKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, id := range series {
			pipe.Del(ctx, s.seriesKey(id))
		}
		pipe.Del(ctx, indexKey)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}
