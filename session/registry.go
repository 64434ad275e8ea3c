package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned when no live session exists under the given ID.
var ErrNotFound = errors.New("session not found")

// ErrExpired is returned when a session exists but has outlived its
// absolute lifetime.
var ErrExpired = errors.New("session expired")

// ErrLimitExceeded is returned by Create under [RejectNew] when the
// principal already holds the maximum number of concurrent sessions.
var ErrLimitExceeded = errors.New("session limit exceeded")

// ErrCorrupt is returned when a stored session blob fails to decode.
var ErrCorrupt = errors.New("session record corrupt")

// ErrRedisUnavailable wraps transport-level Redis failures.
var ErrRedisUnavailable = errors.New("redis unavailable")

// ConcurrencyPolicy decides what happens when a principal logging in already
// holds the maximum number of concurrent sessions.
type ConcurrencyPolicy uint8

const (
	// EvictOldest invalidates the principal's oldest session to make room.
	EvictOldest ConcurrencyPolicy = iota
	// RejectNew refuses the new login and keeps existing sessions intact.
	RejectNew
)

const (
	createStatusRejected int64 = 0
	createStatusCreated  int64 = 1
)

// createSessionScript atomically enforces the per-principal concurrency
// limit and stores the new record. The principal index is a ZSET scored by
// creation time in milliseconds; members whose session key has already
// expired are pruned before counting so stale index entries never consume
// a slot.
//
//	KEYS[1] = principal index (ZSET)
//	ARGV    = sessionID, blob, idleTTL ms, now ms, max sessions,
//	          1 to evict oldest / 0 to reject, session key prefix
const createSessionScript = `
local index_key = KEYS[1]
local session_id = ARGV[1]
local blob = ARGV[2]
local idle_ms = tonumber(ARGV[3])
local now_ms = tonumber(ARGV[4])
local max_sessions = tonumber(ARGV[5])
local evict_oldest = tonumber(ARGV[6])
local key_prefix = ARGV[7]

local members = redis.call("ZRANGE", index_key, 0, -1)
for _, member in ipairs(members) do
  if redis.call("EXISTS", key_prefix .. member) == 0 then
    redis.call("ZREM", index_key, member)
  end
end

local evicted = {}
if max_sessions > 0 then
  local active = redis.call("ZCARD", index_key)
  if active >= max_sessions then
    if evict_oldest == 0 then
      return {0}
    end
    local excess = active - max_sessions + 1
    local oldest = redis.call("ZRANGE", index_key, 0, excess - 1)
    for _, member in ipairs(oldest) do
      redis.call("DEL", key_prefix .. member)
      redis.call("ZREM", index_key, member)
      table.insert(evicted, member)
    end
  end
end

redis.call("SET", key_prefix .. session_id, blob, "PX", idle_ms)
redis.call("ZADD", index_key, now_ms, session_id)

local result = {1}
for _, member in ipairs(evicted) do
  table.insert(result, member)
end
return result
`

var createSessionLua = redis.NewScript(createSessionScript)

// invalidateSessionScript removes the session key and its index entry in
// one round trip. Returns whether the key existed.
const invalidateSessionScript = `
local existed = redis.call("DEL", KEYS[1])
redis.call("ZREM", KEYS[2], ARGV[1])
return existed
`

var invalidateSessionLua = redis.NewScript(invalidateSessionScript)

// Registry is the Redis-backed session registry. It owns session records,
// the per-principal concurrency limit, and idle plus absolute expiry.
type Registry struct {
	redis            redis.UniversalClient
	prefix           string
	idleTimeout      time.Duration
	absoluteLifetime time.Duration
	maxConcurrent    int
	policy           ConcurrencyPolicy
}

// NewRegistry creates a [Registry] over the given Redis client. prefix
// namespaces all keys; maxConcurrent <= 0 disables the concurrency limit;
// absoluteLifetime <= 0 disables the absolute cap and sessions live on idle
// timeout alone.
func NewRegistry(
	redis redis.UniversalClient,
	prefix string,
	idleTimeout time.Duration,
	absoluteLifetime time.Duration,
	maxConcurrent int,
	policy ConcurrencyPolicy,
) *Registry {
	return &Registry{
		redis:            redis,
		prefix:           prefix,
		idleTimeout:      idleTimeout,
		absoluteLifetime: absoluteLifetime,
		maxConcurrent:    maxConcurrent,
		policy:           policy,
	}
}

func (r *Registry) key(sessionID string) string {
	return r.prefix + ":s:" + sessionID
}

func (r *Registry) indexKey(username string) string {
	return r.prefix + ":u:" + username
}

// Create registers a new session for username under the configured
// concurrency policy. It returns the IDs of any sessions evicted to make
// room, or [ErrLimitExceeded] under [RejectNew] when the principal is at
// the limit.
func (r *Registry) Create(ctx context.Context, rec *Record) (evicted []string, err error) {
	now := time.Now().UnixMilli()
	rec.CreatedAt = now
	rec.LastAccessAt = now

	blob, err := Encode(rec)
	if err != nil {
		return nil, err
	}

	evictFlag := 0
	if r.policy == EvictOldest {
		evictFlag = 1
	}

	result, err := createSessionLua.Run(
		ctx,
		r.redis,
		[]string{r.indexKey(rec.Username)},
		rec.ID,
		blob,
		r.idleTimeout.Milliseconds(),
		now,
		r.maxConcurrent,
		evictFlag,
		r.prefix+":s:",
	).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	parts, ok := result.([]interface{})
	if !ok || len(parts) == 0 {
		return nil, fmt.Errorf("%w: invalid create script response", ErrRedisUnavailable)
	}

	code, ok := parts[0].(int64)
	if !ok {
		return nil, fmt.Errorf("%w: invalid create script status", ErrRedisUnavailable)
	}

	switch code {
	case createStatusRejected:
		return nil, ErrLimitExceeded
	case createStatusCreated:
		for _, part := range parts[1:] {
			switch v := part.(type) {
			case string:
				evicted = append(evicted, v)
			case []byte:
				evicted = append(evicted, string(v))
			}
		}
		return evicted, nil
	default:
		return nil, fmt.Errorf("%w: unknown create script status", ErrRedisUnavailable)
	}
}

// Touch fetches the session, enforces the absolute lifetime, records the
// access, and renews the idle timeout. Expired sessions are removed and
// reported as [ErrExpired]; unknown IDs as [ErrNotFound].
func (r *Registry) Touch(ctx context.Context, sessionID string) (*Record, error) {
	rec, err := r.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	nextTTL := r.idleTimeout
	if r.absoluteLifetime > 0 {
		remaining := time.UnixMilli(rec.CreatedAt).Add(r.absoluteLifetime).Sub(now)
		if remaining <= 0 {
			if err := r.Invalidate(ctx, sessionID); err != nil {
				return nil, err
			}
			return nil, ErrExpired
		}
		if remaining < nextTTL {
			nextTTL = remaining
		}
	}

	rec.LastAccessAt = now.UnixMilli()
	blob, err := Encode(rec)
	if err != nil {
		return nil, err
	}
	// SET XX: the write only lands if the key still exists. A plain SET here
	// would re-create a session invalidated between the read and the write,
	// and the resurrected key would have no index entry for the concurrency
	// limit to count.
	ok, err := r.redis.SetXX(ctx, r.key(sessionID), blob, nextTTL).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if !ok {
		return nil, ErrNotFound
	}

	return rec, nil
}

// Get fetches a session without renewing its idle timeout.
func (r *Registry) Get(ctx context.Context, sessionID string) (*Record, error) {
	data, err := r.redis.Get(ctx, r.key(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	rec, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	rec.ID = sessionID

	return rec, nil
}

// Invalidate removes a session and its index entry. Invalidating an already
// absent session is not an error.
func (r *Registry) Invalidate(ctx context.Context, sessionID string) error {
	rec, err := r.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}

	_, err = invalidateSessionLua.Run(
		ctx,
		r.redis,
		[]string{r.key(sessionID), r.indexKey(rec.Username)},
		sessionID,
	).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return nil
}

// InvalidateAllFor removes every live session belonging to username.
// It returns the IDs that were actually removed.
func (r *Registry) InvalidateAllFor(ctx context.Context, username string) ([]string, error) {
	indexKey := r.indexKey(username)

	ids, err := r.redis.ZRange(ctx, indexKey, 0, -1).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	var removed []string
	_, err = r.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, id := range ids {
			pipe.Del(ctx, r.key(id))
		}
		pipe.Del(ctx, indexKey)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	removed = append(removed, ids...)

	return removed, nil
}

// ActiveSessionIDs returns the live session IDs for username, oldest first.
// Index entries whose session key has already expired are filtered out.
func (r *Registry) ActiveSessionIDs(ctx context.Context, username string) ([]string, error) {
	ids, err := r.redis.ZRange(ctx, r.indexKey(username), 0, -1).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(ids) == 0 {
		return []string{}, nil
	}

	pipe := r.redis.Pipeline()
	existsCmds := make([]*redis.IntCmd, len(ids))
	for i, id := range ids {
		existsCmds[i] = pipe.Exists(ctx, r.key(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	live := make([]string, 0, len(ids))
	for i, cmd := range existsCmds {
		v, cmdErr := cmd.Result()
		if cmdErr != nil {
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, cmdErr)
		}
		if v == 1 {
			live = append(live, ids[i])
		}
	}

	return live, nil
}

// Ping returns a point-in-time Redis availability check and latency.
func (r *Registry) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := r.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}
