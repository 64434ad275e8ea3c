package rate

import "errors"

// ErrRateLimited reports that the caller exhausted its attempt budget.
var ErrRateLimited = errors.New("rate limited")

// ErrRedisUnavailable wraps transport-level Redis failures.
var ErrRedisUnavailable = errors.New("redis unavailable")
