package webgate

import "errors"

var (
	// ErrBadCredentials is returned for both an unknown username and a wrong
	// password. The two cases are deliberately indistinguishable to callers.
	ErrBadCredentials = errors.New("bad credentials")
	// ErrLoginRateLimited is returned when login attempts for a username or
	// client IP are in cooldown.
	ErrLoginRateLimited = errors.New("login rate limited")
	// ErrSessionExpired is returned when a presented session ID refers to a
	// session that timed out or was invalidated.
	ErrSessionExpired = errors.New("session expired")
	// ErrSessionLimitExceeded is returned when a login is refused under the
	// reject-new concurrency policy.
	ErrSessionLimitExceeded = errors.New("session limit exceeded")
	// ErrAccessDenied is returned when an authenticated caller fails the
	// authorization rules for a path.
	ErrAccessDenied = errors.New("access denied")
	// ErrRememberMeInvalid is returned when a remember-me token is unknown,
	// malformed, or expired.
	ErrRememberMeInvalid = errors.New("remember-me token invalid")
	// ErrTokenReplay is returned when a remember-me secret is presented
	// twice; the series has been revoked by the time the caller sees this.
	ErrTokenReplay = errors.New("remember-me token replay detected")
	// ErrBackendUnavailable is returned when the Redis backend cannot be
	// reached.
	ErrBackendUnavailable = errors.New("backend unavailable")
	// ErrEngineNotReady is returned when an Engine method is called before
	// Build.
	ErrEngineNotReady = errors.New("engine not initialized")
)
