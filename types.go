package webgate

import (
	"time"

	"github.com/webgatekit/webgate/internal/audit"
)

// Principal is a stored account: an identifier, a password hash, and the
// roles granted to it. Role names carry no inherent ordering or hierarchy.
type Principal struct {
	Username     string
	PasswordHash string
	Roles        []string
}

// Authentication is the resolved identity attached to a request after the
// session or remember-me lookup succeeds.
type Authentication struct {
	Username  string
	Roles     []string
	SessionID string
	// RememberMeOnly is set when the identity came from a remember-me token
	// rather than a credential login in this browser session.
	RememberMeOnly bool
}

// LoginRequest carries one credential login attempt.
type LoginRequest struct {
	Username string
	Password string
	// PresentedSessionID is the session cookie the client arrived with, if
	// any. Under the rotate-on-login fixation policy it is invalidated and
	// never becomes the authenticated session.
	PresentedSessionID string
	// RememberMe requests a remember-me token alongside the session.
	RememberMe bool
}

// LoginResult is the outcome of a successful [Engine.Authenticate].
type LoginResult struct {
	Auth *Authentication
	// RememberMe is non-nil when a token was issued for this login.
	RememberMe *RememberMeToken
	// EvictedSessionIDs lists sessions removed to enforce the concurrency
	// limit under the evict-oldest policy.
	EvictedSessionIDs []string
}

// RememberMeToken is the client-facing half of a remember-me grant.
type RememberMeToken struct {
	Series      string
	CookieValue string
	ExpiresAt   time.Time
}

// Resolution is the outcome of [Engine.Resolve] for one request.
type Resolution struct {
	// Auth is nil when the request is anonymous.
	Auth *Authentication
	// SessionExpired is set when a session cookie was presented but the
	// session no longer exists.
	SessionExpired bool
	// RotatedToken carries the replacement remember-me cookie value after
	// a successful token login.
	RotatedToken *RememberMeToken
	// ClearRememberMe instructs the caller to delete the remember-me
	// cookie: the token was invalid, expired, or replayed.
	ClearRememberMe bool
}

// AuditEvent re-exports the audit event type consumed by [AuditSink].
type AuditEvent = audit.Event

// AuditSink receives authentication and authorization audit events.
type AuditSink = audit.Sink

// Audit event types emitted by the engine.
const (
	AuditLoginSuccess     = "login_success"
	AuditLoginFailure     = "login_failure"
	AuditLoginRateLimited = "login_rate_limited"
	AuditSessionEvicted   = "session_evicted"
	AuditSessionRejected  = "session_rejected"
	AuditRememberMeIssued = "remember_me_issued"
	AuditRememberMeReplay = "remember_me_replay"
	AuditAccessDenied     = "access_denied"
	AuditLogout           = "logout"
)
