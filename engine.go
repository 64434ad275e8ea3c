package webgate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/webgatekit/webgate/authz"
	"github.com/webgatekit/webgate/internal"
	"github.com/webgatekit/webgate/internal/audit"
	"github.com/webgatekit/webgate/internal/rate"
	"github.com/webgatekit/webgate/password"
	"github.com/webgatekit/webgate/rememberme"
	"github.com/webgatekit/webgate/session"
)

// Engine is the authentication and authorization pipeline. Build one with
// [Builder] and share it across goroutines; all methods are safe for
// concurrent use.
type Engine struct {
	config    Config
	evaluator *authz.Evaluator
	directory Directory
	hasher    *password.Hasher
	dummyHash string

	sessions     *session.Registry
	requestCache *session.RequestCache
	rememberMe   *rememberme.Service
	rateLimiter  *rate.Limiter

	audit   *audit.Dispatcher
	metrics *Metrics
}

// Config returns a copy of the engine's effective configuration.
func (e *Engine) Config() Config {
	return cloneConfig(e.config)
}

// Metrics returns the engine's metric set.
func (e *Engine) Metrics() *Metrics {
	if e == nil {
		return nil
	}
	return e.metrics
}

// MetricsSnapshot copies all counters and histograms at once.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	return e.metrics.Snapshot()
}

// AuditDropped reports how many audit events were dropped under
// backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

// Close flushes and stops the audit dispatcher.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.audit.Close()
}

// Authenticate performs one credential login. On success it registers a
// session under the configured fixation and concurrency policies and, when
// requested, issues a remember-me token.
//
// Unknown usernames and wrong passwords both return [ErrBadCredentials]
// after equivalent hashing work, so neither the error nor response timing
// reveals whether an account exists.
func (e *Engine) Authenticate(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	ip := ClientIP(ctx)

	if e.rateLimiter != nil {
		if err := e.rateLimiter.CheckLogin(ctx, req.Username, ip); err != nil {
			if errors.Is(err, rate.ErrRateLimited) {
				e.metrics.Inc(MetricLoginRateLimited)
				e.emitAudit(ctx, AuditLoginRateLimited, req.Username, "", false, ErrLoginRateLimited)
				return nil, ErrLoginRateLimited
			}
			return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
	}

	principal, err := e.directory.Lookup(ctx, req.Username)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if principal == nil {
		// Burn the same hashing cost as a real verification.
		_, _ = e.hasher.Verify(req.Password, e.dummyHash)
		return nil, e.failLogin(ctx, req.Username, ip)
	}

	ok, err := e.hasher.Verify(req.Password, principal.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("stored credential unreadable: %w", err)
	}
	if !ok {
		return nil, e.failLogin(ctx, req.Username, ip)
	}

	if e.rateLimiter != nil {
		if err := e.rateLimiter.ResetLogin(ctx, req.Username, ip); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
	}

	sessionID, err := e.loginSessionID(ctx, req.PresentedSessionID)
	if err != nil {
		return nil, err
	}

	evicted, err := e.sessions.Create(ctx, &session.Record{
		ID:       sessionID,
		Username: principal.Username,
	})
	if err != nil {
		if errors.Is(err, session.ErrLimitExceeded) {
			e.metrics.Inc(MetricSessionRejected)
			e.emitAudit(ctx, AuditSessionRejected, principal.Username, "", false, ErrSessionLimitExceeded)
			return nil, ErrSessionLimitExceeded
		}
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	for _, id := range evicted {
		e.metrics.Inc(MetricSessionEvicted)
		e.emitAudit(ctx, AuditSessionEvicted, principal.Username, id, true, nil)
	}

	result := &LoginResult{
		Auth: &Authentication{
			Username:  principal.Username,
			Roles:     principal.Roles,
			SessionID: sessionID,
		},
		EvictedSessionIDs: evicted,
	}

	if e.rememberMe != nil && (req.RememberMe || e.config.RememberMe.AlwaysRemember) {
		tok, err := e.rememberMe.Issue(ctx, principal.Username)
		if err != nil {
			// Roll the session back so a half-finished login leaves no
			// live credential behind.
			_ = e.sessions.Invalidate(ctx, sessionID)
			return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
		result.RememberMe = &RememberMeToken{
			Series:      tok.Series,
			CookieValue: tok.CookieValue(),
			ExpiresAt:   tok.ExpiresAt,
		}
		e.metrics.Inc(MetricRememberMeIssued)
		e.emitAudit(ctx, AuditRememberMeIssued, principal.Username, sessionID, true, nil)
	}

	e.metrics.Inc(MetricLoginSuccess)
	e.metrics.Inc(MetricSessionCreated)
	e.emitAudit(ctx, AuditLoginSuccess, principal.Username, sessionID, true, nil)

	return result, nil
}

func (e *Engine) failLogin(ctx context.Context, username, ip string) error {
	if e.rateLimiter != nil {
		if err := e.rateLimiter.IncrementLogin(ctx, username, ip); err != nil &&
			!errors.Is(err, rate.ErrRateLimited) {
			return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
	}
	e.metrics.Inc(MetricLoginFailure)
	e.emitAudit(ctx, AuditLoginFailure, username, "", false, ErrBadCredentials)
	return ErrBadCredentials
}

// loginSessionID applies the fixation policy: under rotate-on-login any
// session the client arrived with is destroyed and a fresh identifier is
// minted, so an attacker who planted a session ID before login never
// learns the authenticated one.
func (e *Engine) loginSessionID(ctx context.Context, presented string) (string, error) {
	if e.config.Session.Fixation == FixationNone && presented != "" {
		if _, err := internal.ParseSessionID(presented); err == nil {
			return presented, nil
		}
	}

	if presented != "" {
		if err := e.sessions.Invalidate(ctx, presented); err != nil {
			return "", fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
	}

	sid, err := internal.NewSessionID()
	if err != nil {
		return "", err
	}
	return sid.String(), nil
}

// Resolve turns the credentials a request arrived with into an identity.
// sessionID and rememberMeCookie may each be empty. A nil Resolution.Auth
// means the request proceeds anonymously.
//
// Soft token failures set Resolution.ClearRememberMe and return
// [ErrRememberMeInvalid] or [ErrTokenReplay] alongside the non-nil
// Resolution; callers clear the cookie and continue anonymously.
func (e *Engine) Resolve(ctx context.Context, sessionID, rememberMeCookie string) (*Resolution, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	start := time.Now()
	defer func() {
		e.metrics.Observe(MetricResolveLatency, time.Since(start))
	}()

	res := &Resolution{}

	if sessionID != "" {
		rec, err := e.sessions.Touch(ctx, sessionID)
		switch {
		case err == nil:
			auth, err := e.authFromRecord(ctx, rec)
			if err != nil {
				return nil, err
			}
			if auth != nil {
				res.Auth = auth
				return res, nil
			}
			// Principal vanished from the directory; the session is dead.
			if err := e.sessions.Invalidate(ctx, sessionID); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
			}
			res.SessionExpired = true
		case errors.Is(err, session.ErrNotFound), errors.Is(err, session.ErrExpired):
			e.metrics.Inc(MetricSessionExpired)
			res.SessionExpired = true
		default:
			return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
	}

	if rememberMeCookie == "" || e.rememberMe == nil {
		return res, nil
	}

	series, secret, err := internal.DecodeTokenValue(rememberMeCookie)
	if err != nil {
		e.metrics.Inc(MetricRememberMeInvalid)
		res.ClearRememberMe = true
		return res, ErrRememberMeInvalid
	}

	username, rotated, err := e.rememberMe.Validate(ctx, series, secret)
	switch {
	case err == nil:
	case errors.Is(err, rememberme.ErrReplay):
		e.metrics.Inc(MetricRememberMeReplay)
		e.emitAudit(ctx, AuditRememberMeReplay, "", "", false, ErrTokenReplay)
		res.ClearRememberMe = true
		return res, ErrTokenReplay
	case errors.Is(err, rememberme.ErrInvalid):
		e.metrics.Inc(MetricRememberMeInvalid)
		res.ClearRememberMe = true
		return res, ErrRememberMeInvalid
	default:
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	principal, err := e.directory.Lookup(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if principal == nil {
		if err := e.rememberMe.Revoke(ctx, series); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
		res.ClearRememberMe = true
		return res, ErrRememberMeInvalid
	}

	sid, err := internal.NewSessionID()
	if err != nil {
		return nil, err
	}
	if _, err := e.sessions.Create(ctx, &session.Record{
		ID:             sid.String(),
		Username:       principal.Username,
		RememberMeOnly: true,
	}); err != nil {
		if errors.Is(err, session.ErrLimitExceeded) {
			// At the concurrency cap a token login does not displace a
			// credential session; the caller keeps the rotated token and
			// proceeds anonymously.
			res.RotatedToken = &RememberMeToken{
				Series:      rotated.Series,
				CookieValue: rotated.CookieValue(),
				ExpiresAt:   rotated.ExpiresAt,
			}
			return res, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	e.metrics.Inc(MetricRememberMeAccepted)
	e.metrics.Inc(MetricSessionCreated)

	res.Auth = &Authentication{
		Username:       principal.Username,
		Roles:          principal.Roles,
		SessionID:      sid.String(),
		RememberMeOnly: true,
	}
	res.RotatedToken = &RememberMeToken{
		Series:      rotated.Series,
		CookieValue: rotated.CookieValue(),
		ExpiresAt:   rotated.ExpiresAt,
	}
	return res, nil
}

func (e *Engine) authFromRecord(ctx context.Context, rec *session.Record) (*Authentication, error) {
	principal, err := e.directory.Lookup(ctx, rec.Username)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if principal == nil {
		return nil, nil
	}
	return &Authentication{
		Username:       principal.Username,
		Roles:          principal.Roles,
		SessionID:      rec.ID,
		RememberMeOnly: rec.RememberMeOnly,
	}, nil
}

// Authorize evaluates the rule list for path. auth may be nil for
// anonymous requests.
func (e *Engine) Authorize(ctx context.Context, path string, auth *Authentication) authz.Decision {
	var subject *authz.Subject
	if auth != nil {
		subject = &authz.Subject{
			Roles:          auth.Roles,
			RememberMeOnly: auth.RememberMeOnly,
		}
	}

	decision := e.evaluator.Evaluate(path, subject)
	switch decision {
	case authz.Allow:
		e.metrics.Inc(MetricAccessAllowed)
	case authz.Deny:
		e.metrics.Inc(MetricAccessDenied)
		username := ""
		if auth != nil {
			username = auth.Username
		}
		e.emitAudit(ctx, AuditAccessDenied, username, "", false, ErrAccessDenied)
	case authz.RequireAuth:
		e.metrics.Inc(MetricAuthChallenge)
	}
	return decision
}

// Logout invalidates the session and revokes the principal's remember-me
// series. Both arguments may be empty; logging out an already dead session
// is not an error.
func (e *Engine) Logout(ctx context.Context, sessionID, rememberMeCookie string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	username := ""
	if sessionID != "" {
		rec, err := e.sessions.Get(ctx, sessionID)
		switch {
		case err == nil:
			username = rec.Username
		case errors.Is(err, session.ErrNotFound):
		default:
			return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}

		if err := e.sessions.Invalidate(ctx, sessionID); err != nil {
			return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
		e.metrics.Inc(MetricSessionInvalidated)
	}

	if e.rememberMe != nil {
		if username != "" {
			if err := e.rememberMe.RevokeAll(ctx, username); err != nil {
				return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
			}
		} else if rememberMeCookie != "" {
			// Session already gone; fall back to the series in the cookie.
			if series, _, err := internal.DecodeTokenValue(rememberMeCookie); err == nil {
				if err := e.rememberMe.Revoke(ctx, series); err != nil {
					return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
				}
			}
		}
	}

	e.metrics.Inc(MetricLogout)
	e.emitAudit(ctx, AuditLogout, username, sessionID, true, nil)

	return nil
}

// SaveRequest remembers targetURL under an opaque token so a post-login
// redirect can resume the original navigation. Returns the token, or ""
// when the request cache is disabled.
func (e *Engine) SaveRequest(ctx context.Context, targetURL string) (string, error) {
	if e.requestCache == nil {
		return "", nil
	}

	token, err := internal.NewSessionID()
	if err != nil {
		return "", err
	}
	if err := e.requestCache.Save(ctx, token.String(), targetURL); err != nil {
		return "", fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return token.String(), nil
}

// ConsumeSavedRequest returns and deletes the URL saved under token.
func (e *Engine) ConsumeSavedRequest(ctx context.Context, token string) (string, bool, error) {
	if e.requestCache == nil || token == "" {
		return "", false, nil
	}

	target, ok, err := e.requestCache.Consume(ctx, token)
	if err != nil {
		return "", false, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return target, ok, nil
}

// ActiveSessions returns the live session IDs for username, oldest first.
func (e *Engine) ActiveSessions(ctx context.Context, username string) ([]string, error) {
	ids, err := e.sessions.ActiveSessionIDs(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return ids, nil
}

// InvalidateAllSessions force-logs-out every session of username.
func (e *Engine) InvalidateAllSessions(ctx context.Context, username string) error {
	removed, err := e.sessions.InvalidateAllFor(ctx, username)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	for range removed {
		e.metrics.Inc(MetricSessionInvalidated)
	}
	return nil
}

func (e *Engine) emitAudit(ctx context.Context, eventType, username, sessionID string, success bool, cause error) {
	if e.audit == nil {
		return
	}

	event := audit.Event{
		Timestamp: time.Now(),
		EventType: eventType,
		Username:  username,
		SessionID: sessionID,
		IP:        ClientIP(ctx),
		Success:   success,
	}
	if cause != nil {
		event.Error = cause.Error()
	}
	e.audit.Emit(ctx, event)
}
