package webgate

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/webgatekit/webgate/authz"
	"github.com/webgatekit/webgate/session"
)

// FixationPolicy controls what happens to the session identifier across a
// successful credential login.
type FixationPolicy uint8

const (
	// FixationRotateID invalidates any session the client arrived with and
	// mints a fresh identifier for the authenticated session.
	FixationRotateID FixationPolicy = iota
	// FixationNone keeps the presented identifier. Only for callers that
	// already rotate identifiers at another layer.
	FixationNone
)

// Config is the full engine configuration. Zero values fall back to the
// defaults applied by [New]; Validate rejects combinations the engine
// cannot honor.
type Config struct {
	Login  LoginConfig
	Logout LogoutConfig

	// AccessDeniedURL receives authenticated callers that fail a rule.
	AccessDeniedURL string
	// SessionExpiredURL receives callers whose session cookie points at a
	// dead session.
	SessionExpiredURL string

	Session      SessionConfig
	RememberMe   RememberMeConfig
	Password     PasswordConfig
	RateLimit    RateLimitConfig
	RequestCache RequestCacheConfig
	Cookies      CookieConfig
	Audit        AuditConfig
	Metrics      MetricsConfig
}

// LoginConfig describes the credential login surface.
type LoginConfig struct {
	ProcessingPath    string
	UsernameParameter string
	PasswordParameter string
	PagePath          string
	DefaultSuccessURL string
	FailureURL        string
}

// LogoutConfig describes the logout surface.
type LogoutConfig struct {
	Path       string
	SuccessURL string
}

// SessionConfig describes session cookie handling, lifetimes, and the
// concurrency limit.
type SessionConfig struct {
	CookieName       string
	RedisPrefix      string
	IdleTimeout      time.Duration
	AbsoluteLifetime time.Duration
	// MaxConcurrent caps live sessions per principal; <= 0 disables the cap.
	MaxConcurrent int
	Policy        session.ConcurrencyPolicy
	Fixation      FixationPolicy
}

// RememberMeConfig describes remember-me token issuance.
type RememberMeConfig struct {
	Enabled    bool
	Parameter  string
	CookieName string
	Validity   time.Duration
	// AlwaysRemember issues a token on every login regardless of the form
	// parameter.
	AlwaysRemember bool
}

// PasswordConfig carries the Argon2id cost parameters.
type PasswordConfig struct {
	Memory      uint32 // in KB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// RateLimitConfig throttles credential login attempts.
type RateLimitConfig struct {
	Enabled          bool
	EnableIPThrottle bool
	MaxAttempts      int
	Cooldown         time.Duration
}

// RequestCacheConfig controls saved-request redirects after login.
type RequestCacheConfig struct {
	Enabled    bool
	CookieName string
	TTL        time.Duration
}

// CookieConfig applies to every cookie the middleware sets.
type CookieConfig struct {
	Secure   bool
	SameSite http.SameSite
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls the lock-free metrics set.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

func defaultConfig() Config {
	return Config{
		Login: LoginConfig{
			ProcessingPath:    "/login",
			UsernameParameter: "username",
			PasswordParameter: "password",
			PagePath:          "/login",
			DefaultSuccessURL: "/",
			FailureURL:        "/login?error",
		},
		Logout: LogoutConfig{
			Path:       "/logout",
			SuccessURL: "/login",
		},
		AccessDeniedURL:   "/denied",
		SessionExpiredURL: "/login?expired",
		Session: SessionConfig{
			CookieName:       "WGSESSION",
			RedisPrefix:      "wg",
			IdleTimeout:      30 * time.Minute,
			AbsoluteLifetime: 12 * time.Hour,
			MaxConcurrent:    0,
			Policy:           session.EvictOldest,
			Fixation:         FixationRotateID,
		},
		RememberMe: RememberMeConfig{
			Enabled:    false,
			Parameter:  "remember-me",
			CookieName: "remember-me",
			Validity:   14 * 24 * time.Hour,
		},
		Password: PasswordConfig{
			Memory:      64 * 1024,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
		},
		RateLimit: RateLimitConfig{
			Enabled:          true,
			EnableIPThrottle: true,
			MaxAttempts:      10,
			Cooldown:         5 * time.Minute,
		},
		RequestCache: RequestCacheConfig{
			Enabled:    true,
			CookieName: "WGSAVED",
			TTL:        5 * time.Minute,
		},
		Cookies: CookieConfig{
			Secure:   true,
			SameSite: http.SameSiteLaxMode,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// Validate checks the configuration for values the engine cannot run with.
func (c *Config) Validate() error {
	if !strings.HasPrefix(c.Login.ProcessingPath, "/") {
		return errors.New("Login.ProcessingPath must start with /")
	}
	if !strings.HasPrefix(c.Logout.Path, "/") {
		return errors.New("Logout.Path must start with /")
	}
	if c.Login.UsernameParameter == "" || c.Login.PasswordParameter == "" {
		return errors.New("login form parameter names required")
	}
	if c.AccessDeniedURL == "" {
		return errors.New("AccessDeniedURL required")
	}
	if c.Session.CookieName == "" {
		return errors.New("Session.CookieName required")
	}
	if c.Session.RedisPrefix == "" {
		return errors.New("Session.RedisPrefix required")
	}
	if c.Session.IdleTimeout <= 0 {
		return errors.New("Session.IdleTimeout must be positive")
	}
	if c.Session.AbsoluteLifetime > 0 && c.Session.AbsoluteLifetime < c.Session.IdleTimeout {
		return errors.New("Session.AbsoluteLifetime must be >= IdleTimeout")
	}
	if c.RememberMe.Enabled {
		if c.RememberMe.CookieName == "" {
			return errors.New("RememberMe.CookieName required")
		}
		if c.RememberMe.Validity <= 0 {
			return errors.New("RememberMe.Validity must be positive")
		}
	}
	if c.RateLimit.Enabled {
		if c.RateLimit.MaxAttempts <= 0 {
			return errors.New("RateLimit.MaxAttempts must be positive")
		}
		if c.RateLimit.Cooldown <= 0 {
			return errors.New("RateLimit.Cooldown must be positive")
		}
	}
	if c.RequestCache.Enabled {
		if c.RequestCache.CookieName == "" {
			return errors.New("RequestCache.CookieName required")
		}
		if c.RequestCache.TTL <= 0 {
			return errors.New("RequestCache.TTL must be positive")
		}
	}
	return nil
}

func cloneConfig(cfg Config) Config {
	// All fields are value types; a shallow copy is a deep copy.
	return cfg
}

// PresetBaseline returns the configuration of the canonical demo
// deployment: login form at /loginPage posting to /loginProcess with
// userId/passWd fields, one concurrent session per principal with new
// logins rejected, a one hour remember-me window, and logout landing on
// /login.
func PresetBaseline() Config {
	cfg := defaultConfig()
	cfg.Login = LoginConfig{
		ProcessingPath:    "/loginProcess",
		UsernameParameter: "userId",
		PasswordParameter: "passWd",
		PagePath:          "/loginPage",
		DefaultSuccessURL: "/",
		FailureURL:        "/loginPage?error",
	}
	cfg.Logout = LogoutConfig{
		Path:       "/logout",
		SuccessURL: "/login",
	}
	cfg.AccessDeniedURL = "/denied"
	cfg.SessionExpiredURL = "/loginPage?expired"
	cfg.Session.MaxConcurrent = 1
	cfg.Session.Policy = session.RejectNew
	cfg.RememberMe.Enabled = true
	cfg.RememberMe.Validity = time.Hour
	return cfg
}

// BaselineRules returns the rule list of the canonical demo deployment.
// Order matters: /admin/pay must precede /admin/** or the ADMIN-only rule
// would be shadowed.
func BaselineRules() []authz.Rule {
	return []authz.Rule{
		{Pattern: "/loginPage", Access: authz.PermitAll()},
		{Pattern: "/user", Access: authz.RequireRole("USER")},
		{Pattern: "/admin/pay", Access: authz.RequireRole("ADMIN")},
		{Pattern: "/admin/**", Access: authz.RequireAnyRole("ADMIN", "SYS")},
		{Pattern: "**", Access: authz.RequireAuthenticated()},
	}
}
