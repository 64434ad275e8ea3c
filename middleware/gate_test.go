package middleware

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	webgate "github.com/webgatekit/webgate"
	"github.com/webgatekit/webgate/password"
	"github.com/webgatekit/webgate/session"
)

func newTestGate(t *testing.T, mutate func(*webgate.Config)) *Gate {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := webgate.PresetBaseline()
	cfg.Password = webgate.PasswordConfig{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   16,
	}
	cfg.Cookies.Secure = false
	if mutate != nil {
		mutate(&cfg)
	}

	hasher, err := password.NewHasher(password.Params{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		t.Fatalf("NewHasher: %v", err)
	}
	hash, err := hasher.Hash("test")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}

	engine, err := webgate.New().
		WithConfig(cfg).
		WithRedis(client).
		WithRules(webgate.BaselineRules()).
		WithDirectory(webgate.NewInMemoryDirectory([]webgate.Principal{
			{Username: "user", PasswordHash: hash, Roles: []string{"USER"}},
			{Username: "sys", PasswordHash: hash, Roles: []string{"USER", "SYS"}},
			{Username: "admin", PasswordHash: hash, Roles: []string{"USER", "SYS", "ADMIN"}},
		})).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(engine.Close)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := webgate.AuthenticationFrom(r.Context())
		if auth == nil {
			fmt.Fprintf(w, "anonymous %s", r.URL.Path)
			return
		}
		fmt.Fprintf(w, "hello %s %s", auth.Username, r.URL.Path)
	})

	return NewGate(engine, next)
}

func doLogin(t *testing.T, gate *Gate, username, password string, rememberMe bool) []*http.Cookie {
	t.Helper()

	form := url.Values{"userId": {username}, "passWd": {password}}
	if rememberMe {
		form.Set("remember-me", "on")
	}

	req := httptest.NewRequest(http.MethodPost, "/loginProcess", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	gate.ServeHTTP(rec, req)

	if rec.Code != http.StatusFound {
		t.Fatalf("login status = %d", rec.Code)
	}
	return rec.Result().Cookies()
}

func cookieNamed(cookies []*http.Cookie, name string) *http.Cookie {
	for _, c := range cookies {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func get(gate *Gate, path string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for _, c := range cookies {
		if c != nil {
			req.AddCookie(c)
		}
	}
	rec := httptest.NewRecorder()
	gate.ServeHTTP(rec, req)
	return rec
}

func TestAnonymousRedirectedToLogin(t *testing.T) {
	gate := newTestGate(t, nil)

	rec := get(gate, "/user")
	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/loginPage" {
		t.Fatalf("Location = %q", loc)
	}
	if cookieNamed(rec.Result().Cookies(), "WGSAVED") == nil {
		t.Error("no saved-request cookie set")
	}
}

func TestPublicPathServedAnonymously(t *testing.T) {
	gate := newTestGate(t, nil)

	rec := get(gate, "/loginPage")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "anonymous /loginPage") {
		t.Fatalf("body = %q", rec.Body.String())
	}
}

func TestLoginSetsSessionCookieAndRedirects(t *testing.T) {
	gate := newTestGate(t, nil)

	cookies := doLogin(t, gate, "user", "test", false)
	sess := cookieNamed(cookies, "WGSESSION")
	if sess == nil || sess.Value == "" {
		t.Fatal("no session cookie")
	}
	if cookieNamed(cookies, "remember-me") != nil {
		t.Error("remember-me cookie set without being requested")
	}

	rec := get(gate, "/user", sess)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "hello user") {
		t.Fatalf("authenticated request = %d %q", rec.Code, rec.Body.String())
	}
}

func TestLoginFailureRedirectsToFailureURL(t *testing.T) {
	gate := newTestGate(t, nil)

	form := url.Values{"userId": {"user"}, "passWd": {"wrong"}}
	req := httptest.NewRequest(http.MethodPost, "/loginProcess", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	gate.ServeHTTP(rec, req)

	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/loginPage?error" {
		t.Fatalf("Location = %q", loc)
	}
}

func TestRoleDecisions(t *testing.T) {
	gate := newTestGate(t, nil)

	sess := cookieNamed(doLogin(t, gate, "sys", "test", false), "WGSESSION")

	// Exact ADMIN-only rule wins over the wildcard that would admit SYS.
	rec := get(gate, "/admin/pay", sess)
	if rec.Code != http.StatusFound || rec.Header().Get("Location") != "/denied" {
		t.Fatalf("/admin/pay = %d %q", rec.Code, rec.Header().Get("Location"))
	}

	rec = get(gate, "/admin/reports", sess)
	if rec.Code != http.StatusOK {
		t.Fatalf("/admin/reports = %d", rec.Code)
	}

	rec = get(gate, "/user", sess)
	if rec.Code != http.StatusOK {
		t.Fatalf("/user = %d", rec.Code)
	}
}

func TestSavedRequestResumedAfterLogin(t *testing.T) {
	gate := newTestGate(t, nil)

	rec := get(gate, "/admin/reports")
	saved := cookieNamed(rec.Result().Cookies(), "WGSAVED")
	if saved == nil {
		t.Fatal("no saved-request cookie")
	}

	form := url.Values{"userId": {"admin"}, "passWd": {"test"}}
	req := httptest.NewRequest(http.MethodPost, "/loginProcess", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(saved)
	loginRec := httptest.NewRecorder()
	gate.ServeHTTP(loginRec, req)

	if loc := loginRec.Header().Get("Location"); loc != "/admin/reports" {
		t.Fatalf("post-login Location = %q", loc)
	}
}

func TestSecondLoginRejectedUnderBaselinePolicy(t *testing.T) {
	gate := newTestGate(t, nil)

	doLogin(t, gate, "user", "test", false)

	form := url.Values{"userId": {"user"}, "passWd": {"test"}}
	req := httptest.NewRequest(http.MethodPost, "/loginProcess", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	gate.ServeHTTP(rec, req)

	if loc := rec.Header().Get("Location"); loc != "/loginPage?error" {
		t.Fatalf("second login Location = %q", loc)
	}
}

func TestLogoutClearsCookiesAndSession(t *testing.T) {
	gate := newTestGate(t, nil)

	sess := cookieNamed(doLogin(t, gate, "user", "test", true), "WGSESSION")

	rec := get(gate, "/logout", sess)
	if rec.Code != http.StatusFound || rec.Header().Get("Location") != "/login" {
		t.Fatalf("logout = %d %q", rec.Code, rec.Header().Get("Location"))
	}

	cleared := cookieNamed(rec.Result().Cookies(), "WGSESSION")
	if cleared == nil || cleared.MaxAge != -1 {
		t.Error("session cookie not cleared")
	}
	clearedRM := cookieNamed(rec.Result().Cookies(), "remember-me")
	if clearedRM == nil || clearedRM.MaxAge != -1 {
		t.Error("remember-me cookie not cleared")
	}

	// The old session cookie is now a dead session.
	rec = get(gate, "/user", sess)
	if rec.Code != http.StatusFound || rec.Header().Get("Location") != "/loginPage?expired" {
		t.Fatalf("post-logout /user = %d %q", rec.Code, rec.Header().Get("Location"))
	}
}

func TestRememberMeLoginAcrossSessionExpiry(t *testing.T) {
	gate := newTestGate(t, func(cfg *webgate.Config) {
		// Uncapped so the token-minted session is not refused next to the
		// credential one.
		cfg.Session.MaxConcurrent = 0
	})

	rm := cookieNamed(doLogin(t, gate, "user", "test", true), "remember-me")
	if rm == nil {
		t.Fatal("no remember-me cookie issued")
	}

	// No session cookie at all: token alone authenticates and rotates.
	rec := get(gate, "/user", rm)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "hello user") {
		t.Fatalf("token request = %d %q", rec.Code, rec.Body.String())
	}

	rotated := cookieNamed(rec.Result().Cookies(), "remember-me")
	if rotated == nil || rotated.Value == rm.Value {
		t.Fatal("remember-me cookie not rotated")
	}
	if cookieNamed(rec.Result().Cookies(), "WGSESSION") == nil {
		t.Error("no session cookie after token login")
	}
}

func TestReplayedRememberMeTreatedAsAnonymous(t *testing.T) {
	gate := newTestGate(t, func(cfg *webgate.Config) {
		// Leave room for the remember-me session next to nothing else.
		cfg.Session.MaxConcurrent = 0
		cfg.Session.Policy = session.EvictOldest
	})

	rm := cookieNamed(doLogin(t, gate, "user", "test", true), "remember-me")
	get(gate, "/user", rm) // rotates; rm is now stale

	rec := get(gate, "/user", rm)
	if rec.Code != http.StatusFound || rec.Header().Get("Location") != "/loginPage" {
		t.Fatalf("replay = %d %q", rec.Code, rec.Header().Get("Location"))
	}
	cleared := cookieNamed(rec.Result().Cookies(), "remember-me")
	if cleared == nil || cleared.MaxAge != -1 {
		t.Error("replayed cookie not cleared")
	}
}

func TestTokenLoginRefusedAtSessionLimit(t *testing.T) {
	// Baseline policy: one session, reject new. The credential session
	// holds the slot, so a token-only request stays anonymous but keeps a
	// rotated cookie.
	gate := newTestGate(t, nil)

	rm := cookieNamed(doLogin(t, gate, "user", "test", true), "remember-me")

	rec := get(gate, "/user", rm)
	if rec.Code != http.StatusFound || rec.Header().Get("Location") != "/loginPage" {
		t.Fatalf("token request at limit = %d %q", rec.Code, rec.Header().Get("Location"))
	}
	rotated := cookieNamed(rec.Result().Cookies(), "remember-me")
	if rotated == nil || rotated.Value == rm.Value || rotated.MaxAge < 0 {
		t.Fatal("rotated cookie not preserved at session limit")
	}
}

func TestCookieAttributes(t *testing.T) {
	gate := newTestGate(t, func(cfg *webgate.Config) {
		cfg.Cookies.Secure = true
	})

	cookies := doLogin(t, gate, "user", "test", true)
	for _, name := range []string{"WGSESSION", "remember-me"} {
		c := cookieNamed(cookies, name)
		if c == nil {
			t.Fatalf("missing %s cookie", name)
		}
		if !c.HttpOnly || !c.Secure {
			t.Errorf("%s cookie attrs: HttpOnly=%v Secure=%v", name, c.HttpOnly, c.Secure)
		}
	}

	rm := cookieNamed(cookies, "remember-me")
	if rm.Expires.IsZero() || time.Until(rm.Expires) > 2*time.Hour {
		t.Errorf("remember-me expiry = %v, want about one hour out", rm.Expires)
	}
}
