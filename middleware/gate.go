package middleware

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/webgatekit/webgate"
	"github.com/webgatekit/webgate/authz"
)

// Gate is the HTTP front door: it owns the login, logout, session
// resolution, and authorization steps for every request and hands
// authenticated requests to the next handler with the identity in the
// request context.
type Gate struct {
	engine     *webgate.Engine
	cfg        webgate.Config
	translator *Translator
	next       http.Handler
}

// NewGate wraps next with the full pipeline.
func NewGate(engine *webgate.Engine, next http.Handler) *Gate {
	cfg := engine.Config()
	return &Gate{
		engine:     engine,
		cfg:        cfg,
		translator: NewTranslator(cfg),
		next:       next,
	}
}

func (g *Gate) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := g.clientContext(r)

	switch {
	case r.URL.Path == g.cfg.Logout.Path:
		g.serveLogout(ctx, w, r)
	case r.URL.Path == g.cfg.Login.ProcessingPath && r.Method == http.MethodPost:
		g.serveLogin(ctx, w, r)
	default:
		g.serveResolved(ctx, w, r)
	}
}

func (g *Gate) serveLogin(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	req := webgate.LoginRequest{
		Username:           r.PostFormValue(g.cfg.Login.UsernameParameter),
		Password:           r.PostFormValue(g.cfg.Login.PasswordParameter),
		PresentedSessionID: g.cookieValue(r, g.cfg.Session.CookieName),
		RememberMe:         r.PostFormValue(g.cfg.RememberMe.Parameter) != "",
	}

	result, err := g.engine.Authenticate(ctx, req)
	if err != nil {
		g.translator.Translate(w, r, err)
		return
	}

	g.setSessionCookie(w, result.Auth.SessionID)
	if result.RememberMe != nil {
		g.setRememberMeCookie(w, result.RememberMe)
	}

	target := g.cfg.Login.DefaultSuccessURL
	if token := g.cookieValue(r, g.cfg.RequestCache.CookieName); token != "" {
		g.clearCookie(w, g.cfg.RequestCache.CookieName)
		if saved, ok, err := g.engine.ConsumeSavedRequest(ctx, token); err == nil && ok {
			target = saved
		}
	}

	http.Redirect(w, r, target, http.StatusFound)
}

func (g *Gate) serveLogout(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	sessionID := g.cookieValue(r, g.cfg.Session.CookieName)
	rememberMe := g.cookieValue(r, g.cfg.RememberMe.CookieName)

	if err := g.engine.Logout(ctx, sessionID, rememberMe); err != nil {
		g.translator.Translate(w, r, err)
		return
	}

	g.clearCookie(w, g.cfg.Session.CookieName)
	g.clearCookie(w, g.cfg.RememberMe.CookieName)

	http.Redirect(w, r, g.cfg.Logout.SuccessURL, http.StatusFound)
}

func (g *Gate) serveResolved(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	sessionID := g.cookieValue(r, g.cfg.Session.CookieName)
	rememberMe := g.cookieValue(r, g.cfg.RememberMe.CookieName)

	res, err := g.engine.Resolve(ctx, sessionID, rememberMe)
	if err != nil {
		if res != nil && res.ClearRememberMe &&
			(errors.Is(err, webgate.ErrRememberMeInvalid) || errors.Is(err, webgate.ErrTokenReplay)) {
			// Bad token, not a bad request: drop the cookie and carry on
			// anonymously.
			g.clearCookie(w, g.cfg.RememberMe.CookieName)
		} else {
			g.translator.Translate(w, r, err)
			return
		}
	}

	if res.RotatedToken != nil {
		g.setRememberMeCookie(w, res.RotatedToken)
	}
	if res.Auth != nil && res.Auth.SessionID != sessionID {
		g.setSessionCookie(w, res.Auth.SessionID)
	}

	switch g.engine.Authorize(ctx, r.URL.Path, res.Auth) {
	case authz.Allow:
		g.next.ServeHTTP(w, r.WithContext(webgate.WithAuthentication(r.Context(), res.Auth)))
	case authz.Deny:
		g.translator.Translate(w, r, webgate.ErrAccessDenied)
	case authz.RequireAuth:
		if res.SessionExpired {
			g.clearCookie(w, g.cfg.Session.CookieName)
			g.translator.Translate(w, r, webgate.ErrSessionExpired)
			return
		}
		g.redirectToLogin(ctx, w, r)
	}
}

// redirectToLogin saves the original navigation target before sending the
// caller to the login page, so a successful login can resume it.
func (g *Gate) redirectToLogin(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet && r.URL.Path != g.cfg.Login.PagePath {
		if token, err := g.engine.SaveRequest(ctx, r.URL.RequestURI()); err == nil && token != "" {
			http.SetCookie(w, &http.Cookie{
				Name:     g.cfg.RequestCache.CookieName,
				Value:    token,
				Path:     "/",
				MaxAge:   int(g.cfg.RequestCache.TTL / time.Second),
				HttpOnly: true,
				Secure:   g.cfg.Cookies.Secure,
				SameSite: g.cfg.Cookies.SameSite,
			})
		}
	}
	http.Redirect(w, r, g.cfg.Login.PagePath, http.StatusFound)
}

func (g *Gate) clientContext(r *http.Request) context.Context {
	ctx := r.Context()

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	ctx = webgate.WithClientIP(ctx, host)
	ctx = webgate.WithUserAgent(ctx, r.UserAgent())

	return ctx
}

func (g *Gate) cookieValue(r *http.Request, name string) string {
	if name == "" {
		return ""
	}
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}

func (g *Gate) setSessionCookie(w http.ResponseWriter, sessionID string) {
	http.SetCookie(w, &http.Cookie{
		Name:     g.cfg.Session.CookieName,
		Value:    sessionID,
		Path:     "/",
		HttpOnly: true,
		Secure:   g.cfg.Cookies.Secure,
		SameSite: g.cfg.Cookies.SameSite,
	})
}

func (g *Gate) setRememberMeCookie(w http.ResponseWriter, tok *webgate.RememberMeToken) {
	http.SetCookie(w, &http.Cookie{
		Name:     g.cfg.RememberMe.CookieName,
		Value:    tok.CookieValue,
		Path:     "/",
		Expires:  tok.ExpiresAt,
		HttpOnly: true,
		Secure:   g.cfg.Cookies.Secure,
		SameSite: g.cfg.Cookies.SameSite,
	})
}

func (g *Gate) clearCookie(w http.ResponseWriter, name string) {
	if name == "" {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   g.cfg.Cookies.Secure,
		SameSite: g.cfg.Cookies.SameSite,
	})
}
