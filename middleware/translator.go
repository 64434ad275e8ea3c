package middleware

import (
	"errors"
	"net/http"

	"github.com/webgatekit/webgate"
)

// Translator maps pipeline errors onto browser redirects. Handlers and
// templates never see sentinel errors directly; every failure lands the
// client on a configured page.
type Translator struct {
	cfg webgate.Config
}

// NewTranslator builds a [Translator] from the engine's configuration.
func NewTranslator(cfg webgate.Config) *Translator {
	return &Translator{cfg: cfg}
}

// Translate writes the redirect (or status) corresponding to err. The
// mapping is deliberately coarse: login failures of every kind share the
// failure URL so the response does not leak which check rejected the
// attempt.
func (t *Translator) Translate(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, webgate.ErrBadCredentials),
		errors.Is(err, webgate.ErrLoginRateLimited),
		errors.Is(err, webgate.ErrSessionLimitExceeded):
		http.Redirect(w, r, t.cfg.Login.FailureURL, http.StatusFound)
	case errors.Is(err, webgate.ErrAccessDenied):
		http.Redirect(w, r, t.cfg.AccessDeniedURL, http.StatusFound)
	case errors.Is(err, webgate.ErrSessionExpired):
		http.Redirect(w, r, t.cfg.SessionExpiredURL, http.StatusFound)
	case errors.Is(err, webgate.ErrRememberMeInvalid),
		errors.Is(err, webgate.ErrTokenReplay):
		http.Redirect(w, r, t.cfg.Login.PagePath, http.StatusFound)
	default:
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}
