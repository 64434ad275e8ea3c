package internaldefs

import (
	webgate "github.com/webgatekit/webgate"
)

// CounterDef binds a core metric ID to its exported name and help text.
type CounterDef struct {
	ID   webgate.MetricID
	Name string
	Help string
}

// HistogramDef binds a core histogram ID to its exported name and help text.
type HistogramDef struct {
	ID   webgate.MetricID
	Name string
	Help string
}

// CounterDefs is the shared counter catalog consumed by every exporter.
var CounterDefs = []CounterDef{
	{ID: webgate.MetricLoginSuccess, Name: "webgate_login_success_total", Help: "Successful credential logins."},
	{ID: webgate.MetricLoginFailure, Name: "webgate_login_failure_total", Help: "Failed credential logins."},
	{ID: webgate.MetricLoginRateLimited, Name: "webgate_login_rate_limited_total", Help: "Rate-limited login attempts."},
	{ID: webgate.MetricSessionCreated, Name: "webgate_session_created_total", Help: "Created sessions."},
	{ID: webgate.MetricSessionEvicted, Name: "webgate_session_evicted_total", Help: "Sessions evicted by the concurrency limit."},
	{ID: webgate.MetricSessionRejected, Name: "webgate_session_rejected_total", Help: "Logins rejected by the concurrency limit."},
	{ID: webgate.MetricSessionExpired, Name: "webgate_session_expired_total", Help: "Requests arriving with a dead session."},
	{ID: webgate.MetricSessionInvalidated, Name: "webgate_session_invalidated_total", Help: "Explicitly invalidated sessions."},
	{ID: webgate.MetricRememberMeIssued, Name: "webgate_remember_me_issued_total", Help: "Issued remember-me tokens."},
	{ID: webgate.MetricRememberMeAccepted, Name: "webgate_remember_me_accepted_total", Help: "Accepted and rotated remember-me tokens."},
	{ID: webgate.MetricRememberMeInvalid, Name: "webgate_remember_me_invalid_total", Help: "Rejected remember-me tokens."},
	{ID: webgate.MetricRememberMeReplay, Name: "webgate_remember_me_replay_total", Help: "Detected remember-me token replays."},
	{ID: webgate.MetricAccessAllowed, Name: "webgate_access_allowed_total", Help: "Requests allowed by the rule list."},
	{ID: webgate.MetricAccessDenied, Name: "webgate_access_denied_total", Help: "Requests denied by the rule list."},
	{ID: webgate.MetricAuthChallenge, Name: "webgate_auth_challenge_total", Help: "Requests redirected to authentication."},
	{ID: webgate.MetricLogout, Name: "webgate_logout_total", Help: "Logout operations."},
}

// HistogramDefs is the shared histogram catalog consumed by every exporter.
var HistogramDefs = []HistogramDef{
	{ID: webgate.MetricResolveLatency, Name: "webgate_resolve_latency_seconds", Help: "Request resolution latency histogram."},
}

// HistogramBounds are the upper bounds of the core latency buckets, as
// Prometheus le label values.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix mirrors HistogramBounds with characters legal in
// OTel instrument names.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets pads or truncates a raw bucket slice to the fixed core
// width.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts into the cumulative form
// Prometheus histograms expect.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
