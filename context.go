package webgate

import "context"

type contextKey uint8

const (
	contextKeyClientIP contextKey = iota
	contextKeyUserAgent
	contextKeyAuthentication
)

// WithClientIP attaches the caller's IP for rate limiting and audit.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, contextKeyClientIP, ip)
}

// ClientIP returns the IP attached by [WithClientIP], or "".
func ClientIP(ctx context.Context) string {
	ip, _ := ctx.Value(contextKeyClientIP).(string)
	return ip
}

// WithUserAgent attaches the caller's user agent for audit.
func WithUserAgent(ctx context.Context, ua string) context.Context {
	return context.WithValue(ctx, contextKeyUserAgent, ua)
}

// UserAgent returns the user agent attached by [WithUserAgent], or "".
func UserAgent(ctx context.Context) string {
	ua, _ := ctx.Value(contextKeyUserAgent).(string)
	return ua
}

// WithAuthentication attaches a resolved identity to the request context.
// The HTTP middleware sets this before calling downstream handlers.
func WithAuthentication(ctx context.Context, auth *Authentication) context.Context {
	return context.WithValue(ctx, contextKeyAuthentication, auth)
}

// AuthenticationFrom returns the identity attached by [WithAuthentication],
// or nil for anonymous requests.
func AuthenticationFrom(ctx context.Context) *Authentication {
	auth, _ := ctx.Value(contextKeyAuthentication).(*Authentication)
	return auth
}
