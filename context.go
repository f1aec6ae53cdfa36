package authgate

import "context"

type contextKey int

const clientIPKey contextKey = iota

// WithClientIP attaches the caller's client IP to the context. The gateway
// uses it for IP-scoped login throttling and audit events; absent IPs simply
// skip the IP throttle.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey, ip)
}

func clientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	ip, _ := ctx.Value(clientIPKey).(string)
	return ip
}
