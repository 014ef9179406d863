package campusauth

import "context"

type clientIPContextKey struct{}

// WithClientIP attaches the caller's address to ctx. The engine uses it for
// the per-client password-reset rate limit and for audit records.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

func clientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	ip, _ := ctx.Value(clientIPContextKey{}).(string)
	return ip
}
