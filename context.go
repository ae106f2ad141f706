package authcore

import "context"

type identityContextKey struct{}
type clientIPContextKey struct{}

// WithIdentity attaches the resolved caller identity to ctx for the
// remainder of one request's execution. The trust gate is the usual writer;
// downstream authorization reads it back with IdentityFromContext.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// IdentityFromContext returns the identity attached by the trust gate, if
// any.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	if ctx == nil {
		return nil, false
	}
	id, ok := ctx.Value(identityContextKey{}).(*Identity)
	return id, ok && id != nil
}

// WithClientIP attaches the caller's IP address to ctx. The reset and
// two-factor throttles key on it when present.
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
