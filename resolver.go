package authcore

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// ContextResolver reconstructs an authenticated identity directly from a
// request's Authorization header. It is the second resolution path, used by
// the authorization layer rather than the filter chain; both paths share
// [Core.VerifyBearer], so they agree by construction.
type ContextResolver struct {
	core   *Core
	logger *zap.Logger
}

// NewContextResolver returns a resolver over core. logger may be nil.
func NewContextResolver(core *Core, logger *zap.Logger) *ContextResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ContextResolver{core: core, logger: logger}
}

// Resolve returns the request's authenticated identity, if any. An identity
// already attached to ctx by the request gate is returned as is; otherwise the
// bearer token is validated from scratch. A missing header, a non-bearer
// scheme, or any validation failure resolves to no identity, never an error.
// A request with a bad token is indistinguishable from an unauthenticated one
// at this layer; the 401/403 decision belongs to the policy enforcement that
// runs after resolution.
func (r *ContextResolver) Resolve(ctx context.Context, req *http.Request) (*Identity, bool) {
	if r == nil || r.core == nil || req == nil {
		return nil, false
	}

	if identity, ok := IdentityFromContext(ctx); ok && identity != nil && identity.Authenticated {
		return identity, true
	}

	header := req.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return nil, false
	}
	raw := strings.TrimPrefix(header, "Bearer ")
	if raw == "" {
		return nil, false
	}

	identity, err := r.core.VerifyBearer(ctx, raw)
	if err != nil {
		r.logger.Debug("context resolution degraded to anonymous", zap.Error(err))
		return nil, false
	}
	return identity, true
}
