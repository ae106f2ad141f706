// Package middleware provides the request trust gate: the per-request
// filter that runs ahead of all business handlers and attaches a resolved
// identity when, and only when, a valid bearer token was presented.
package middleware

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	authcore "github.com/feedlane/authcore"
)

const bearerScheme = "Bearer "

// Gate returns the trust-gate middleware. Its contract is enrichment only:
// requests under a public prefix pass through untouched, and requests with
// a missing, malformed, expired, or otherwise invalid token pass through
// anonymous. The gate never writes a response itself; enforcing "this
// endpoint requires auth" belongs to the authorization layer downstream.
//
// The gate is stateless and reentrant. Validation is pure computation, so
// no request ever blocks here.
func Gate(core *authcore.Core, logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	prefixes := core.PublicPrefixes()
	metrics := core.Metrics()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isPublicPath(r.URL.Path, prefixes) {
				metrics.ObserveGate(authcore.GateOutcomePublic)
				next.ServeHTTP(w, r)
				return
			}

			raw, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				metrics.ObserveGate(authcore.GateOutcomeAnonymous)
				next.ServeHTTP(w, r)
				return
			}

			identity, err := core.VerifyBearer(r.Context(), raw)
			if err != nil {
				// Swallowed: a bad token is treated as no token.
				metrics.ObserveGate(authcore.GateOutcomeRejectedToken)
				logger.Debug("bearer token rejected",
					zap.String("path", r.URL.Path),
					zap.String("reason", gateReason(err)),
				)
				next.ServeHTTP(w, r)
				return
			}

			metrics.ObserveGate(authcore.GateOutcomeAuthenticated)
			next.ServeHTTP(w, r.WithContext(authcore.WithIdentity(r.Context(), identity)))
		})
	}
}

func isPublicPath(path string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func bearerToken(value string) (string, bool) {
	if !strings.HasPrefix(value, bearerScheme) {
		return "", false
	}
	tok := value[len(bearerScheme):]
	if tok == "" {
		return "", false
	}
	return tok, true
}

func gateReason(err error) string {
	switch {
	case errors.Is(err, authcore.ErrExpiredToken):
		return "expired"
	case errors.Is(err, authcore.ErrMalformedToken):
		return "malformed"
	default:
		return "invalid"
	}
}
