package authcore

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/feedlane/authcore/internal/limiters"
	"github.com/feedlane/authcore/password"
	"github.com/feedlane/authcore/token"
)

// Core is the authentication core: one shared bearer-token verifier plus
// the credential-lifecycle managers built around it. Construct it once via
// [Builder.Build]; it is immutable afterwards and safe for concurrent use.
//
// The trust gate and the security-context resolver both delegate to
// [Core.VerifyBearer], so the two resolution paths cannot drift apart.
type Core struct {
	config Config

	codec    *token.Codec
	creds    CredentialStore
	resets   ResetTokenStore
	hasher   *password.Argon2
	totp     *totpManager
	notifier Notifier

	resetLimiter     *limiters.ResetLimiter
	twoFactorLimiter *limiters.TwoFactorLimiter

	logger  *zap.Logger
	metrics *Metrics
}

// VerifyBearer resolves a raw bearer token into an identity. It is the
// single verification path shared by the gate and the resolver: signature,
// expiry, and subject consistency are all checked here. Pure computation;
// never blocks.
func (c *Core) VerifyBearer(ctx context.Context, tok string) (*Identity, error) {
	if c == nil || c.codec == nil {
		return nil, ErrCoreNotReady
	}

	subject, err := c.codec.ValidateAndExtract(tok)
	if err != nil {
		return nil, err
	}
	if !c.codec.IsValid(tok, subject) {
		return nil, ErrInvalidToken
	}
	return &Identity{Subject: subject, Authenticated: true}, nil
}

// IssueToken produces a signed bearer token for subject. Exposed for the
// login flows that sit on top of this core.
func (c *Core) IssueToken(subject string) (string, error) {
	if c == nil || c.codec == nil {
		return "", ErrCoreNotReady
	}
	return c.codec.Issue(subject)
}

// PublicPrefixes returns the configured allow-list of path prefixes that
// bypass authentication.
func (c *Core) PublicPrefixes() []string {
	if c == nil {
		return nil
	}
	return c.config.Gate.PublicPrefixes
}

// Metrics returns the core's prometheus instruments, nil when unmetered.
func (c *Core) Metrics() *Metrics {
	if c == nil {
		return nil
	}
	return c.metrics
}

func (c *Core) log() *zap.Logger {
	if c == nil || c.logger == nil {
		return zap.NewNop()
	}
	return c.logger
}

func (c *Core) ready() error {
	if c == nil || c.creds == nil {
		return ErrCoreNotReady
	}
	return nil
}

// mapStoreErr keeps persistence faults distinguishable from policy
// outcomes without leaking driver errors to callers.
func mapStoreErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrCredentialNotFound),
		errors.Is(err, ErrTokenNotFound),
		errors.Is(err, ErrTokenAlreadyUsed),
		errors.Is(err, ErrTokenExpired):
		return err
	case errors.Is(err, ErrStoreUnavailable):
		return err
	default:
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
}
