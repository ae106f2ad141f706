package authcore

import (
	"context"
	"crypto/rand"
	"errors"
	"math/big"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/feedlane/authcore/internal"
	"github.com/feedlane/authcore/internal/limiters"
)

// RequestPasswordReset issues a fresh single-use reset token for
// identityKey, supersedes any prior outstanding tokens for the same
// identity, and hands the opaque challenge to the configured notifier.
// The returned challenge is the only copy of the plaintext secret.
//
// Unknown identities get a success-shaped response after a small
// randomized delay so the endpoint cannot be used to enumerate accounts.
func (c *Core) RequestPasswordReset(ctx context.Context, identityKey string) (string, error) {
	if err := c.ready(); err != nil {
		return "", err
	}
	if c.resets == nil {
		return "", ErrCoreNotReady
	}
	if identityKey == "" {
		return "", ErrCredentialNotFound
	}

	if err := c.resetLimiter.CheckRequest(ctx, identityKey); err != nil {
		return "", mapResetLimiterErr(err)
	}

	id := uuid.New()
	secret, err := internal.NewResetSecret()
	if err != nil {
		return "", err
	}
	challenge := internal.EncodeResetChallenge(id, secret)

	_, err = c.creds.GetCredential(ctx, identityKey)
	if err != nil {
		if errors.Is(err, ErrCredentialNotFound) {
			if delayErr := sleepEnumerationDelay(ctx); delayErr != nil {
				return "", delayErr
			}
			c.log().Debug("reset requested for unknown identity", zap.String("identity", identityKey))
			return challenge, nil
		}
		return "", mapStoreErr(err)
	}

	now := c.now()
	if err := c.resets.SupersedeResetTokens(ctx, identityKey, now); err != nil {
		return "", mapStoreErr(err)
	}

	tok := &ResetToken{
		ID:          id.String(),
		IdentityKey: identityKey,
		SecretHash:  internal.HashResetSecret(secret),
		ExpiresAt:   now.Add(c.config.Reset.TokenTTL),
		CreatedAt:   now,
	}
	if err := c.resets.SaveResetToken(ctx, tok); err != nil {
		return "", mapStoreErr(err)
	}

	if c.notifier != nil {
		if err := c.notifier.DeliverResetToken(ctx, identityKey, challenge, tok.ExpiresAt); err != nil {
			c.log().Warn("reset token delivery failed",
				zap.String("identity", identityKey),
				zap.Error(err),
			)
		}
	}

	c.metrics.observeResetRequest()
	c.log().Info("reset token issued",
		zap.String("identity", identityKey),
		zap.Time("expires_at", tok.ExpiresAt),
	)
	return challenge, nil
}

// ConsumeResetToken redeems a reset challenge and installs the new
// password. The consumption itself is a single conditional update in the
// store, so under N concurrent attempts with the same challenge exactly one
// succeeds; the rest observe [ErrTokenAlreadyUsed].
func (c *Core) ConsumeResetToken(ctx context.Context, challenge, newPassword string) error {
	if err := c.ready(); err != nil {
		return err
	}
	if c.resets == nil || c.hasher == nil {
		return ErrCoreNotReady
	}

	if err := c.resetLimiter.CheckConsume(ctx, clientIPFromContext(ctx)); err != nil {
		return mapResetLimiterErr(err)
	}

	id, secret, err := internal.DecodeResetChallenge(challenge)
	if err != nil {
		c.metrics.observeResetConsume("not_found")
		return ErrTokenNotFound
	}

	// Hash before consuming so a policy rejection does not burn the token.
	newHash, err := c.hasher.Hash(newPassword)
	if err != nil {
		return err
	}

	identityKey, err := c.resets.ConsumeResetToken(ctx, id.String(), internal.HashResetSecret(secret), c.now())
	if err != nil {
		c.metrics.observeResetConsume(resetOutcome(err))
		c.log().Info("reset consumption rejected", zap.String("token_id", id.String()), zap.Error(err))
		return mapStoreErr(err)
	}

	if err := c.creds.UpdatePasswordHash(ctx, identityKey, newHash); err != nil {
		c.metrics.observeResetConsume("store_error")
		return mapStoreErr(err)
	}

	c.metrics.observeResetConsume("success")
	c.log().Info("password reset completed", zap.String("identity", identityKey))
	return nil
}

func (c *Core) now() time.Time {
	if c != nil && c.config.Token.Now != nil {
		return c.config.Token.Now()
	}
	return time.Now()
}

func mapResetLimiterErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, limiters.ErrRateLimited):
		return ErrResetRateLimited
	default:
		return ErrStoreUnavailable
	}
}

func resetOutcome(err error) string {
	switch {
	case errors.Is(err, ErrTokenAlreadyUsed):
		return "already_used"
	case errors.Is(err, ErrTokenExpired):
		return "expired"
	case errors.Is(err, ErrTokenNotFound):
		return "not_found"
	default:
		return "store_error"
	}
}

// sleepEnumerationDelay blurs the timing difference between known and
// unknown identities on the request path.
func sleepEnumerationDelay(ctx context.Context) error {
	const minMs, maxMs = 20, 40

	n, err := rand.Int(rand.Reader, big.NewInt(maxMs-minMs+1))
	if err != nil {
		return err
	}

	timer := time.NewTimer(time.Duration(minMs+n.Int64()) * time.Millisecond)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
