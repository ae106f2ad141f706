package authcore

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/feedlane/authcore/internal"
	"github.com/feedlane/authcore/internal/limiters"
)

// EnrollTwoFactor generates a fresh rotating-code secret and a full pool of
// backup codes for identityKey, replacing any prior enrollment in one
// store write. The plaintext secret and codes are returned exactly once;
// only the base32 secret and salted code hashes are persisted.
func (c *Core) EnrollTwoFactor(ctx context.Context, identityKey string) (*TwoFactorEnrollment, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}

	if _, err := c.creds.GetCredential(ctx, identityKey); err != nil {
		return nil, mapStoreErr(err)
	}

	_, secretBase32, err := c.totp.GenerateSecret()
	if err != nil {
		return nil, err
	}

	count := c.config.TwoFactor.BackupCodeCount
	length := c.config.TwoFactor.BackupCodeLength
	records := make([]BackupCodeRecord, 0, count)
	codes := make([]string, 0, count)
	for i := 0; i < count; i++ {
		raw, err := internal.NewBackupCode(length)
		if err != nil {
			return nil, err
		}
		canonical := internal.CanonicalizeBackupCode(raw)
		records = append(records, BackupCodeRecord{Hash: internal.BackupCodeHash(identityKey, canonical)})
		codes = append(codes, internal.FormatBackupCode(raw))
	}

	if err := c.creds.SaveTwoFactor(ctx, identityKey, secretBase32, records); err != nil {
		return nil, mapStoreErr(err)
	}

	c.log().Info("two-factor enrolled",
		zap.String("identity", identityKey),
		zap.Int("backup_codes", count),
	)
	return &TwoFactorEnrollment{
		Secret:          secretBase32,
		ProvisioningURI: c.totp.ProvisionURI(secretBase32, identityKey),
		BackupCodes:     codes,
	}, nil
}

// VerifyTwoFactor checks submittedCode against the account's current
// rotating code first, then against the remaining backup codes. A matching
// backup code is consumed atomically in the store, so concurrent attempts
// with the same code yield exactly one success. Anything else fails with
// [ErrInvalidTwoFactorCode].
func (c *Core) VerifyTwoFactor(ctx context.Context, identityKey, submittedCode string) error {
	if err := c.ready(); err != nil {
		return err
	}

	if err := c.twoFactorLimiter.Check(ctx, identityKey); err != nil {
		return mapTwoFactorLimiterErr(err)
	}

	cred, err := c.creds.GetCredential(ctx, identityKey)
	if err != nil {
		return mapStoreErr(err)
	}
	if !cred.TwoFactorEnabled || cred.TwoFactorSecret == "" {
		return ErrTwoFactorNotEnabled
	}

	secret, err := c.totp.DecodeSecret(cred.TwoFactorSecret)
	if err != nil {
		return mapStoreErr(err)
	}

	matched, err := c.totp.VerifyCode(secret, submittedCode, c.now())
	if err != nil {
		return err
	}
	if matched {
		c.metrics.observeTwoFactor("totp", "success")
		if err := c.twoFactorLimiter.Reset(ctx, identityKey); err != nil {
			c.log().Warn("two-factor limiter reset failed", zap.Error(err))
		}
		return nil
	}

	canonical := internal.CanonicalizeBackupCode(submittedCode)
	if len(canonical) == c.config.TwoFactor.BackupCodeLength {
		consumed, err := c.creds.ConsumeBackupCode(ctx, identityKey, internal.BackupCodeHash(identityKey, canonical))
		if err != nil {
			return mapStoreErr(err)
		}
		if consumed {
			c.metrics.observeTwoFactor("backup", "success")
			c.log().Info("backup code consumed", zap.String("identity", identityKey))
			if err := c.twoFactorLimiter.Reset(ctx, identityKey); err != nil {
				c.log().Warn("two-factor limiter reset failed", zap.Error(err))
			}
			return nil
		}
	}

	c.metrics.observeTwoFactor("any", "failure")
	if err := c.twoFactorLimiter.RecordFailure(ctx, identityKey); err != nil {
		c.log().Warn("two-factor limiter record failed", zap.Error(err))
	}
	return ErrInvalidTwoFactorCode
}

// DisableTwoFactor clears the secret and the entire backup-code pool.
func (c *Core) DisableTwoFactor(ctx context.Context, identityKey string) error {
	if err := c.ready(); err != nil {
		return err
	}

	cred, err := c.creds.GetCredential(ctx, identityKey)
	if err != nil {
		return mapStoreErr(err)
	}
	if !cred.TwoFactorEnabled {
		return ErrTwoFactorNotEnabled
	}

	if err := c.creds.ClearTwoFactor(ctx, identityKey); err != nil {
		return mapStoreErr(err)
	}
	c.log().Info("two-factor disabled", zap.String("identity", identityKey))
	return nil
}

func mapTwoFactorLimiterErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, limiters.ErrRateLimited):
		return ErrTwoFactorRateLimited
	default:
		return ErrStoreUnavailable
	}
}
