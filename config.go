package authcore

import (
	"errors"
	"strings"
	"time"

	"github.com/feedlane/authcore/password"
	"github.com/feedlane/authcore/token"
)

// Config is the full configuration tree for the authentication core. Zero
// values are filled in from DefaultConfig by the Builder; Validate runs at
// build time.
type Config struct {
	Token     token.Config
	Gate      GateConfig
	Reset     ResetConfig
	TwoFactor TwoFactorConfig
	Password  password.Config
	Limits    LimitsConfig
}

// GateConfig configures the request trust gate. The public prefix list is
// data, not control flow: the gate walks it in order and passes matching
// requests through untouched.
type GateConfig struct {
	PublicPrefixes []string
}

// ResetConfig configures the password-reset manager.
type ResetConfig struct {
	// TokenTTL bounds how long an issued reset token may be consumed.
	TokenTTL time.Duration
}

// TwoFactorConfig configures the rotating-code second factor and its
// backup-code pool.
type TwoFactorConfig struct {
	// Issuer labels provisioning URIs for authenticator apps.
	Issuer    string
	Digits    int
	Period    int
	Skew      int
	Algorithm string

	BackupCodeCount  int
	BackupCodeLength int
}

// LimitsConfig configures the optional redis-backed throttles. A limit of
// zero disables that throttle.
type LimitsConfig struct {
	ResetRequestsPerWindow  int
	ResetConsumesPerWindow  int
	TwoFactorFailsPerWindow int
	Window                  time.Duration
}

// DefaultConfig returns the configuration the core ships with. The token
// signing key is deliberately absent; it must always be injected.
func DefaultConfig() Config {
	return Config{
		Token: token.Config{
			SigningMethod: token.MethodHS256,
			TTL:           15 * time.Minute,
			Leeway:        30 * time.Second,
		},
		Gate: GateConfig{
			PublicPrefixes: []string{
				"/api/v1/auth",
				"/health",
				"/v2/api-docs",
				"/v3/api-docs",
				"/swagger-ui",
				"/metrics",
			},
		},
		Reset: ResetConfig{
			TokenTTL: 24 * time.Hour,
		},
		TwoFactor: TwoFactorConfig{
			Issuer:           "feedlane",
			Digits:           6,
			Period:           30,
			Skew:             1,
			Algorithm:        "SHA1",
			BackupCodeCount:  10,
			BackupCodeLength: 10,
		},
		Password: password.DefaultConfig(),
		Limits: LimitsConfig{
			ResetRequestsPerWindow:  5,
			ResetConsumesPerWindow:  10,
			TwoFactorFailsPerWindow: 10,
			Window:                  15 * time.Minute,
		},
	}
}

// Validate checks the parts of the tree the core itself owns. Token key
// material is validated by token.NewCodec at build time.
func (c Config) Validate() error {
	if c.Reset.TokenTTL <= 0 {
		return errors.New("reset token ttl must be positive")
	}
	if c.TwoFactor.Digits < 6 || c.TwoFactor.Digits > 10 {
		return errors.New("two-factor digits must be between 6 and 10")
	}
	if c.TwoFactor.Period <= 0 {
		return errors.New("two-factor period must be positive")
	}
	if c.TwoFactor.Skew < 0 || c.TwoFactor.Skew > 2 {
		return errors.New("two-factor skew must be between 0 and 2")
	}
	switch strings.ToUpper(c.TwoFactor.Algorithm) {
	case "", "SHA1", "SHA256", "SHA512":
	default:
		return errors.New("unsupported two-factor algorithm")
	}
	if c.TwoFactor.BackupCodeCount <= 0 || c.TwoFactor.BackupCodeCount > 64 {
		return errors.New("backup code count must be between 1 and 64")
	}
	if c.TwoFactor.BackupCodeLength < 8 || c.TwoFactor.BackupCodeLength > 32 {
		return errors.New("backup code length must be between 8 and 32")
	}
	for _, prefix := range c.Gate.PublicPrefixes {
		if !strings.HasPrefix(prefix, "/") {
			return errors.New("gate public prefixes must start with /")
		}
	}
	if c.Limits.Window < 0 {
		return errors.New("limiter window must not be negative")
	}
	return nil
}
