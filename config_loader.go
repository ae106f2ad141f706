package authcore

import (
	"encoding/base64"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/feedlane/authcore/token"
)

// fileConfig mirrors Config for yaml loading. Durations are strings in
// time.ParseDuration syntax; key material is referenced by file path or
// inline base64, never committed raw.
type fileConfig struct {
	Token struct {
		SigningMethod string `yaml:"signing_method"`
		KeyFile       string `yaml:"key_file"`
		KeyBase64     string `yaml:"key_base64"`
		PublicKeyFile string `yaml:"public_key_file"`
		Issuer        string `yaml:"issuer"`
		TTL           string `yaml:"ttl"`
		Leeway        string `yaml:"leeway"`
	} `yaml:"token"`
	Gate struct {
		PublicPrefixes []string `yaml:"public_prefixes"`
	} `yaml:"gate"`
	Reset struct {
		TokenTTL string `yaml:"token_ttl"`
	} `yaml:"reset"`
	TwoFactor struct {
		Issuer           string `yaml:"issuer"`
		Digits           int    `yaml:"digits"`
		Period           int    `yaml:"period"`
		Skew             int    `yaml:"skew"`
		Algorithm        string `yaml:"algorithm"`
		BackupCodeCount  int    `yaml:"backup_code_count"`
		BackupCodeLength int    `yaml:"backup_code_length"`
	} `yaml:"two_factor"`
	Limits struct {
		ResetRequestsPerWindow  int    `yaml:"reset_requests_per_window"`
		ResetConsumesPerWindow  int    `yaml:"reset_consumes_per_window"`
		TwoFactorFailsPerWindow int    `yaml:"two_factor_fails_per_window"`
		Window                  string `yaml:"window"`
	} `yaml:"limits"`
}

// LoadConfig reads a yaml file, overlays it on DefaultConfig, and validates
// the result.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}

	if fc.Token.SigningMethod != "" {
		cfg.Token.SigningMethod = token.SigningMethod(fc.Token.SigningMethod)
	}
	if fc.Token.Issuer != "" {
		cfg.Token.Issuer = fc.Token.Issuer
	}
	if err := overlayDuration(&cfg.Token.TTL, fc.Token.TTL, "token.ttl"); err != nil {
		return cfg, err
	}
	if err := overlayDuration(&cfg.Token.Leeway, fc.Token.Leeway, "token.leeway"); err != nil {
		return cfg, err
	}
	switch {
	case fc.Token.KeyFile != "":
		key, err := os.ReadFile(fc.Token.KeyFile)
		if err != nil {
			return cfg, fmt.Errorf("read token key: %w", err)
		}
		cfg.Token.Key = key
	case fc.Token.KeyBase64 != "":
		key, err := base64.StdEncoding.DecodeString(fc.Token.KeyBase64)
		if err != nil {
			return cfg, fmt.Errorf("decode token key: %w", err)
		}
		cfg.Token.Key = key
	}
	if fc.Token.PublicKeyFile != "" {
		key, err := os.ReadFile(fc.Token.PublicKeyFile)
		if err != nil {
			return cfg, fmt.Errorf("read token public key: %w", err)
		}
		cfg.Token.PublicKey = key
	}

	if len(fc.Gate.PublicPrefixes) > 0 {
		cfg.Gate.PublicPrefixes = fc.Gate.PublicPrefixes
	}
	if err := overlayDuration(&cfg.Reset.TokenTTL, fc.Reset.TokenTTL, "reset.token_ttl"); err != nil {
		return cfg, err
	}

	if fc.TwoFactor.Issuer != "" {
		cfg.TwoFactor.Issuer = fc.TwoFactor.Issuer
	}
	if fc.TwoFactor.Digits != 0 {
		cfg.TwoFactor.Digits = fc.TwoFactor.Digits
	}
	if fc.TwoFactor.Period != 0 {
		cfg.TwoFactor.Period = fc.TwoFactor.Period
	}
	if fc.TwoFactor.Skew != 0 {
		cfg.TwoFactor.Skew = fc.TwoFactor.Skew
	}
	if fc.TwoFactor.Algorithm != "" {
		cfg.TwoFactor.Algorithm = fc.TwoFactor.Algorithm
	}
	if fc.TwoFactor.BackupCodeCount != 0 {
		cfg.TwoFactor.BackupCodeCount = fc.TwoFactor.BackupCodeCount
	}
	if fc.TwoFactor.BackupCodeLength != 0 {
		cfg.TwoFactor.BackupCodeLength = fc.TwoFactor.BackupCodeLength
	}

	if fc.Limits.ResetRequestsPerWindow != 0 {
		cfg.Limits.ResetRequestsPerWindow = fc.Limits.ResetRequestsPerWindow
	}
	if fc.Limits.ResetConsumesPerWindow != 0 {
		cfg.Limits.ResetConsumesPerWindow = fc.Limits.ResetConsumesPerWindow
	}
	if fc.Limits.TwoFactorFailsPerWindow != 0 {
		cfg.Limits.TwoFactorFailsPerWindow = fc.Limits.TwoFactorFailsPerWindow
	}
	if err := overlayDuration(&cfg.Limits.Window, fc.Limits.Window, "limits.window"); err != nil {
		return cfg, err
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func overlayDuration(dst *time.Duration, raw, field string) error {
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse %s: %w", field, err)
	}
	*dst = d
	return nil
}
