package authcore

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/feedlane/authcore/internal/limiters"
	"github.com/feedlane/authcore/password"
	"github.com/feedlane/authcore/token"
)

// Builder assembles a Core. Construction is allocation-only; no I/O happens
// until the Core's methods are called.
type Builder struct {
	config Config

	creds    CredentialStore
	resets   ResetTokenStore
	notifier Notifier

	redis    redis.UniversalClient
	logger   *zap.Logger
	registry prometheus.Registerer

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{config: DefaultConfig()}
}

// WithConfig replaces the entire configuration tree.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithCredentialStore wires the persistence collaborator for credentials
// and backup codes.
func (b *Builder) WithCredentialStore(s CredentialStore) *Builder {
	b.creds = s
	return b
}

// WithResetTokenStore wires the persistence collaborator for reset tokens.
func (b *Builder) WithResetTokenStore(s ResetTokenStore) *Builder {
	b.resets = s
	return b
}

// WithNotifier wires the outbound delivery collaborator for reset
// challenges.
func (b *Builder) WithNotifier(n Notifier) *Builder {
	b.notifier = n
	return b
}

// WithRedis enables the fixed-window throttles. Without it the core runs
// unthrottled.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithLogger sets the structured logger. Defaults to a nop logger.
func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

// WithMetricsRegistry enables prometheus instrumentation on reg.
func (b *Builder) WithMetricsRegistry(reg prometheus.Registerer) *Builder {
	b.registry = reg
	return b
}

// Build validates the configuration, constructs the token codec, and
// returns an immutable Core. A Builder builds at most once.
func (b *Builder) Build() (*Core, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	if b.creds == nil {
		return nil, errors.New("credential store is required")
	}
	if b.resets == nil {
		return nil, errors.New("reset token store is required")
	}
	if err := b.config.Validate(); err != nil {
		return nil, err
	}

	codec, err := token.NewCodec(b.config.Token)
	if err != nil {
		return nil, err
	}
	hasher, err := password.NewArgon2(b.config.Password)
	if err != nil {
		return nil, err
	}

	core := &Core{
		config:   b.config,
		codec:    codec,
		creds:    b.creds,
		resets:   b.resets,
		hasher:   hasher,
		totp:     newTOTPManager(b.config.TwoFactor),
		notifier: b.notifier,
		logger:   b.logger,
	}

	if b.redis != nil {
		core.resetLimiter = limiters.NewResetLimiter(b.redis, limiters.ResetConfig{
			Window:            b.config.Limits.Window,
			RequestsPerWindow: b.config.Limits.ResetRequestsPerWindow,
			ConsumesPerWindow: b.config.Limits.ResetConsumesPerWindow,
		})
		core.twoFactorLimiter = limiters.NewTwoFactorLimiter(b.redis, limiters.TwoFactorConfig{
			Window:         b.config.Limits.Window,
			FailsPerWindow: b.config.Limits.TwoFactorFailsPerWindow,
		})
	}
	if b.registry != nil {
		core.metrics = NewMetrics(b.registry)
	}

	b.built = true
	return core, nil
}
