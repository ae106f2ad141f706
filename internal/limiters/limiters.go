// Package limiters provides redis-backed fixed-window throttles for the
// password-reset and two-factor flows. All limiters are optional: a nil
// redis client disables them.
package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrRateLimited      = errors.New("rate limited")
	ErrRedisUnavailable = errors.New("limiter redis unavailable")
)

type fixedWindow struct {
	redis  redis.UniversalClient
	window time.Duration
	max    int
}

// enforce counts one hit against key and fails once the window's budget is
// exhausted. INCR plus first-writer EXPIRE keeps the window atomic without
// in-process locks.
func (w fixedWindow) enforce(ctx context.Context, key string) error {
	if w.redis == nil || w.max <= 0 {
		return nil
	}

	count, err := w.redis.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count == 1 {
		if err := w.redis.Expire(ctx, key, w.window).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}
	if count > int64(w.max) {
		return ErrRateLimited
	}
	return nil
}

// ResetLimiter throttles reset-token issuance per identity and consumption
// per client IP.
type ResetLimiter struct {
	request fixedWindow
	consume fixedWindow
}

// ResetConfig carries the per-window budgets for the reset limiter.
type ResetConfig struct {
	Window             time.Duration
	RequestsPerWindow  int
	ConsumesPerWindow  int
}

func NewResetLimiter(client redis.UniversalClient, cfg ResetConfig) *ResetLimiter {
	return &ResetLimiter{
		request: fixedWindow{redis: client, window: cfg.Window, max: cfg.RequestsPerWindow},
		consume: fixedWindow{redis: client, window: cfg.Window, max: cfg.ConsumesPerWindow},
	}
}

func (l *ResetLimiter) CheckRequest(ctx context.Context, identityKey string) error {
	if l == nil {
		return nil
	}
	return l.request.enforce(ctx, "aprq:"+identityKey)
}

func (l *ResetLimiter) CheckConsume(ctx context.Context, ip string) error {
	if l == nil || ip == "" {
		return nil
	}
	return l.consume.enforce(ctx, "aprc:"+ip)
}

// TwoFactorLimiter throttles failed verification attempts per identity.
// Successful verifications clear the window.
type TwoFactorLimiter struct {
	window fixedWindow
}

type TwoFactorConfig struct {
	Window         time.Duration
	FailsPerWindow int
}

func NewTwoFactorLimiter(client redis.UniversalClient, cfg TwoFactorConfig) *TwoFactorLimiter {
	return &TwoFactorLimiter{
		window: fixedWindow{redis: client, window: cfg.Window, max: cfg.FailsPerWindow},
	}
}

func (l *TwoFactorLimiter) key(identityKey string) string {
	return "a2f:" + identityKey
}

// Check fails when the identity has exhausted its failure budget. It does
// not count the attempt; RecordFailure does, after the attempt fails.
func (l *TwoFactorLimiter) Check(ctx context.Context, identityKey string) error {
	if l == nil || l.window.redis == nil || l.window.max <= 0 {
		return nil
	}
	count, err := l.window.redis.Get(ctx, l.key(identityKey)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count >= int64(l.window.max) {
		return ErrRateLimited
	}
	return nil
}

func (l *TwoFactorLimiter) RecordFailure(ctx context.Context, identityKey string) error {
	if l == nil {
		return nil
	}
	return ignoreRateLimited(l.window.enforce(ctx, l.key(identityKey)))
}

func (l *TwoFactorLimiter) Reset(ctx context.Context, identityKey string) error {
	if l == nil || l.window.redis == nil {
		return nil
	}
	if err := l.window.redis.Del(ctx, l.key(identityKey)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func ignoreRateLimited(err error) error {
	if errors.Is(err, ErrRateLimited) {
		return nil
	}
	return err
}
