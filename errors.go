package authcore

import (
	"errors"

	"github.com/feedlane/authcore/token"
)

// Token codec failures. These are aliases of the token package sentinels so
// errors.Is classification works across both layers.
var (
	// ErrMalformedToken signals a token whose structure or signature could
	// not be parsed at all.
	ErrMalformedToken = token.ErrMalformed
	// ErrInvalidToken signals a bad signature or a subject mismatch.
	ErrInvalidToken = token.ErrInvalid
	// ErrExpiredToken signals a structurally sound token past its expiry.
	ErrExpiredToken = token.ErrExpired
)

var (
	// ErrCoreNotReady is returned when a Core method is called on a nil or
	// incompletely built Core.
	ErrCoreNotReady = errors.New("authentication core not ready")
	// ErrCredentialNotFound is returned when no credential record exists
	// for the given identity key.
	ErrCredentialNotFound = errors.New("credential not found")
	// ErrTokenNotFound is returned when no reset token matches the
	// presented challenge.
	ErrTokenNotFound = errors.New("reset token not found")
	// ErrTokenAlreadyUsed is returned when a reset token was consumed or
	// superseded before this attempt.
	ErrTokenAlreadyUsed = errors.New("reset token already used")
	// ErrTokenExpired is returned when a reset token exists but its expiry
	// has passed.
	ErrTokenExpired = errors.New("reset token expired")
	// ErrInvalidTwoFactorCode is returned when a submitted code matches
	// neither the current rotating code nor a remaining backup code.
	ErrInvalidTwoFactorCode = errors.New("invalid two-factor code")
	// ErrTwoFactorNotEnabled is returned by verification and disable when
	// the account has no active enrollment.
	ErrTwoFactorNotEnabled = errors.New("two-factor not enabled")
	// ErrResetRateLimited is returned when reset request or consumption
	// throttles trip.
	ErrResetRateLimited = errors.New("password reset rate limited")
	// ErrTwoFactorRateLimited is returned when two-factor verification
	// throttles trip.
	ErrTwoFactorRateLimited = errors.New("two-factor verification rate limited")
	// ErrStoreUnavailable wraps persistence failures that are neither a
	// caller mistake nor a policy outcome.
	ErrStoreUnavailable = errors.New("credential store unavailable")
)
