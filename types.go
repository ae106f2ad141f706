package authcore

import (
	"context"
	"time"
)

// Credential is the persisted secret material for one account. Owned
// exclusively by the account; mutated only by the two-factor manager and the
// password-reset path. Invariant: TwoFactorSecret is non-empty iff
// TwoFactorEnabled.
type Credential struct {
	IdentityKey      string
	PasswordHash     string
	TwoFactorEnabled bool
	// TwoFactorSecret is the base32-encoded rotating-code secret.
	TwoFactorSecret string
}

// ResetToken is one persisted password-reset grant. Rows are never deleted
// by this core; consumption and supersession flip Used so the history stays
// available for audit.
type ResetToken struct {
	ID          string
	IdentityKey string
	// SecretHash is the SHA-256 of the challenge secret. The plaintext
	// secret leaves the process exactly once, inside the challenge handed
	// to the notifier.
	SecretHash [32]byte
	Used       bool
	ExpiresAt  time.Time
	CreatedAt  time.Time
}

// Valid reports whether the token may still be consumed at now.
func (t *ResetToken) Valid(now time.Time) bool {
	return t != nil && !t.Used && now.Before(t.ExpiresAt)
}

// BackupCodeRecord is a stored single-use fallback credential. Only the
// per-user salted hash is persisted.
type BackupCodeRecord struct {
	Hash [32]byte
}

// TwoFactorEnrollment is the one-time result of enrolling a second factor.
// Secret and BackupCodes are plaintext here and are not retrievable again.
type TwoFactorEnrollment struct {
	Secret          string
	ProvisioningURI string
	BackupCodes     []string
}

// Identity is the resolved principal attached to a request's context. Its
// lifetime is bounded to that single request. No authorities beyond
// "authenticated" are populated; role resolution belongs to the
// authorization layer.
type Identity struct {
	Subject       string
	Authenticated bool
}

// CredentialStore is the persistence collaborator for credential records.
// Implementations must provide atomic conditional writes: ConsumeBackupCode
// in particular must guarantee at-most-one success per code under
// concurrent calls.
type CredentialStore interface {
	GetCredential(ctx context.Context, identityKey string) (*Credential, error)
	UpdatePasswordHash(ctx context.Context, identityKey, passwordHash string) error
	// SaveTwoFactor enables two-factor for the account, replacing any prior
	// secret and the entire backup-code pool in one write.
	SaveTwoFactor(ctx context.Context, identityKey, secret string, codes []BackupCodeRecord) error
	ClearTwoFactor(ctx context.Context, identityKey string) error
	// ConsumeBackupCode removes the code with the given hash from the pool.
	// Returns false when no such code remained.
	ConsumeBackupCode(ctx context.Context, identityKey string, hash [32]byte) (bool, error)
}

// ResetTokenStore is the persistence collaborator for reset tokens.
type ResetTokenStore interface {
	SaveResetToken(ctx context.Context, tok *ResetToken) error
	// ConsumeResetToken flips Used in a single conditional update keyed on
	// id, secret hash, Used == false, and expiry. It returns the owning
	// identity key on the one successful consumption and classifies every
	// other outcome as ErrTokenNotFound, ErrTokenAlreadyUsed, or
	// ErrTokenExpired.
	ConsumeResetToken(ctx context.Context, id string, secretHash [32]byte, now time.Time) (string, error)
	// SupersedeResetTokens marks all outstanding unused tokens for the
	// identity as used.
	SupersedeResetTokens(ctx context.Context, identityKey string, now time.Time) error
}

// Notifier delivers a freshly issued reset challenge to the account's
// registered contact channel. The transport is outside this core.
type Notifier interface {
	DeliverResetToken(ctx context.Context, identityKey, challenge string, expiresAt time.Time) error
}
