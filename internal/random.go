// Package internal holds the random-material helpers shared by the reset
// and two-factor flows, such as challenge encoding and backup-code
// generation.
package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"math/big"
	"strings"

	"github.com/google/uuid"
)

const resetSecretSize = 32

// BackupCodeAlphabet excludes the ambiguous characters 0, O, 1, and I.
const BackupCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// NewResetSecret returns 32 bytes of fresh randomness for one reset token.
func NewResetSecret() ([resetSecretSize]byte, error) {
	var secret [resetSecretSize]byte
	_, err := rand.Read(secret[:])
	return secret, err
}

// HashResetSecret is the digest stored server-side; the raw secret only
// appears inside the encoded challenge.
func HashResetSecret(secret [resetSecretSize]byte) [32]byte {
	return sha256.Sum256(secret[:])
}

// EncodeResetChallenge packs token id and secret into one opaque
// base64url blob. 16 id bytes followed by 32 secret bytes.
func EncodeResetChallenge(id uuid.UUID, secret [resetSecretSize]byte) string {
	var raw [16 + resetSecretSize]byte
	copy(raw[:16], id[:])
	copy(raw[16:], secret[:])
	return base64.RawURLEncoding.EncodeToString(raw[:])
}

// DecodeResetChallenge reverses EncodeResetChallenge.
func DecodeResetChallenge(challenge string) (uuid.UUID, [resetSecretSize]byte, error) {
	var secret [resetSecretSize]byte

	raw, err := base64.RawURLEncoding.DecodeString(challenge)
	if err != nil {
		return uuid.Nil, secret, err
	}
	if len(raw) != 16+resetSecretSize {
		return uuid.Nil, secret, errors.New("invalid reset challenge size")
	}

	id, err := uuid.FromBytes(raw[:16])
	if err != nil {
		return uuid.Nil, secret, err
	}
	copy(secret[:], raw[16:])
	return id, secret, nil
}

// NewBackupCode draws length characters from BackupCodeAlphabet.
func NewBackupCode(length int) (string, error) {
	var b strings.Builder
	b.Grow(length)
	max := big.NewInt(int64(len(BackupCodeAlphabet)))
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(BackupCodeAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// FormatBackupCode inserts a midpoint dash for readability. Canonicalization
// strips it back out before hashing.
func FormatBackupCode(code string) string {
	if len(code) < 8 {
		return code
	}
	mid := len(code) / 2
	return code[:mid] + "-" + code[mid:]
}

// CanonicalizeBackupCode normalizes user input before hashing: uppercase,
// no whitespace, no dashes.
func CanonicalizeBackupCode(code string) string {
	s := strings.ToUpper(strings.TrimSpace(code))
	s = strings.ReplaceAll(s, "-", "")
	return strings.ReplaceAll(s, " ", "")
}

// BackupCodeHash salts the canonical code with the identity key so equal
// codes held by different accounts never collide in storage.
func BackupCodeHash(identityKey, canonicalCode string) [32]byte {
	data := make([]byte, 0, len(identityKey)+1+len(canonicalCode))
	data = append(data, identityKey...)
	data = append(data, 0)
	data = append(data, canonicalCode...)
	return sha256.Sum256(data)
}
