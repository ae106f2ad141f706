// Package store implements the Postgres persistence collaborator for the
// authentication core: credential records, reset tokens, and backup-code
// pools. All single-use consumption paths are single conditional statements
// so at-most-one semantics hold without in-process locks.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	authcore "github.com/feedlane/authcore"
)

// DBTX is satisfied by *sql.DB and *sql.Tx. The pgx stdlib driver is the
// expected backend.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Postgres implements authcore.CredentialStore and authcore.ResetTokenStore.
type Postgres struct {
	db DBTX
}

func NewPostgres(db DBTX) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) GetCredential(ctx context.Context, identityKey string) (*authcore.Credential, error) {
	query :=
		`SELECT identity_key, password_hash, two_factor_enabled, COALESCE(two_factor_secret, '')
		 FROM credentials
		 WHERE identity_key = $1
		 `

	cred := &authcore.Credential{}
	err := p.db.QueryRowContext(ctx, query, identityKey).Scan(
		&cred.IdentityKey, &cred.PasswordHash, &cred.TwoFactorEnabled, &cred.TwoFactorSecret,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, authcore.ErrCredentialNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return cred, nil
}

func (p *Postgres) UpdatePasswordHash(ctx context.Context, identityKey, passwordHash string) error {
	query :=
		`UPDATE credentials SET password_hash = $2
		 WHERE identity_key = $1
		 `

	res, err := p.db.ExecContext(ctx, query, identityKey, passwordHash)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return requireRow(res, authcore.ErrCredentialNotFound)
}

// SaveTwoFactor enables two-factor and replaces the whole backup-code pool.
// Both writes ride one transaction when db is *sql.DB; callers running
// inside their own transaction pass the Tx as DBTX and get the same
// statements.
func (p *Postgres) SaveTwoFactor(ctx context.Context, identityKey, secret string, codes []authcore.BackupCodeRecord) error {
	run := func(tx DBTX) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE credentials SET two_factor_enabled = TRUE, two_factor_secret = $2
			 WHERE identity_key = $1
			 `, identityKey, secret)
		if err != nil {
			return fmt.Errorf("db error: %w", err)
		}
		if err := requireRow(res, authcore.ErrCredentialNotFound); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx,
			`DELETE FROM backup_codes WHERE identity_key = $1`, identityKey); err != nil {
			return fmt.Errorf("db error: %w", err)
		}
		for _, code := range codes {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO backup_codes (identity_key, code_hash) VALUES ($1, $2)`,
				identityKey, code.Hash[:]); err != nil {
				return fmt.Errorf("db error: %w", err)
			}
		}
		return nil
	}

	if db, ok := p.db.(*sql.DB); ok {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("db error: %w", err)
		}
		if err := run(tx); err != nil {
			_ = tx.Rollback()
			return err
		}
		return tx.Commit()
	}
	return run(p.db)
}

func (p *Postgres) ClearTwoFactor(ctx context.Context, identityKey string) error {
	res, err := p.db.ExecContext(ctx,
		`UPDATE credentials SET two_factor_enabled = FALSE, two_factor_secret = NULL
		 WHERE identity_key = $1
		 `, identityKey)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if err := requireRow(res, authcore.ErrCredentialNotFound); err != nil {
		return err
	}
	if _, err := p.db.ExecContext(ctx,
		`DELETE FROM backup_codes WHERE identity_key = $1`, identityKey); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// ConsumeBackupCode deletes the matching code. The DELETE is the atomic
// check-and-consume: its row count decides who won a concurrent race.
func (p *Postgres) ConsumeBackupCode(ctx context.Context, identityKey string, hash [32]byte) (bool, error) {
	res, err := p.db.ExecContext(ctx,
		`DELETE FROM backup_codes
		 WHERE identity_key = $1 AND code_hash = $2
		 `, identityKey, hash[:])
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return n == 1, nil
}

func (p *Postgres) SaveResetToken(ctx context.Context, tok *authcore.ResetToken) error {
	query :=
		`INSERT INTO reset_tokens (id, identity_key, secret_hash, used, expires_at, created_at)
		 VALUES ($1, $2, $3, FALSE, $4, $5)
		 `

	if _, err := p.db.ExecContext(ctx, query,
		tok.ID, tok.IdentityKey, tok.SecretHash[:], tok.ExpiresAt, tok.CreatedAt); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// ConsumeResetToken is the single conditional update the reset flow's
// at-most-one guarantee rests on. Losing attempts re-read the row once to
// classify the failure; that read has no side effects.
func (p *Postgres) ConsumeResetToken(ctx context.Context, id string, secretHash [32]byte, now time.Time) (string, error) {
	query :=
		`UPDATE reset_tokens
		 SET used = TRUE, used_at = $4
		 WHERE id = $1 AND secret_hash = $2 AND used = FALSE AND expires_at > $3
		 RETURNING identity_key
		 `

	var identityKey string
	err := p.db.QueryRowContext(ctx, query, id, secretHash[:], now, now).Scan(&identityKey)
	if err == nil {
		return identityKey, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("db error: %w", err)
	}

	return "", p.classifyConsumeFailure(ctx, id, secretHash, now)
}

func (p *Postgres) classifyConsumeFailure(ctx context.Context, id string, secretHash [32]byte, now time.Time) error {
	var used bool
	var expiresAt time.Time
	err := p.db.QueryRowContext(ctx,
		`SELECT used, expires_at FROM reset_tokens
		 WHERE id = $1 AND secret_hash = $2
		 `, id, secretHash[:]).Scan(&used, &expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return authcore.ErrTokenNotFound
		}
		return fmt.Errorf("db error: %w", err)
	}
	if used {
		return authcore.ErrTokenAlreadyUsed
	}
	if !now.Before(expiresAt) {
		return authcore.ErrTokenExpired
	}
	// The conditional update lost to a concurrent consumer that committed
	// between our UPDATE and this read.
	return authcore.ErrTokenAlreadyUsed
}

// SupersedeResetTokens retires outstanding unused tokens when a new one is
// issued. Rows stay in place for audit.
func (p *Postgres) SupersedeResetTokens(ctx context.Context, identityKey string, now time.Time) error {
	if _, err := p.db.ExecContext(ctx,
		`UPDATE reset_tokens
		 SET used = TRUE, used_at = $2
		 WHERE identity_key = $1 AND used = FALSE
		 `, identityKey, now); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func requireRow(res sql.Result, missing error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return missing
	}
	return nil
}
