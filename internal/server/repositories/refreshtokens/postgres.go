package refreshtokens

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/authcore/internal/common"
	"github.com/dmitrijs2005/authcore/internal/dbx"
	"github.com/dmitrijs2005/authcore/internal/server/models"
)

// PostgresRegistry stores entries in the refresh_tokens table over dbx.DBTX
// (satisfied by *sql.DB or *sql.Tx).
type PostgresRegistry struct {
	db  dbx.DBTX
	now func() time.Time
}

// NewPostgresRegistry constructs a registry bound to the given DBTX.
func NewPostgresRegistry(db dbx.DBTX) *PostgresRegistry {
	return &PostgresRegistry{db: db, now: time.Now}
}

// Record inserts the entry. ON CONFLICT DO NOTHING makes the insert
// conditional, so zero affected rows means the id already exists.
func (r *PostgresRegistry) Record(ctx context.Context, tokenID, subjectID string, issuedAt, expiresAt time.Time) error {
	return record(ctx, r.db, tokenID, subjectID, issuedAt, expiresAt)
}

func record(ctx context.Context, db dbx.DBTX, tokenID, subjectID string, issuedAt, expiresAt time.Time) error {
	query := `
		INSERT INTO refresh_tokens (token_id, user_id, issued_at, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (token_id) DO NOTHING
	`
	res, err := db.ExecContext(ctx, query, tokenID, subjectID, issuedAt, expiresAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrDuplicateTokenID
	}
	return nil
}

// IsActive checks revocation and expiry in the query itself.
func (r *PostgresRegistry) IsActive(ctx context.Context, tokenID string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM refresh_tokens
			WHERE token_id = $1 AND revoked_at IS NULL AND expires_at > $2
		)
	`
	var active bool
	if err := r.db.QueryRowContext(ctx, query, tokenID, r.now()).Scan(&active); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return active, nil
}

// Find returns the entry for tokenID, or common.ErrorNotFound.
func (r *PostgresRegistry) Find(ctx context.Context, tokenID string) (*models.RefreshToken, error) {
	return find(ctx, r.db, tokenID)
}

func find(ctx context.Context, db dbx.DBTX, tokenID string) (*models.RefreshToken, error) {
	query := `
		SELECT token_id, user_id, issued_at, expires_at, revoked_at
		FROM refresh_tokens
		WHERE token_id = $1
	`
	t := &models.RefreshToken{}
	var revokedAt sql.NullTime
	err := db.QueryRowContext(ctx, query, tokenID).
		Scan(&t.TokenID, &t.UserID, &t.IssuedAt, &t.ExpiresAt, &revokedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	if revokedAt.Valid {
		t.Revoked = true
		t.RevokedAt = &revokedAt.Time
	}
	return t, nil
}

// Revoke stamps revoked_at once; later calls leave the first timestamp.
func (r *PostgresRegistry) Revoke(ctx context.Context, tokenID string) error {
	query := `
		UPDATE refresh_tokens SET revoked_at = $2
		WHERE token_id = $1 AND revoked_at IS NULL
	`
	if _, err := r.db.ExecContext(ctx, query, tokenID, r.now()); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// Rotate runs in a transaction when the registry holds a *sql.DB. When it is
// already bound to a transaction the caller owns commit and rollback.
func (r *PostgresRegistry) Rotate(ctx context.Context, oldTokenID string, next *models.RefreshToken) error {
	if db, ok := r.db.(*sql.DB); ok {
		return dbx.WithTx(ctx, db, nil, func(ctx context.Context, tx dbx.DBTX) error {
			return r.rotate(ctx, tx, oldTokenID, next)
		})
	}
	return r.rotate(ctx, r.db, oldTokenID, next)
}

func (r *PostgresRegistry) rotate(ctx context.Context, db dbx.DBTX, oldTokenID string, next *models.RefreshToken) error {
	now := r.now()

	query := `
		UPDATE refresh_tokens SET revoked_at = $2
		WHERE token_id = $1 AND revoked_at IS NULL AND expires_at > $2
	`
	res, err := db.ExecContext(ctx, query, oldTokenID, now)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	if n == 0 {
		old, err := find(ctx, db, oldTokenID)
		if err != nil {
			return err
		}
		return classify(old, now)
	}

	return record(ctx, db, next.TokenID, next.UserID, next.IssuedAt, next.ExpiresAt)
}

// RevokeAllForSubject revokes every live entry of subjectID.
func (r *PostgresRegistry) RevokeAllForSubject(ctx context.Context, subjectID string) error {
	query := `
		UPDATE refresh_tokens SET revoked_at = $2
		WHERE user_id = $1 AND revoked_at IS NULL
	`
	if _, err := r.db.ExecContext(ctx, query, subjectID, r.now()); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// DeleteExpired removes rows with expires_at <= before.
func (r *PostgresRegistry) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	query := `
		DELETE FROM refresh_tokens
		WHERE expires_at <= $1
	`
	res, err := r.db.ExecContext(ctx, query, before)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}
