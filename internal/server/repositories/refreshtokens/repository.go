// Package refreshtokens tracks issued refresh tokens by token id so they can
// be revoked despite being stateless JWTs. Backends: in-memory, PostgreSQL,
// Redis and MongoDB.
package refreshtokens

import (
	"context"
	"time"

	"github.com/dmitrijs2005/authcore/internal/common"
	"github.com/dmitrijs2005/authcore/internal/server/models"
)

// Registry is the refresh token registry.
//
// Expiry is always checked against the clock at call time, so an entry past
// its expiry is never reported active even if it has not been swept yet.
type Registry interface {
	// Record inserts a live entry. A second Record with the same id fails with
	// common.ErrDuplicateTokenID.
	Record(ctx context.Context, tokenID, subjectID string, issuedAt, expiresAt time.Time) error

	// IsActive reports whether the entry exists, is not revoked and is not expired.
	IsActive(ctx context.Context, tokenID string) (bool, error)

	// Find returns the entry or common.ErrorNotFound.
	Find(ctx context.Context, tokenID string) (*models.RefreshToken, error)

	// Revoke marks the entry revoked. Revoking twice or revoking an unknown
	// id is not an error.
	Revoke(ctx context.Context, tokenID string) error

	// Rotate revokes oldTokenID only if it is currently active and records
	// next in the same step. It fails with common.ErrorNotFound,
	// common.ErrRefreshTokenRevoked or common.ErrTokenExpired describing the
	// state of the old entry, in which case next is not recorded.
	Rotate(ctx context.Context, oldTokenID string, next *models.RefreshToken) error

	// RevokeAllForSubject revokes every entry of subjectID.
	RevokeAllForSubject(ctx context.Context, subjectID string) error

	// DeleteExpired removes entries that expired at or before before and
	// returns how many were removed.
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// classify turns the state of an entry that could not be rotated into the
// matching error.
func classify(t *models.RefreshToken, now time.Time) error {
	if t.Revoked {
		return common.ErrRefreshTokenRevoked
	}
	if !now.Before(t.ExpiresAt) {
		return common.ErrTokenExpired
	}
	// lost a race with a concurrent revoke
	return common.ErrRefreshTokenRevoked
}
