// Package users stores credential records: id, email and password hash.
package users

import (
	"context"

	"github.com/dmitrijs2005/authcore/internal/server/models"
)

// Repository is the credential store. Emails are normalized by the
// implementation, so callers may pass them as typed by the user.
//
// GetUserByEmail returns common.ErrorNotFound when no user matches and
// Create returns common.ErrEmailTaken on a duplicate email.
// UpdatePasswordHash returns common.ErrorNotFound for an unknown id.
type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	UpdatePasswordHash(ctx context.Context, userID, hash string) error
}
