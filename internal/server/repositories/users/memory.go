package users

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/authcore/internal/common"
	"github.com/dmitrijs2005/authcore/internal/server/models"
	"github.com/google/uuid"
)

// MemoryRepository keeps users in a map keyed by normalized email.
type MemoryRepository struct {
	mu      sync.RWMutex
	byEmail map[string]models.User
	now     func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byEmail: map[string]models.User{}, now: time.Now}
}

func (r *MemoryRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	email := models.NormalizeEmail(user.Email)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byEmail[email]; exists {
		return nil, common.ErrEmailTaken
	}

	user.ID = uuid.NewString()
	user.Email = email
	user.CreatedAt = r.now().UTC()
	r.byEmail[email] = *user

	return user, nil
}

func (r *MemoryRepository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.byEmail[models.NormalizeEmail(email)]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &u, nil
}

func (r *MemoryRepository) UpdatePasswordHash(ctx context.Context, userID, hash string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for email, u := range r.byEmail {
		if u.ID == userID {
			u.PasswordHash = hash
			r.byEmail[email] = u
			return nil
		}
	}
	return common.ErrorNotFound
}
