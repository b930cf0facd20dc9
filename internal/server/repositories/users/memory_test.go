package users

import (
	"context"
	"sync"
	"testing"

	"github.com/dmitrijs2005/authcore/internal/common"
	"github.com/dmitrijs2005/authcore/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRepository_CreateAndGet(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	u, err := repo.Create(ctx, &models.User{Email: "Some.Email@Gmail.com", PasswordHash: "h"})
	require.NoError(t, err)
	assert.NotEmpty(t, u.ID)
	assert.Equal(t, "some.email@gmail.com", u.Email)
	assert.False(t, u.CreatedAt.IsZero())

	got, err := repo.GetUserByEmail(ctx, " SOME.EMAIL@gmail.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, "h", got.PasswordHash)
}

func TestMemoryRepository_DuplicateEmailCaseInsensitive(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	_, err := repo.Create(ctx, &models.User{Email: "a@b.c", PasswordHash: "h"})
	require.NoError(t, err)

	_, err = repo.Create(ctx, &models.User{Email: "A@B.C", PasswordHash: "h2"})
	assert.ErrorIs(t, err, common.ErrEmailTaken)
}

func TestMemoryRepository_NotFound(t *testing.T) {
	_, err := NewMemoryRepository().GetUserByEmail(context.Background(), "ghost@x.y")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestMemoryRepository_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewMemoryRepository().GetUserByEmail(ctx, "a@b.c")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMemoryRepository_ConcurrentCreateSameEmail(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := repo.Create(ctx, &models.User{Email: "race@x.y", PasswordHash: "h"}); err == nil {
				mu.Lock()
				success++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, success)
}

func TestMemoryRepository_UpdatePasswordHash(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	u, err := repo.Create(ctx, &models.User{Email: "a@example.com", PasswordHash: "old"})
	require.NoError(t, err)

	require.NoError(t, repo.UpdatePasswordHash(ctx, u.ID, "new"))
	got, err := repo.GetUserByEmail(ctx, "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, "new", got.PasswordHash)

	assert.ErrorIs(t, repo.UpdatePasswordHash(ctx, "missing", "x"), common.ErrorNotFound)
}
