package refreshtokens

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmitrijs2005/authcore/internal/common"
	"github.com/dmitrijs2005/authcore/internal/server/models"
)

type memoryEntry struct {
	tokenID   string
	userID    string
	issuedAt  time.Time
	expiresAt time.Time
	revoked   atomic.Bool
	revokedAt atomic.Pointer[time.Time]
}

func (e *memoryEntry) revoke(at time.Time) bool {
	if !e.revoked.CompareAndSwap(false, true) {
		return false
	}
	e.revokedAt.Store(&at)
	return true
}

func (e *memoryEntry) snapshot() *models.RefreshToken {
	return &models.RefreshToken{
		TokenID:   e.tokenID,
		UserID:    e.userID,
		IssuedAt:  e.issuedAt,
		ExpiresAt: e.expiresAt,
		Revoked:   e.revoked.Load(),
		RevokedAt: e.revokedAt.Load(),
	}
}

// MemoryRegistry keeps entries in a sync.Map. Inserts use LoadOrStore and
// revocation is a compare-and-swap on the entry, so no lock spans tokens.
type MemoryRegistry struct {
	entries sync.Map // tokenID -> *memoryEntry
	now     func() time.Time
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{now: time.Now}
}

func (r *MemoryRegistry) Record(ctx context.Context, tokenID, subjectID string, issuedAt, expiresAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	e := &memoryEntry{tokenID: tokenID, userID: subjectID, issuedAt: issuedAt, expiresAt: expiresAt}
	if _, loaded := r.entries.LoadOrStore(tokenID, e); loaded {
		return common.ErrDuplicateTokenID
	}
	return nil
}

func (r *MemoryRegistry) load(tokenID string) (*memoryEntry, bool) {
	v, ok := r.entries.Load(tokenID)
	if !ok {
		return nil, false
	}
	return v.(*memoryEntry), true
}

func (r *MemoryRegistry) IsActive(ctx context.Context, tokenID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	e, ok := r.load(tokenID)
	if !ok {
		return false, nil
	}
	return !e.revoked.Load() && r.now().Before(e.expiresAt), nil
}

func (r *MemoryRegistry) Find(ctx context.Context, tokenID string) (*models.RefreshToken, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e, ok := r.load(tokenID)
	if !ok {
		return nil, common.ErrorNotFound
	}
	return e.snapshot(), nil
}

func (r *MemoryRegistry) Revoke(ctx context.Context, tokenID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if e, ok := r.load(tokenID); ok {
		e.revoke(r.now())
	}
	return nil
}

func (r *MemoryRegistry) Rotate(ctx context.Context, oldTokenID string, next *models.RefreshToken) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	old, ok := r.load(oldTokenID)
	if !ok {
		return common.ErrorNotFound
	}

	now := r.now()
	if !now.Before(old.expiresAt) {
		return common.ErrTokenExpired
	}

	// reserve the new id first so a duplicate leaves the old entry untouched
	ne := &memoryEntry{tokenID: next.TokenID, userID: next.UserID, issuedAt: next.IssuedAt, expiresAt: next.ExpiresAt}
	if _, loaded := r.entries.LoadOrStore(next.TokenID, ne); loaded {
		return common.ErrDuplicateTokenID
	}

	if !old.revoke(now) {
		r.entries.CompareAndDelete(next.TokenID, ne)
		return common.ErrRefreshTokenRevoked
	}
	return nil
}

func (r *MemoryRegistry) RevokeAllForSubject(ctx context.Context, subjectID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	now := r.now()
	r.entries.Range(func(_, v any) bool {
		if e := v.(*memoryEntry); e.userID == subjectID {
			e.revoke(now)
		}
		return true
	})
	return nil
}

func (r *MemoryRegistry) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var n int64
	r.entries.Range(func(k, v any) bool {
		if e := v.(*memoryEntry); !e.expiresAt.After(before) {
			if r.entries.CompareAndDelete(k, v) {
				n++
			}
		}
		return true
	})
	return n, nil
}
