package refreshtokens

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmitrijs2005/authcore/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRegistry_ConcurrentRecordSameID(t *testing.T) {
	reg := NewMemoryRegistry()
	ctx := context.Background()

	var ok atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if reg.Record(ctx, "same", fmt.Sprintf("u%d", i), t0, t0.Add(time.Hour)) == nil {
				ok.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 1, ok.Load())
}

func TestMemoryRegistry_ConcurrentRotateOneWinner(t *testing.T) {
	reg := NewMemoryRegistry()
	ctx := context.Background()
	require.NoError(t, reg.Record(ctx, "old", "u1", t0, time.Now().Add(time.Hour)))

	var ok atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			next := &models.RefreshToken{TokenID: fmt.Sprintf("n%d", i), UserID: "u1", IssuedAt: t0, ExpiresAt: time.Now().Add(time.Hour)}
			if reg.Rotate(ctx, "old", next) == nil {
				ok.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 1, ok.Load())

	// losers leave no entries behind
	var n int
	reg.entries.Range(func(_, _ any) bool { n++; return true })
	assert.Equal(t, 2, n)
}

func TestMemoryRegistry_DeleteExpired(t *testing.T) {
	reg := NewMemoryRegistry()
	ctx := context.Background()

	require.NoError(t, reg.Record(ctx, "a", "u1", t0, t0.Add(time.Minute)))
	require.NoError(t, reg.Record(ctx, "b", "u1", t0, t0.Add(2*time.Minute)))
	require.NoError(t, reg.Record(ctx, "c", "u1", t0, t0.Add(time.Hour)))

	n, err := reg.DeleteExpired(ctx, t0.Add(2*time.Minute))
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	_, err = reg.Find(ctx, "c")
	assert.NoError(t, err)
}

func TestMemoryRegistry_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	reg := NewMemoryRegistry()
	assert.ErrorIs(t, reg.Record(ctx, "a", "u1", t0, t0.Add(time.Hour)), context.Canceled)
	_, err := reg.IsActive(ctx, "a")
	assert.ErrorIs(t, err, context.Canceled)
}
