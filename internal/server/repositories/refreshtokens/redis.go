package refreshtokens

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/authcore/internal/common"
	"github.com/dmitrijs2005/authcore/internal/server/models"
	"github.com/redis/go-redis/v9"
)

const (
	redisTokenPrefix   = "refresh:"
	redisSubjectPrefix = "refresh:subject:"

	// optimistic transactions give up after this many conflicting writers
	redisMaxRetries = 5
)

// RedisRegistry stores each entry as JSON under refresh:<id> with a TTL equal
// to the time left until expiry, so Redis evicts expired entries itself.
// refresh:subject:<sub> is a set of the subject's token ids.
type RedisRegistry struct {
	rdb redis.UniversalClient
	now func() time.Time
}

func NewRedisRegistry(rdb redis.UniversalClient) *RedisRegistry {
	return &RedisRegistry{rdb: rdb, now: time.Now}
}

func tokenKey(id string) string { return redisTokenPrefix + id }
func subjectKey(sub string) string { return redisSubjectPrefix + sub }

func (r *RedisRegistry) ttl(expiresAt time.Time) time.Duration {
	d := expiresAt.Sub(r.now())
	if d < time.Millisecond {
		d = time.Millisecond
	}
	return d
}

func (r *RedisRegistry) Record(ctx context.Context, tokenID, subjectID string, issuedAt, expiresAt time.Time) error {
	data, err := json.Marshal(models.RefreshToken{
		TokenID:   tokenID,
		UserID:    subjectID,
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
	})
	if err != nil {
		return err
	}

	ok, err := r.rdb.SetNX(ctx, tokenKey(tokenID), data, r.ttl(expiresAt)).Result()
	if err != nil {
		return fmt.Errorf("redis error: %w", err)
	}
	if !ok {
		return common.ErrDuplicateTokenID
	}

	// an entry missing from its subject index would escape RevokeAllForSubject
	if err := r.rdb.SAdd(ctx, subjectKey(subjectID), tokenID).Err(); err != nil {
		if delErr := r.rdb.Del(context.WithoutCancel(ctx), tokenKey(tokenID)).Err(); delErr != nil {
			err = errors.Join(err, delErr)
		}
		return fmt.Errorf("redis error: %w", err)
	}
	return nil
}

func getToken(ctx context.Context, c redis.Cmdable, tokenID string) (*models.RefreshToken, error) {
	data, err := c.Get(ctx, tokenKey(tokenID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("redis error: %w", err)
	}

	t := &models.RefreshToken{}
	if err := json.Unmarshal(data, t); err != nil {
		return nil, fmt.Errorf("decode refresh token %s: %w", tokenID, err)
	}
	return t, nil
}

func (r *RedisRegistry) IsActive(ctx context.Context, tokenID string) (bool, error) {
	t, err := getToken(ctx, r.rdb, tokenID)
	if errors.Is(err, common.ErrorNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return t.ActiveAt(r.now()), nil
}

func (r *RedisRegistry) Find(ctx context.Context, tokenID string) (*models.RefreshToken, error) {
	return getToken(ctx, r.rdb, tokenID)
}

// watch runs fn in a WATCH/MULTI transaction over keys, retrying when another
// client modified a watched key.
func (r *RedisRegistry) watch(ctx context.Context, fn func(tx *redis.Tx) error, keys ...string) error {
	for i := 0; i < redisMaxRetries; i++ {
		err := r.rdb.Watch(ctx, fn, keys...)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("redis error: %w", redis.TxFailedErr)
}

func (r *RedisRegistry) markRevoked(ctx context.Context, pipe redis.Pipeliner, t *models.RefreshToken, at time.Time) error {
	t.Revoked = true
	t.RevokedAt = &at
	data, err := json.Marshal(t)
	if err != nil {
		return err
	}
	pipe.Set(ctx, tokenKey(t.TokenID), data, redis.KeepTTL)
	return nil
}

func (r *RedisRegistry) Revoke(ctx context.Context, tokenID string) error {
	return r.watch(ctx, func(tx *redis.Tx) error {
		t, err := getToken(ctx, tx, tokenID)
		if errors.Is(err, common.ErrorNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if t.Revoked {
			return nil
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			return r.markRevoked(ctx, pipe, t, r.now())
		})
		return err
	}, tokenKey(tokenID))
}

func (r *RedisRegistry) Rotate(ctx context.Context, oldTokenID string, next *models.RefreshToken) error {
	nextData, err := json.Marshal(next)
	if err != nil {
		return err
	}

	return r.watch(ctx, func(tx *redis.Tx) error {
		old, err := getToken(ctx, tx, oldTokenID)
		if err != nil {
			return err
		}
		now := r.now()
		if !old.ActiveAt(now) {
			return classify(old, now)
		}

		exists, err := tx.Exists(ctx, tokenKey(next.TokenID)).Result()
		if err != nil {
			return fmt.Errorf("redis error: %w", err)
		}
		if exists > 0 {
			return common.ErrDuplicateTokenID
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if err := r.markRevoked(ctx, pipe, old, now); err != nil {
				return err
			}
			pipe.Set(ctx, tokenKey(next.TokenID), nextData, r.ttl(next.ExpiresAt))
			pipe.SAdd(ctx, subjectKey(next.UserID), next.TokenID)
			return nil
		})
		return err
	}, tokenKey(oldTokenID), tokenKey(next.TokenID))
}

// RevokeAllForSubject revokes every indexed token of subjectID and drops index
// members whose key has already expired.
func (r *RedisRegistry) RevokeAllForSubject(ctx context.Context, subjectID string) error {
	ids, err := r.rdb.SMembers(ctx, subjectKey(subjectID)).Result()
	if err != nil {
		return fmt.Errorf("redis error: %w", err)
	}

	for _, id := range ids {
		if err := r.Revoke(ctx, id); err != nil {
			return err
		}
	}

	_, err = r.pruneSubject(ctx, subjectKey(subjectID))
	return err
}

// DeleteExpired has nothing to delete since key expiry evicts entries. It
// prunes subject index members that point at evicted keys and returns how
// many it removed.
func (r *RedisRegistry) DeleteExpired(ctx context.Context, _ time.Time) (int64, error) {
	var (
		total  int64
		cursor uint64
	)
	for {
		keys, next, err := r.rdb.Scan(ctx, cursor, redisSubjectPrefix+"*", 100).Result()
		if err != nil {
			return total, fmt.Errorf("redis error: %w", err)
		}
		for _, k := range keys {
			n, err := r.pruneSubject(ctx, k)
			if err != nil {
				return total, err
			}
			total += n
		}
		if next == 0 {
			return total, nil
		}
		cursor = next
	}
}

func (r *RedisRegistry) pruneSubject(ctx context.Context, key string) (int64, error) {
	ids, err := r.rdb.SMembers(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis error: %w", err)
	}

	var stale []any
	for _, id := range ids {
		n, err := r.rdb.Exists(ctx, tokenKey(id)).Result()
		if err != nil {
			return 0, fmt.Errorf("redis error: %w", err)
		}
		if n == 0 {
			stale = append(stale, id)
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}

	n, err := r.rdb.SRem(ctx, key, stale...).Result()
	if err != nil {
		return 0, fmt.Errorf("redis error: %w", err)
	}
	return n, nil
}
