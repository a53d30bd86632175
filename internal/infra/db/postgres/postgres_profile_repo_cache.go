package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"ubid-billing/internal/domain/model"
	"ubid-billing/internal/domain/ports/repository"
	"ubid-billing/internal/infra/metrics"
	red "ubid-billing/internal/infra/redis"
)

var _ repository.UserProfileRepository = (*profileRepoCacheDecorator)(nil)

// profileRepoCacheDecorator caches profile reads in Redis. Only single-row
// lookups are cached; list queries used by the renewal worker always hit the
// database so due-date scans never see stale rows.
type profileRepoCacheDecorator struct {
	inner repository.UserProfileRepository
	cache red.RedisClient
	ttl   time.Duration
}

func NewProfileRepoCacheDecorator(inner repository.UserProfileRepository, cache red.RedisClient, ttl time.Duration) repository.UserProfileRepository {
	return &profileRepoCacheDecorator{inner: inner, cache: cache, ttl: ttl}
}

func profileKey(id string) string      { return fmt.Sprintf("profile:id:%s", id) }
func profileEmailKey(em string) string { return fmt.Sprintf("profile:email:%s", em) }

// Writes invalidate both keys for the user.
func (d *profileRepoCacheDecorator) Save(ctx context.Context, tx repository.Tx, u *model.UserProfile) error {
	_ = d.cache.Del(ctx, profileKey(u.ID), profileEmailKey(u.Email))
	return d.inner.Save(ctx, tx, u)
}

func (d *profileRepoCacheDecorator) UpdatePendingChange(ctx context.Context, tx repository.Tx, id string, patch repository.PendingChangePatch) error {
	if u, err := d.inner.FindByID(ctx, tx, id); err == nil {
		_ = d.cache.Del(ctx, profileKey(id), profileEmailKey(u.Email))
	} else {
		_ = d.cache.Del(ctx, profileKey(id))
	}
	return d.inner.UpdatePendingChange(ctx, tx, id, patch)
}

func (d *profileRepoCacheDecorator) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.UserProfile, error) {
	// Transactional reads bypass the cache: they exist to re-check state
	// under the version guard.
	if tx != nil {
		return d.inner.FindByID(ctx, tx, id)
	}
	key := profileKey(id)
	if val, err := d.cache.Get(ctx, key); err == nil {
		metrics.IncCacheRequest("profile", "hit")
		var u model.UserProfile
		if json.Unmarshal([]byte(val), &u) == nil {
			return &u, nil
		}
	} else if err != redis.Nil {
		// Redis being down degrades to plain DB reads.
		return d.inner.FindByID(ctx, tx, id)
	}

	metrics.IncCacheRequest("profile", "miss")
	u, err := d.inner.FindByID(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	d.fill(ctx, u)
	return u, nil
}

func (d *profileRepoCacheDecorator) FindByEmail(ctx context.Context, tx repository.Tx, email string) (*model.UserProfile, error) {
	if tx != nil {
		return d.inner.FindByEmail(ctx, tx, email)
	}
	if val, err := d.cache.Get(ctx, profileEmailKey(email)); err == nil {
		metrics.IncCacheRequest("profile", "hit")
		var u model.UserProfile
		if json.Unmarshal([]byte(val), &u) == nil {
			return &u, nil
		}
	}
	metrics.IncCacheRequest("profile", "miss")
	u, err := d.inner.FindByEmail(ctx, tx, email)
	if err != nil {
		return nil, err
	}
	d.fill(ctx, u)
	return u, nil
}

// fill warms both keys for the user.
func (d *profileRepoCacheDecorator) fill(ctx context.Context, u *model.UserProfile) {
	if u == nil {
		return
	}
	bytes, err := json.Marshal(u)
	if err != nil {
		return
	}
	_ = d.cache.Set(ctx, profileKey(u.ID), bytes, d.ttl)
	_ = d.cache.Set(ctx, profileEmailKey(u.Email), bytes, d.ttl)
}

func (d *profileRepoCacheDecorator) ListDuePending(ctx context.Context, tx repository.Tx, now time.Time) ([]*model.UserProfile, error) {
	return d.inner.ListDuePending(ctx, tx, now)
}

func (d *profileRepoCacheDecorator) ListDueRenewals(ctx context.Context, tx repository.Tx, now time.Time) ([]*model.UserProfile, error) {
	return d.inner.ListDueRenewals(ctx, tx, now)
}

func (d *profileRepoCacheDecorator) CountByTier(ctx context.Context, tx repository.Tx) (map[model.Tier]int, error) {
	return d.inner.CountByTier(ctx, tx)
}
