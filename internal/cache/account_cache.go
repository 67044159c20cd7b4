// Package cache keeps resolved accounts in Redis so authenticated requests
// skip the account lookup. A nil client turns every call into a no-op.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"backoffice/internal/model"
	"backoffice/pkg/logger"
	"backoffice/pkg/metrics"

	"github.com/redis/go-redis/v9"
)

const accountCacheName = "account"

// Connect opens a Redis client and pings it. An empty addr returns a nil
// client, which disables caching.
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	if addr == "" {
		return nil, nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("cache: redis ping: %w", err)
	}
	return rdb, nil
}

type AccountCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewAccountCache(rdb *redis.Client, ttl time.Duration) *AccountCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &AccountCache{rdb: rdb, ttl: ttl}
}

func subjectKey(subjectID string) string {
	return "account:subject:" + subjectID
}

// Get returns the cached account for subjectID. Misses and decode errors both
// report false.
func (c *AccountCache) Get(ctx context.Context, subjectID string) (*model.Account, bool) {
	if c == nil || c.rdb == nil {
		return nil, false
	}

	val, err := c.rdb.Get(ctx, subjectKey(subjectID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.WithCtx(ctx).Warn("account cache read failed", "error", err)
		}
		metrics.CacheMisses.WithLabelValues(accountCacheName).Inc()
		return nil, false
	}

	var account model.Account
	if err := json.Unmarshal(val, &account); err != nil {
		metrics.CacheMisses.WithLabelValues(accountCacheName).Inc()
		return nil, false
	}
	for i := range account.Permissions {
		account.Permissions[i].AccountID = account.ID
	}

	metrics.CacheHits.WithLabelValues(accountCacheName).Inc()
	return &account, true
}

func (c *AccountCache) Set(ctx context.Context, account *model.Account) {
	if c == nil || c.rdb == nil || account == nil {
		return
	}
	data, err := json.Marshal(account)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, subjectKey(account.SubjectID), data, c.ttl).Err(); err != nil {
		logger.WithCtx(ctx).Warn("account cache write failed", "error", err)
	}
}

// Invalidate drops the cached entry; callers run it after every account write commits.
func (c *AccountCache) Invalidate(ctx context.Context, subjectID string) {
	if c == nil || c.rdb == nil {
		return
	}
	if err := c.rdb.Del(ctx, subjectKey(subjectID)).Err(); err != nil {
		logger.WithCtx(ctx).Warn("account cache invalidate failed", "error", err)
	}
}
