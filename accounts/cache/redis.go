package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"accountd/accounts"
	"accountd/pkg/logger"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	accountKeyPrefix = "Account3::"
	mapKeyPrefix     = "AccountMap::"
)

func accountKey(aci string) string { return accountKeyPrefix + aci }
func mapKey(secondary string) string { return mapKeyPrefix + secondary }

// RedisCache is the go-redis-backed Cache implementation.
type RedisCache struct {
	client *goredis.Client
	ttl    time.Duration
	log    *logger.Logger
}

func NewRedisCache(client *goredis.Client, ttl time.Duration, log *logger.Logger) *RedisCache {
	return &RedisCache{client: client, ttl: ttl, log: log}
}

func (c *RedisCache) Set(ctx context.Context, a *accounts.Account) error {
	body, err := json.Marshal(a)
	if err != nil {
		// An encode failure writing an Account to cache is a programming
		// bug, not a transport blip: it surfaces rather than logs-and-swallows.
		return fmt.Errorf("encode account for cache: %w", err)
	}

	pipe := c.client.Pipeline()
	pipe.Set(ctx, accountKey(a.ACI.String()), body, c.ttl)
	pipe.Set(ctx, mapKey(a.Number), a.ACI.String(), c.ttl)
	pipe.Set(ctx, mapKey(a.PNI.String()), a.ACI.String(), c.ttl)
	if a.Username != nil {
		pipe.Set(ctx, mapKey(*a.Username), a.ACI.String(), c.ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		c.log.WarnCtx(ctx, "cache set failed, degrading to store reads", zap.Error(err))
		return nil
	}
	return nil
}

func (c *RedisCache) Delete(ctx context.Context, a *accounts.Account) error {
	keys := []string{
		accountKey(a.ACI.String()),
		mapKey(a.Number),
		mapKey(a.PNI.String()),
	}
	if a.Username != nil {
		keys = append(keys, mapKey(*a.Username))
	}

	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.log.WarnCtx(ctx, "cache delete failed, stale entries may survive until TTL", zap.Error(err))
		return nil
	}
	return nil
}

func (c *RedisCache) GetByACI(ctx context.Context, aci string) (*accounts.Account, error) {
	data, err := c.client.Get(ctx, accountKey(aci)).Result()
	if err == goredis.Nil {
		return nil, nil
	}
	if err != nil {
		c.log.WarnCtx(ctx, "cache get failed, falling through to store", zap.Error(err))
		return nil, nil
	}

	var a accounts.Account
	if err := json.Unmarshal([]byte(data), &a); err != nil {
		c.log.WarnCtx(ctx, "cache decode failed, treating as miss", zap.Error(err))
		return nil, nil
	}
	return &a, nil
}

func (c *RedisCache) GetBySecondary(ctx context.Context, key string) (*accounts.Account, error) {
	aci, err := c.client.Get(ctx, mapKey(key)).Result()
	if err == goredis.Nil {
		return nil, nil
	}
	if err != nil {
		c.log.WarnCtx(ctx, "cache secondary lookup failed, falling through to store", zap.Error(err))
		return nil, nil
	}
	return c.GetByACI(ctx, aci)
}
