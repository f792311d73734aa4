package cache

import (
	"context"

	"github.com/redis/go-redis/v9"

	"github.com/kishek/graph-store/logging"
)

// RedisCache is an alternate Cache implementation for deployments that run
// more than one process against the same partition, so the Read Cache can
// be shared rather than duplicated per process. Every key is namespaced
// under keyPrefix so InvalidateAll (a SCAN+DEL over that prefix) never
// touches another partition sharing the same Redis instance.
//
// Adapted from the donor's RedisCacher: same client, same glob-delete
// pattern for bulk invalidation, generalized from TTL-keyed entries to the
// spec's no-TTL, blanket-invalidation Read Cache.
type RedisCache struct {
	client    *redis.Client
	keyPrefix string
	log       *logging.Logger
}

// NewRedisCache wraps an existing Redis client, namespacing all keys under
// partitionID so multiple partitions can share one Redis instance.
func NewRedisCache(client *redis.Client, partitionID string) *RedisCache {
	return &RedisCache{client: client, keyPrefix: "gs:" + partitionID + ":", log: logging.Root()}
}

// ConnectRedis establishes a connection to Redis, mirroring the donor's
// driver.ConnectRedis.
func ConnectRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return rdb, nil
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	val, err := c.client.Get(ctx, c.keyPrefix+key).Bytes()
	if err != nil {
		return nil, false
	}
	return val, true
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte) {
	if err := c.client.Set(ctx, c.keyPrefix+key, value, 0).Err(); err != nil {
		c.log.With("cache").WithError(err).Warn("redis cache set failed")
	}
}

func (c *RedisCache) InvalidateAll(ctx context.Context) {
	iter := c.client.Scan(ctx, 0, c.keyPrefix+"*", 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		c.log.With("cache").WithError(err).Warn("redis cache scan failed during invalidateAll")
		return
	}
	if len(keys) == 0 {
		return
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.log.With("cache").WithError(err).Warn("redis cache invalidateAll failed")
	}
}
