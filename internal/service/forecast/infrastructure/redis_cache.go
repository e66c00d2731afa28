package infrastructure

import (
	"context"
	"time"

	"github.com/pkg/errors"
	goredis "github.com/redis/go-redis/v9"

	"demandcast/internal/pkg/redis"
)

// RedisForecastCache 是 domain.ForecastCache 的 Redis 实现。
// key 中带有模型版本，模型切换后旧结果自然失效。
type RedisForecastCache struct {
	redisClient *redis.Client
}

func NewRedisForecastCache(redisClient *redis.Client) *RedisForecastCache {
	return &RedisForecastCache{redisClient: redisClient}
}

func (c *RedisForecastCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := c.redisClient.GetClient().Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrapf(err, "redis get %s", key)
	}
	return b, true, nil
}

func (c *RedisForecastCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.redisClient.GetClient().Set(ctx, key, value, ttl).Err(); err != nil {
		return errors.Wrapf(err, "redis set %s", key)
	}
	return nil
}
