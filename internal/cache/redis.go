package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/loadmatch/dispatcher/config"
	"github.com/redis/go-redis/v9"
)

// RedisCache stores the ranked candidate remainder per booking so that
// advancement resumes the same wave across processes (API server and worker)
// instead of re-ranking after every rejection.
type RedisCache struct {
	client   *redis.Client
	queueTTL time.Duration
}

func NewRedisCache(cfg config.RedisConfig, queueTTL time.Duration) *RedisCache {
	return &RedisCache{
		client:   redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB}),
		queueTTL: queueTTL,
	}
}

func (c *RedisCache) GetQueue(ctx context.Context, bookingID int64) ([]int64, error) {
	data, err := c.client.Get(ctx, queueKey(bookingID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}

	var ids []int64
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

func (c *RedisCache) SetQueue(ctx context.Context, bookingID int64, vendorIDs []int64) error {
	payload, err := json.Marshal(vendorIDs)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, queueKey(bookingID), payload, c.queueTTL).Err()
}

func (c *RedisCache) DropQueue(ctx context.Context, bookingID int64) error {
	return c.client.Del(ctx, queueKey(bookingID)).Err()
}

func queueKey(bookingID int64) string {
	return fmt.Sprintf("dispatch:queue:%d", bookingID)
}
