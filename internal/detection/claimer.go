package detection

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisClaimer claims debounce keys with SET NX so that only one replica
// schedules the analysis of a thread.
type RedisClaimer struct {
	client *redis.Client
}

// NewRedisClaimer wraps an existing client.
func NewRedisClaimer(client *redis.Client) *RedisClaimer {
	return &RedisClaimer{client: client}
}

// NewRedisClaimerFromURL connects using a redis:// URL.
func NewRedisClaimerFromURL(url string) (*RedisClaimer, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	return NewRedisClaimer(redis.NewClient(opts)), nil
}

// Claim reports whether this process now owns key for ttl.
func (c *RedisClaimer) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := c.client.SetNX(ctx, key, time.Now().Unix(), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx %s: %w", key, err)
	}
	return ok, nil
}

// Ping checks connectivity.
func (c *RedisClaimer) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the underlying client.
func (c *RedisClaimer) Close() error {
	return c.client.Close()
}
