// Package cache keeps resolved short codes in Redis so hot links skip the
// database (cache-aside: the resolver fills it on a miss).
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "url:"

type URLCache struct {
	rdb *redis.Client
}

func New(rdb *redis.Client) *URLCache {
	return &URLCache{rdb: rdb}
}

// Dial connects to Redis and checks the connection.
func Dial(ctx context.Context, addr, password string, db int) (*URLCache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("unable to connect to Redis: %w", err)
	}
	return New(rdb), nil
}

func key(code string) string {
	return keyPrefix + code
}

// Get returns the cached target for code. A miss is ok=false with a nil error.
func (c *URLCache) Get(ctx context.Context, code string) (target string, ok bool, err error) {
	target, err = c.rdb.Get(ctx, key(code)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("cache get %q: %w", code, err)
	}
	return target, true, nil
}

func (c *URLCache) Set(ctx context.Context, code, target string, ttl time.Duration) error {
	if err := c.rdb.Set(ctx, key(code), target, ttl).Err(); err != nil {
		return fmt.Errorf("cache set %q: %w", code, err)
	}
	return nil
}

func (c *URLCache) Close() error {
	return c.rdb.Close()
}
