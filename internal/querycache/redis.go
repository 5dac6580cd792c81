package querycache

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisCache shares entries between hosts. Keys are "<prefix>:<key>" and
// never expire.
type RedisCache struct {
	rc     redis.UniversalClient
	prefix string
}

func NewRedisCache(rc redis.UniversalClient, prefix string) *RedisCache {
	if prefix == "" {
		prefix = "simpl"
	}
	return &RedisCache{rc: rc, prefix: prefix}
}

func (c *RedisCache) key(k string) string { return c.prefix + ":query:" + k }

func (c *RedisCache) Get(ctx context.Context, key string) (*Entry, bool, error) {
	b, err := c.rc.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("querycache: redis get: %w", err)
	}
	e, err := Unmarshal(b)
	if err != nil {
		return nil, false, err
	}
	return e, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, e *Entry) error {
	b, err := Marshal(e)
	if err != nil {
		return err
	}
	if err := c.rc.Set(ctx, c.key(key), b, 0).Err(); err != nil {
		return fmt.Errorf("querycache: redis set: %w", err)
	}
	return nil
}

func (c *RedisCache) keys(ctx context.Context) ([]string, error) {
	var out []string
	iter := c.rc.Scan(ctx, 0, c.key("*"), 200).Iterator()
	for iter.Next(ctx) {
		out = append(out, iter.Val())
	}
	return out, iter.Err()
}

func (c *RedisCache) Clear(ctx context.Context) error {
	keys, err := c.keys(ctx)
	if err != nil {
		return fmt.Errorf("querycache: redis scan: %w", err)
	}
	for len(keys) > 0 {
		n := min(len(keys), 500)
		if err := c.rc.Del(ctx, keys[:n]...).Err(); err != nil {
			return fmt.Errorf("querycache: redis del: %w", err)
		}
		keys = keys[n:]
	}
	return nil
}

// Writable is optimistic; a failing Set is reported by the caller.
func (c *RedisCache) Writable() bool { return true }

func (c *RedisCache) Stats(ctx context.Context) (Stats, error) {
	keys, err := c.keys(ctx)
	if err != nil {
		return Stats{Backend: "redis"}, err
	}
	st := Stats{Backend: "redis", Entries: len(keys)}
	for _, k := range keys {
		n, err := c.rc.StrLen(ctx, k).Result()
		if err == nil {
			st.Bytes += n
		}
	}
	return st, nil
}

func (c *RedisCache) Close() error { return c.rc.Close() }
