package stores

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRoleCache backs the role/principal slug-set cache with Redis so the
// cache survives process restarts and is shared across instances. Every entry
// carries the TTL safety net; role invalidation deletes the role key and
// bumps a generation counter that prefixes every principal key, which retires
// all principal entries in one step without scanning.
type RedisRoleCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisRoleCache(client *redis.Client, ttl time.Duration) *RedisRoleCache {
	if ttl <= 0 {
		ttl = 3600 * time.Second
	}
	return &RedisRoleCache{client: client, prefix: "privcache", ttl: ttl}
}

func (c *RedisRoleCache) roleKey(roleID string) string {
	return fmt.Sprintf("%s:r:%s", c.prefix, roleID)
}

func (c *RedisRoleCache) genKey() string {
	return fmt.Sprintf("%s:gen", c.prefix)
}

func (c *RedisRoleCache) principalKey(ctx context.Context, principalID string) (string, error) {
	gen, err := c.client.Get(ctx, c.genKey()).Result()
	if err == redis.Nil {
		gen = "0"
	} else if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:p:%s:%s", c.prefix, gen, principalID), nil
}

func (c *RedisRoleCache) GetRoleSlugs(ctx context.Context, roleID string) ([]string, bool, error) {
	return c.get(ctx, c.roleKey(roleID))
}

func (c *RedisRoleCache) SetRoleSlugs(ctx context.Context, roleID string, slugs []string) error {
	return c.set(ctx, c.roleKey(roleID), slugs)
}

func (c *RedisRoleCache) GetPrincipalSlugs(ctx context.Context, principalID string) ([]string, bool, error) {
	key, err := c.principalKey(ctx, principalID)
	if err != nil {
		return nil, false, err
	}
	return c.get(ctx, key)
}

func (c *RedisRoleCache) SetPrincipalSlugs(ctx context.Context, principalID string, slugs []string) error {
	key, err := c.principalKey(ctx, principalID)
	if err != nil {
		return err
	}
	return c.set(ctx, key, slugs)
}

func (c *RedisRoleCache) InvalidateRole(ctx context.Context, roleID string) error {
	if err := c.client.Del(ctx, c.roleKey(roleID)).Err(); err != nil {
		return err
	}
	return c.client.Incr(ctx, c.genKey()).Err()
}

func (c *RedisRoleCache) InvalidatePrincipal(ctx context.Context, principalID string) error {
	key, err := c.principalKey(ctx, principalID)
	if err != nil {
		return err
	}
	return c.client.Del(ctx, key).Err()
}

func (c *RedisRoleCache) Flush(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, c.prefix+":r:*", 0).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}
	return c.client.Incr(ctx, c.genKey()).Err()
}

func (c *RedisRoleCache) get(ctx context.Context, key string) ([]string, bool, error) {
	raw, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var slugs []string
	if err := json.Unmarshal([]byte(raw), &slugs); err != nil {
		return nil, false, nil
	}
	return slugs, true, nil
}

func (c *RedisRoleCache) set(ctx context.Context, key string, slugs []string) error {
	raw, err := json.Marshal(slugs)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, string(raw), c.ttl).Err()
}
