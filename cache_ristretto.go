package privilege

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/ristretto"
)

// RistrettoRoleCache is an in-process RoleCache backed by ristretto, for
// deployments where the slug sets are large enough to want cost-based
// eviction. Principal entries embed a generation counter in the key so
// InvalidateRole retires all of them with a single increment; the orphaned
// entries age out via ristretto's own TTL handling.
type RistrettoRoleCache struct {
	cache *ristretto.Cache
	gen   atomic.Uint64
	ttl   time.Duration
}

// RistrettoConfig carries the sizing knobs passed through to ristretto.
type RistrettoConfig struct {
	NumCounters int64
	MaxCost     int64
	BufferItems int64
}

func NewRistrettoRoleCache(cfg RistrettoConfig, ttl time.Duration) (*RistrettoRoleCache, error) {
	if cfg.NumCounters <= 0 {
		cfg.NumCounters = 1e6
	}
	if cfg.MaxCost <= 0 {
		cfg.MaxCost = 1 << 26
	}
	if cfg.BufferItems <= 0 {
		cfg.BufferItems = 64
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: cfg.BufferItems,
	})
	if err != nil {
		return nil, err
	}
	return &RistrettoRoleCache{cache: cache, ttl: ttl}, nil
}

func (c *RistrettoRoleCache) roleKey(roleID string) string {
	return "r:" + roleID
}

func (c *RistrettoRoleCache) principalKey(principalID string) string {
	return fmt.Sprintf("p:%d:%s", c.gen.Load(), principalID)
}

func (c *RistrettoRoleCache) get(key string) ([]string, bool) {
	v, ok := c.cache.Get(key)
	if !ok {
		return nil, false
	}
	slugs, ok := v.([]string)
	return slugs, ok
}

// set stores slugs under key and waits for the write buffer to drain so a
// read that follows the mutation observes it.
func (c *RistrettoRoleCache) set(key string, slugs []string) {
	c.cache.SetWithTTL(key, slugs, int64(len(slugs))+1, c.ttl)
	c.cache.Wait()
}

func (c *RistrettoRoleCache) GetRoleSlugs(ctx context.Context, roleID string) ([]string, bool, error) {
	slugs, ok := c.get(c.roleKey(roleID))
	return slugs, ok, nil
}

func (c *RistrettoRoleCache) SetRoleSlugs(ctx context.Context, roleID string, slugs []string) error {
	c.set(c.roleKey(roleID), slugs)
	return nil
}

func (c *RistrettoRoleCache) GetPrincipalSlugs(ctx context.Context, principalID string) ([]string, bool, error) {
	slugs, ok := c.get(c.principalKey(principalID))
	return slugs, ok, nil
}

func (c *RistrettoRoleCache) SetPrincipalSlugs(ctx context.Context, principalID string, slugs []string) error {
	c.set(c.principalKey(principalID), slugs)
	return nil
}

func (c *RistrettoRoleCache) InvalidateRole(ctx context.Context, roleID string) error {
	c.cache.Del(c.roleKey(roleID))
	c.gen.Add(1)
	return nil
}

func (c *RistrettoRoleCache) InvalidatePrincipal(ctx context.Context, principalID string) error {
	c.cache.Del(c.principalKey(principalID))
	return nil
}

func (c *RistrettoRoleCache) Flush(ctx context.Context) error {
	c.cache.Clear()
	c.gen.Add(1)
	return nil
}

// Close releases ristretto's internal goroutines.
func (c *RistrettoRoleCache) Close() {
	c.cache.Close()
}
