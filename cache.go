package privilege

import (
	"context"
	"sync"
	"time"
)

// DefaultCacheTTL is the safety-net lifetime of cached slug sets, applied even
// when explicit invalidation never misses.
const DefaultCacheTTL = 3600 * time.Second

// RoleCache memoizes resolved privilege-slug sets. Role entries hold the slug
// set granted to one role; principal entries hold a principal's effective set
// (used by listing, never by point checks). Absence of an entry is not
// meaningful: there is no negative caching, a miss simply means "not yet
// computed".
//
// Invalidation contract: the engine calls InvalidateRole/InvalidatePrincipal
// after the corresponding grant mutation commits, and the call must complete
// before the mutation returns to its caller. InvalidateRole also retires all
// principal entries, since any principal may hold the role.
type RoleCache interface {
	GetRoleSlugs(ctx context.Context, roleID string) ([]string, bool, error)
	SetRoleSlugs(ctx context.Context, roleID string, slugs []string) error
	GetPrincipalSlugs(ctx context.Context, principalID string) ([]string, bool, error)
	SetPrincipalSlugs(ctx context.Context, principalID string, slugs []string) error
	InvalidateRole(ctx context.Context, roleID string) error
	InvalidatePrincipal(ctx context.Context, principalID string) error
	Flush(ctx context.Context) error
}

type cacheEntry struct {
	slugs     []string
	expiresAt time.Time
}

// MemoryRoleCache is the default RoleCache: a mutex-guarded map with TTL.
// InvalidateRole drops the whole principal map since any principal may hold
// the role; distributed implementations achieve the same with a generation
// counter baked into the key.
type MemoryRoleCache struct {
	mu         sync.RWMutex
	roles      map[string]cacheEntry
	principals map[string]cacheEntry
	ttl        time.Duration
	now        func() time.Time
}

func NewMemoryRoleCache(ttl time.Duration) *MemoryRoleCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &MemoryRoleCache{
		roles:      make(map[string]cacheEntry),
		principals: make(map[string]cacheEntry),
		ttl:        ttl,
		now:        time.Now,
	}
}

func (c *MemoryRoleCache) GetRoleSlugs(ctx context.Context, roleID string) ([]string, bool, error) {
	c.mu.RLock()
	entry, ok := c.roles[roleID]
	c.mu.RUnlock()
	if !ok || c.now().After(entry.expiresAt) {
		return nil, false, nil
	}
	return entry.slugs, true, nil
}

func (c *MemoryRoleCache) SetRoleSlugs(ctx context.Context, roleID string, slugs []string) error {
	c.mu.Lock()
	c.roles[roleID] = cacheEntry{slugs: slugs, expiresAt: c.now().Add(c.ttl)}
	c.mu.Unlock()
	return nil
}

func (c *MemoryRoleCache) GetPrincipalSlugs(ctx context.Context, principalID string) ([]string, bool, error) {
	c.mu.RLock()
	entry, ok := c.principals[principalID]
	c.mu.RUnlock()
	if !ok || c.now().After(entry.expiresAt) {
		return nil, false, nil
	}
	return entry.slugs, true, nil
}

func (c *MemoryRoleCache) SetPrincipalSlugs(ctx context.Context, principalID string, slugs []string) error {
	c.mu.Lock()
	c.principals[principalID] = cacheEntry{slugs: slugs, expiresAt: c.now().Add(c.ttl)}
	c.mu.Unlock()
	return nil
}

func (c *MemoryRoleCache) InvalidateRole(ctx context.Context, roleID string) error {
	c.mu.Lock()
	delete(c.roles, roleID)
	if len(c.principals) > 0 {
		c.principals = make(map[string]cacheEntry)
	}
	c.mu.Unlock()
	return nil
}

func (c *MemoryRoleCache) InvalidatePrincipal(ctx context.Context, principalID string) error {
	c.mu.Lock()
	delete(c.principals, principalID)
	c.mu.Unlock()
	return nil
}

func (c *MemoryRoleCache) Flush(ctx context.Context) error {
	c.mu.Lock()
	c.roles = make(map[string]cacheEntry)
	c.principals = make(map[string]cacheEntry)
	c.mu.Unlock()
	return nil
}
