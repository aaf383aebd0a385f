package privilege

import (
	"context"
	"testing"
	"time"
)

func TestMemoryRoleCacheRoundtrip(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryRoleCache(time.Minute)

	if _, ok, _ := c.GetRoleSlugs(ctx, "role-1"); ok {
		t.Fatalf("expected miss on empty cache")
	}
	if err := c.SetRoleSlugs(ctx, "role-1", []string{"users.create"}); err != nil {
		t.Fatalf("set: %v", err)
	}
	slugs, ok, err := c.GetRoleSlugs(ctx, "role-1")
	if err != nil || !ok {
		t.Fatalf("expected hit, ok=%v err=%v", ok, err)
	}
	if len(slugs) != 1 || slugs[0] != "users.create" {
		t.Fatalf("unexpected slugs: %v", slugs)
	}
}

func TestMemoryRoleCacheTTLExpiry(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryRoleCache(time.Minute)
	base := time.Now()
	c.now = func() time.Time { return base }

	if err := c.SetRoleSlugs(ctx, "role-1", []string{"users.create"}); err != nil {
		t.Fatalf("set: %v", err)
	}
	c.now = func() time.Time { return base.Add(2 * time.Minute) }
	if _, ok, _ := c.GetRoleSlugs(ctx, "role-1"); ok {
		t.Fatalf("entry must expire after TTL")
	}
}

func TestMemoryRoleCacheInvalidateRoleClearsPrincipals(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryRoleCache(time.Minute)

	_ = c.SetRoleSlugs(ctx, "role-1", []string{"a.b"})
	_ = c.SetRoleSlugs(ctx, "role-2", []string{"c.d"})
	_ = c.SetPrincipalSlugs(ctx, "user-1", []string{"a.b", "c.d"})

	if err := c.InvalidateRole(ctx, "role-1"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if _, ok, _ := c.GetRoleSlugs(ctx, "role-1"); ok {
		t.Fatalf("invalidated role entry must be gone")
	}
	if _, ok, _ := c.GetRoleSlugs(ctx, "role-2"); !ok {
		t.Fatalf("other role entries must survive")
	}
	if _, ok, _ := c.GetPrincipalSlugs(ctx, "user-1"); ok {
		t.Fatalf("role invalidation must retire all principal entries")
	}
}

func TestMemoryRoleCacheInvalidatePrincipal(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryRoleCache(time.Minute)

	_ = c.SetPrincipalSlugs(ctx, "user-1", []string{"a.b"})
	_ = c.SetPrincipalSlugs(ctx, "user-2", []string{"c.d"})
	if err := c.InvalidatePrincipal(ctx, "user-1"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if _, ok, _ := c.GetPrincipalSlugs(ctx, "user-1"); ok {
		t.Fatalf("invalidated principal entry must be gone")
	}
	if _, ok, _ := c.GetPrincipalSlugs(ctx, "user-2"); !ok {
		t.Fatalf("other principal entries must survive")
	}
}

func TestMemoryRoleCacheFlush(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryRoleCache(time.Minute)

	_ = c.SetRoleSlugs(ctx, "role-1", []string{"a.b"})
	_ = c.SetPrincipalSlugs(ctx, "user-1", []string{"a.b"})
	if err := c.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if _, ok, _ := c.GetRoleSlugs(ctx, "role-1"); ok {
		t.Fatalf("flush must drop role entries")
	}
	if _, ok, _ := c.GetPrincipalSlugs(ctx, "user-1"); ok {
		t.Fatalf("flush must drop principal entries")
	}
}

func TestRistrettoRoleCache(t *testing.T) {
	ctx := context.Background()
	c, err := NewRistrettoRoleCache(RistrettoConfig{}, time.Minute)
	if err != nil {
		t.Fatalf("new ristretto cache: %v", err)
	}
	defer c.Close()

	if err := c.SetRoleSlugs(ctx, "role-1", []string{"users.create"}); err != nil {
		t.Fatalf("set: %v", err)
	}
	slugs, ok, err := c.GetRoleSlugs(ctx, "role-1")
	if err != nil || !ok {
		t.Fatalf("expected hit, ok=%v err=%v", ok, err)
	}
	if len(slugs) != 1 || slugs[0] != "users.create" {
		t.Fatalf("unexpected slugs: %v", slugs)
	}

	_ = c.SetPrincipalSlugs(ctx, "user-1", []string{"users.create"})
	if err := c.InvalidateRole(ctx, "role-1"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if _, ok, _ := c.GetRoleSlugs(ctx, "role-1"); ok {
		t.Fatalf("invalidated role entry must be gone")
	}
	// the generation bump makes the old principal entry unreachable
	if _, ok, _ := c.GetPrincipalSlugs(ctx, "user-1"); ok {
		t.Fatalf("role invalidation must retire principal entries")
	}
}
