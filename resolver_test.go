package privilege

import (
	"context"
	"testing"
	"time"
)

func testResolver() (*Resolver, *MemoryRoleStore, *MemoryGrantStore, *MemoryMembershipStore) {
	roles := NewMemoryRoleStore()
	grants := NewMemoryGrantStore()
	memberships := NewMemoryMembershipStore()
	r := NewResolver(roles, grants, memberships, NewMemoryRoleCache(time.Minute))
	return r, roles, grants, memberships
}

func TestResolverDirectGrant(t *testing.T) {
	ctx := context.Background()
	r, _, grants, _ := testResolver()
	now := time.Now()

	g := NewGrantBuilder().ID("g1").Principal("user-1").Privilege("users.create").GrantedAt(now).Build()
	if err := grants.CreateGrant(ctx, g); err != nil {
		t.Fatalf("create grant: %v", err)
	}

	ok, matchedBy, err := r.HasPrivilege(ctx, &Principal{ID: "user-1"}, "users.create", nil)
	if err != nil {
		t.Fatalf("has privilege: %v", err)
	}
	if !ok || matchedBy != "direct" {
		t.Fatalf("expected direct match, got ok=%v matchedBy=%q", ok, matchedBy)
	}
}

func TestResolverRoleGrant(t *testing.T) {
	ctx := context.Background()
	r, roles, grants, memberships := testResolver()
	now := time.Now()

	_ = roles.CreateRole(ctx, &Role{ID: "role-1", Slug: "editor", CreatedAt: now})
	_ = grants.CreateGrant(ctx, NewGrantBuilder().ID("g1").Role("role-1").Privilege("posts.edit").GrantedAt(now).Build())
	_ = memberships.AssignRole(ctx, &RoleAssignment{PrincipalID: "user-1", RoleID: "role-1", Lifetime: Lifetime{GrantedAt: now}})

	ok, matchedBy, err := r.HasPrivilege(ctx, &Principal{ID: "user-1"}, "posts.edit", nil)
	if err != nil {
		t.Fatalf("has privilege: %v", err)
	}
	if !ok || matchedBy != "role:role-1" {
		t.Fatalf("expected role match, got ok=%v matchedBy=%q", ok, matchedBy)
	}
}

func TestResolverScopeStrictness(t *testing.T) {
	ctx := context.Background()
	r, _, grants, _ := testResolver()
	now := time.Now()
	principal := &Principal{ID: "user-1"}

	scoped := NewGrantBuilder().ID("g1").Principal("user-1").Privilege("projects.edit").
		Scope("project", "42").GrantedAt(now).Build()
	_ = grants.CreateGrant(ctx, scoped)
	unscoped := NewGrantBuilder().ID("g2").Principal("user-1").Privilege("projects.view").GrantedAt(now).Build()
	_ = grants.CreateGrant(ctx, unscoped)

	// scoped grant satisfies only its own scope
	if ok, _, _ := r.HasPrivilege(ctx, principal, "projects.edit", &Scope{Type: "project", ID: "42"}); !ok {
		t.Fatalf("matching scope must be allowed")
	}
	if ok, _, _ := r.HasPrivilege(ctx, principal, "projects.edit", &Scope{Type: "project", ID: "99"}); ok {
		t.Fatalf("different scope id must be denied")
	}
	if ok, _, _ := r.HasPrivilege(ctx, principal, "projects.edit", nil); ok {
		t.Fatalf("scoped grant must not satisfy a scope-less check")
	}
	// scope-less grant does not satisfy a scoped check
	if ok, _, _ := r.HasPrivilege(ctx, principal, "projects.view", &Scope{Type: "project", ID: "42"}); ok {
		t.Fatalf("scope-less grant must not satisfy a scoped check")
	}
	if ok, _, _ := r.HasPrivilege(ctx, principal, "projects.view", nil); !ok {
		t.Fatalf("scope-less check against scope-less grant must be allowed")
	}
}

func TestResolverWildcardGating(t *testing.T) {
	ctx := context.Background()
	r, _, grants, _ := testResolver()
	now := time.Now()
	principal := &Principal{ID: "user-1"}

	_ = grants.CreateGrant(ctx, NewGrantBuilder().ID("g1").Principal("user-1").Privilege("users.*").GrantedAt(now).Build())

	if ok, _, _ := r.HasPrivilege(ctx, principal, "users.delete", nil); !ok {
		t.Fatalf("wildcard grant must match when wildcards are enabled")
	}
	r.wildcards = false
	if ok, _, _ := r.HasPrivilege(ctx, principal, "users.delete", nil); ok {
		t.Fatalf("wildcard must not match when wildcards are disabled")
	}
	// an exact check against the wildcard slug itself still works
	if ok, _, _ := r.HasPrivilege(ctx, principal, "users.*", nil); !ok {
		t.Fatalf("exact slug equality must survive wildcard gating")
	}
}

func TestResolverEffectivePrivileges(t *testing.T) {
	ctx := context.Background()
	r, roles, grants, memberships := testResolver()
	now := time.Now()
	principal := &Principal{ID: "user-1"}

	_ = roles.CreateRole(ctx, &Role{ID: "role-1", Slug: "editor", CreatedAt: now})
	_ = grants.CreateGrant(ctx, NewGrantBuilder().ID("g1").Principal("user-1").Privilege("users.view").GrantedAt(now).Build())
	_ = grants.CreateGrant(ctx, NewGrantBuilder().ID("g2").Principal("user-1").Privilege("projects.edit").
		Scope("project", "42").GrantedAt(now).Build())
	_ = grants.CreateGrant(ctx, NewGrantBuilder().ID("g3").Role("role-1").Privilege("users.view").GrantedAt(now).Build())
	_ = grants.CreateGrant(ctx, NewGrantBuilder().ID("g4").Role("role-1").Privilege("posts.edit").GrantedAt(now).Build())
	_ = memberships.AssignRole(ctx, &RoleAssignment{PrincipalID: "user-1", RoleID: "role-1", Lifetime: Lifetime{GrantedAt: now}})

	slugs, err := r.EffectivePrivileges(ctx, principal)
	if err != nil {
		t.Fatalf("effective privileges: %v", err)
	}
	want := []string{"posts.edit", "projects.edit", "users.view"}
	if len(slugs) != len(want) {
		t.Fatalf("expected %v, got %v", want, slugs)
	}
	for i := range want {
		if slugs[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, slugs)
		}
	}
}

func TestResolverSkipsDeadRoles(t *testing.T) {
	ctx := context.Background()
	r, roles, grants, memberships := testResolver()
	now := time.Now()
	principal := &Principal{ID: "user-1"}

	_ = roles.CreateRole(ctx, &Role{ID: "role-1", Slug: "editor", CreatedAt: now})
	_ = grants.CreateGrant(ctx, NewGrantBuilder().ID("g1").Role("role-1").Privilege("posts.edit").GrantedAt(now).Build())
	_ = memberships.AssignRole(ctx, &RoleAssignment{PrincipalID: "user-1", RoleID: "role-1", Lifetime: Lifetime{GrantedAt: now}})

	if ok, _, _ := r.HasPrivilege(ctx, principal, "posts.edit", nil); !ok {
		t.Fatalf("live role must confer its grants")
	}

	// the membership outlives the role; after the deletion's invalidation the
	// recompute must resolve the role to nothing
	if err := roles.DeleteRole(ctx, "role-1", now); err != nil {
		t.Fatalf("delete role: %v", err)
	}
	if err := r.cache.InvalidateRole(ctx, "role-1"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if ok, _, _ := r.HasPrivilege(ctx, principal, "posts.edit", nil); ok {
		t.Fatalf("dead role must confer nothing")
	}
	slugs, err := r.RolePrivilegeSlugs(ctx, "role-1")
	if err != nil {
		t.Fatalf("role slugs: %v", err)
	}
	if len(slugs) != 0 {
		t.Fatalf("dead role slug set must be empty, got %v", slugs)
	}
}

func TestResolverCachesRoleSlugs(t *testing.T) {
	ctx := context.Background()
	roles := NewMemoryRoleStore()
	grants := &countingGrantStore{inner: NewMemoryGrantStore()}
	memberships := NewMemoryMembershipStore()
	r := NewResolver(roles, grants, memberships, NewMemoryRoleCache(time.Minute))
	now := time.Now()

	_ = roles.CreateRole(ctx, &Role{ID: "role-1", Slug: "editor", CreatedAt: now})
	_ = grants.inner.CreateGrant(ctx, NewGrantBuilder().ID("g1").Role("role-1").Privilege("users.view").GrantedAt(now).Build())

	if _, err := r.RolePrivilegeSlugs(ctx, "role-1"); err != nil {
		t.Fatalf("first resolve: %v", err)
	}
	if _, err := r.RolePrivilegeSlugs(ctx, "role-1"); err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if grants.roleCalls != 1 {
		t.Fatalf("expected 1 store hit, got %d", grants.roleCalls)
	}
}

type countingGrantStore struct {
	inner     *MemoryGrantStore
	roleCalls int
}

func (s *countingGrantStore) CreateGrant(ctx context.Context, g *Grant) error {
	return s.inner.CreateGrant(ctx, g)
}

func (s *countingGrantStore) ActiveRoleGrants(ctx context.Context, roleID string, now time.Time) ([]*Grant, error) {
	s.roleCalls++
	return s.inner.ActiveRoleGrants(ctx, roleID, now)
}

func (s *countingGrantStore) ActiveDirectGrants(ctx context.Context, principalID string, now time.Time) ([]*Grant, error) {
	return s.inner.ActiveDirectGrants(ctx, principalID, now)
}

func (s *countingGrantStore) RevokeRoleGrant(ctx context.Context, roleID, slug string, revokedAt time.Time) error {
	return s.inner.RevokeRoleGrant(ctx, roleID, slug, revokedAt)
}

func (s *countingGrantStore) RevokeDirectGrant(ctx context.Context, principalID, slug string, scope *Scope, revokedAt time.Time) error {
	return s.inner.RevokeDirectGrant(ctx, principalID, slug, scope, revokedAt)
}
