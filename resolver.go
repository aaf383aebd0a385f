package privilege

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/oarkflow/privilege/logger"
)

// ============================================================================
// PRIVILEGE RESOLVER
// ============================================================================

// Resolver computes a principal's effective privileges from active direct
// grants and active role memberships, consulting the RoleCache for per-role
// slug sets. It is purely a read path: it never mutates grants and never
// removes expired rows (cleanup belongs to whoever owns persistence).
//
// The resolver does not short-circuit super admins; that bypass is defined
// exactly once, at the decision point.
type Resolver struct {
	roles       RoleStore
	grants      GrantStore
	memberships MembershipStore
	cache       RoleCache
	wildcards   bool
	now         func() time.Time
	logger      Logger
}

func NewResolver(roles RoleStore, grants GrantStore, memberships MembershipStore, cache RoleCache) *Resolver {
	return &Resolver{
		roles:       roles,
		grants:      grants,
		memberships: memberships,
		cache:       cache,
		wildcards:   true,
		now:         time.Now,
		logger:      logger.NewNullLogger(),
	}
}

// slugMatches applies the exact-then-wildcard test for one held slug against
// the requested one. The wildcard branch is skipped entirely when wildcards
// are disabled.
func (r *Resolver) slugMatches(held, requested string) bool {
	if held == requested {
		return true
	}
	if r.wildcards && IsWildcardSlug(held) {
		return Matches(held, requested)
	}
	return false
}

// scopeSatisfied reports whether a grant's scope covers the requested one.
// Without a requested scope only scope-less grants count; with one, the
// grant's scope type and id must match exactly.
func scopeSatisfied(grantScope, requested *Scope) bool {
	if requested == nil {
		return grantScope == nil
	}
	return grantScope.Equal(requested)
}

// HasPrivilege reports whether principal holds requested (optionally under
// scope) through a direct grant or any active role membership. The returned
// string names what matched ("direct" or "role:<id>") for decision logging.
// Absence of a matching grant is a plain false, never an error; errors are
// infrastructure failures only.
func (r *Resolver) HasPrivilege(ctx context.Context, principal *Principal, requested string, scope *Scope) (bool, string, error) {
	now := r.now()

	direct, err := r.grants.ActiveDirectGrants(ctx, principal.ID, now)
	if err != nil {
		return false, "", infra("load direct grants", err)
	}
	for _, g := range direct {
		if !scopeSatisfied(g.Scope, scope) {
			continue
		}
		if r.slugMatches(g.PrivilegeSlug, requested) {
			return true, "direct", nil
		}
	}

	assignments, err := r.memberships.ActiveAssignments(ctx, principal.ID, now)
	if err != nil {
		return false, "", infra("load role memberships", err)
	}
	for _, a := range assignments {
		slugs, err := r.RolePrivilegeSlugs(ctx, a.RoleID)
		if err != nil {
			return false, "", err
		}
		for _, held := range slugs {
			if r.slugMatches(held, requested) {
				return true, "role:" + a.RoleID, nil
			}
		}
	}
	return false, "", nil
}

// RolePrivilegeSlugs returns the deduplicated active privilege slugs granted
// to one role, serving from the cache and recomputing lazily on a miss.
// Wildcard slugs are cached verbatim; they are matched per check, never
// pre-expanded. A role that is no longer live confers nothing: memberships
// may outlive their role, so the recompute resolves a deleted role to the
// empty set rather than replaying its old grants.
func (r *Resolver) RolePrivilegeSlugs(ctx context.Context, roleID string) ([]string, error) {
	slugs, ok, err := r.cache.GetRoleSlugs(ctx, roleID)
	if err != nil {
		return nil, infra("role cache read", err)
	}
	if ok {
		return slugs, nil
	}

	if _, err := r.roles.GetRole(ctx, roleID); err != nil {
		if !errors.Is(err, ErrNotFound) {
			return nil, infra("load role", err)
		}
		slugs = []string{}
	} else {
		grants, err := r.grants.ActiveRoleGrants(ctx, roleID, r.now())
		if err != nil {
			return nil, infra("load role grants", err)
		}
		slugs = dedupSlugs(grants)
	}
	if err := r.cache.SetRoleSlugs(ctx, roleID, slugs); err != nil {
		// serving the freshly computed set is still correct; the entry will
		// be recomputed on the next miss
		r.logger.Error("role cache write failed", "role_id", roleID, "error", err.Error())
	}
	return slugs, nil
}

// EffectivePrivileges returns the deduplicated union of the principal's
// active direct-grant slugs (scoped and scope-less) and the slugs of every
// active role membership, sorted for stable listing output.
func (r *Resolver) EffectivePrivileges(ctx context.Context, principal *Principal) ([]string, error) {
	if slugs, ok, err := r.cache.GetPrincipalSlugs(ctx, principal.ID); err != nil {
		return nil, infra("principal cache read", err)
	} else if ok {
		return slugs, nil
	}

	now := r.now()
	set := make(map[string]struct{})

	direct, err := r.grants.ActiveDirectGrants(ctx, principal.ID, now)
	if err != nil {
		return nil, infra("load direct grants", err)
	}
	for _, g := range direct {
		set[g.PrivilegeSlug] = struct{}{}
	}

	assignments, err := r.memberships.ActiveAssignments(ctx, principal.ID, now)
	if err != nil {
		return nil, infra("load role memberships", err)
	}
	for _, a := range assignments {
		slugs, err := r.RolePrivilegeSlugs(ctx, a.RoleID)
		if err != nil {
			return nil, err
		}
		for _, s := range slugs {
			set[s] = struct{}{}
		}
	}

	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)

	if err := r.cache.SetPrincipalSlugs(ctx, principal.ID, out); err != nil {
		r.logger.Error("principal cache write failed", "principal_id", principal.ID, "error", err.Error())
	}
	return out, nil
}

func dedupSlugs(grants []*Grant) []string {
	set := make(map[string]struct{}, len(grants))
	for _, g := range grants {
		set[g.PrivilegeSlug] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
