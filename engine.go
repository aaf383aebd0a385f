package privilege

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/oarkflow/privilege/logger"
)

// ============================================================================
// AUTHORIZATION ENGINE (decision point + mutation entry points)
// ============================================================================

// Engine is the single entry point collaborators use: middleware, CLI tools
// and template helpers ask it "can principal X do Y" and drive every grant
// mutation through it so cache invalidation fires after each commit.
type Engine struct {
	roles       RoleStore
	privileges  PrivilegeStore
	grants      GrantStore
	memberships MembershipStore
	cache       RoleCache
	resolver    *Resolver

	wildcardsEnabled bool
	failClosed       bool
	cacheTTL         time.Duration
	minAdminRoles    int

	logger      Logger
	traceIDFunc TraceIDFunc
	now         func() time.Time
	grantSeq    atomic.Int64
}

// EngineOption configures an Engine during construction.
type EngineOption func(*Engine) error

// WithLogger installs a Logger on the engine.
func WithLogger(l Logger) EngineOption {
	return func(e *Engine) error {
		e.logger = l
		return nil
	}
}

// WithTraceIDFunc installs a custom trace ID generator for decision logs.
func WithTraceIDFunc(f TraceIDFunc) EngineOption {
	return func(e *Engine) error {
		e.traceIDFunc = f
		return nil
	}
}

// WithClock overrides the engine's time source. Tests use it to pin expiry
// boundaries.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) error {
		if now != nil {
			e.now = now
		}
		return nil
	}
}

// WithRoleCache replaces the default in-memory cache (e.g. with the
// ristretto or Redis implementations).
func WithRoleCache(c RoleCache) EngineOption {
	return func(e *Engine) error {
		e.cache = c
		return nil
	}
}

// WithSettings applies loaded configuration to the engine.
func WithSettings(s Settings) EngineOption {
	return func(e *Engine) error {
		if s.WildcardsEnabled != nil {
			e.wildcardsEnabled = *s.WildcardsEnabled
		}
		if s.FailClosed != nil {
			e.failClosed = *s.FailClosed
		}
		if s.RoleCacheTTLSeconds > 0 {
			e.cacheTTL = time.Duration(s.RoleCacheTTLSeconds) * time.Second
		}
		if s.MinAdminRoles > 0 {
			e.minAdminRoles = s.MinAdminRoles
		}
		return nil
	}
}

func NewEngine(roles RoleStore, privileges PrivilegeStore, grants GrantStore, memberships MembershipStore, opts ...EngineOption) (*Engine, error) {
	if roles == nil || privileges == nil || grants == nil || memberships == nil {
		return nil, fmt.Errorf("engine requires role, privilege, grant and membership stores")
	}
	e := &Engine{
		roles:            roles,
		privileges:       privileges,
		grants:           grants,
		memberships:      memberships,
		wildcardsEnabled: true,
		failClosed:       true,
		cacheTTL:         DefaultCacheTTL,
		minAdminRoles:    1,
		logger:           logger.NewPhusluLogger(),
		now:              time.Now,
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	if e.cache == nil {
		e.cache = NewMemoryRoleCache(e.cacheTTL)
	}
	e.resolver = NewResolver(e.roles, e.grants, e.memberships, e.cache)
	e.resolver.wildcards = e.wildcardsEnabled
	e.resolver.now = e.now
	e.resolver.logger = e.logger
	return e, nil
}

// ============================================================================
// DECISION POINT
// ============================================================================

// Authorize decides whether principal may exercise the requested privilege
// slug, optionally under a resource scope.
//
// Order of evaluation: the suspension/lock gate first (read fresh every call,
// never cached), then the super-admin bypass (defined here and nowhere else),
// then the resolver. A denied check is (false, nil); only infrastructure
// failures produce errors, and those are swallowed into a deny unless the
// engine was configured with failClosed=false.
func (e *Engine) Authorize(ctx context.Context, principal *Principal, requested string, scope *Scope) (bool, error) {
	if principal == nil {
		return false, nil
	}
	if principal.Blocked(e.now()) {
		e.logDecision(principal.ID, requested, scope, false, "", "principal suspended or locked")
		return false, nil
	}
	if principal.IsSuperAdmin {
		e.logDecision(principal.ID, requested, scope, true, "super_admin", "super admin bypass")
		return true, nil
	}

	allowed, matchedBy, err := e.resolver.HasPrivilege(ctx, principal, requested, scope)
	if err != nil {
		if e.failClosed {
			e.logger.Error("authorization failed closed",
				"principal", principal.ID, "privilege", requested, "error", err.Error())
			return false, nil
		}
		return false, err
	}
	reason := "no matching grant"
	if allowed {
		reason = "grant match"
	}
	e.logDecision(principal.ID, requested, scope, allowed, matchedBy, reason)
	return allowed, nil
}

// HasPrivilege is Authorize under the name external callers tend to reach
// for.
func (e *Engine) HasPrivilege(ctx context.Context, principal *Principal, requested string, scope *Scope) (bool, error) {
	return e.Authorize(ctx, principal, requested, scope)
}

// HasAnyPrivilege reports whether principal holds at least one of the slugs.
func (e *Engine) HasAnyPrivilege(ctx context.Context, principal *Principal, slugs ...string) (bool, error) {
	for _, slug := range slugs {
		ok, err := e.Authorize(ctx, principal, slug, nil)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// HasAllPrivileges reports whether principal holds every one of the slugs.
func (e *Engine) HasAllPrivileges(ctx context.Context, principal *Principal, slugs ...string) (bool, error) {
	for _, slug := range slugs {
		ok, err := e.Authorize(ctx, principal, slug, nil)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return len(slugs) > 0, nil
}

// EffectivePrivileges lists the principal's deduplicated active privilege
// slugs for introspection UIs. Unlike Authorize it propagates infrastructure
// errors: a listing has no secure default.
func (e *Engine) EffectivePrivileges(ctx context.Context, principal *Principal) ([]string, error) {
	if principal == nil {
		return nil, nil
	}
	return e.resolver.EffectivePrivileges(ctx, principal)
}

// ExpandWildcard returns the literal catalog slugs matched by pattern, for
// display tooling. It queries the live catalog at call time; wildcard rows
// themselves are never part of the expansion.
func (e *Engine) ExpandWildcard(ctx context.Context, pattern string) ([]string, error) {
	slugs, err := e.privileges.ListSlugs(ctx)
	if err != nil {
		return nil, infra("list privilege catalog", err)
	}
	out := make([]string, 0)
	for _, s := range slugs {
		if IsWildcardSlug(s) {
			continue
		}
		if Matches(pattern, s) {
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (e *Engine) logDecision(principalID, requested string, scope *Scope, allowed bool, matchedBy, reason string) {
	kv := make([]any, 0, 12)
	if e.traceIDFunc != nil {
		kv = append(kv, "trace_id", e.traceIDFunc())
	}
	kv = append(kv,
		"principal", principalID,
		"privilege", requested,
		"allowed", allowed,
		"matched_by", matchedBy,
		"reason", reason,
	)
	if scope != nil {
		kv = append(kv, "scope", scope.Type+":"+scope.ID)
	}
	e.logger.Info("authorization decision", kv...)
}

// ============================================================================
// GRANT OPERATIONS
// ============================================================================

// GrantPrivilege grants the privilege slug to a role. Both the role and the
// privilege must exist. Re-granting a slug the role already actively holds
// with the same expiry is a no-op; a different expiry records an additional
// grant, so extending a time-bounded grant takes effect without a prior
// revoke. Shortening one still requires revoke-then-grant.
func (e *Engine) GrantPrivilege(ctx context.Context, roleID, slug string, meta GrantMeta) error {
	role, err := e.roles.GetRole(ctx, roleID)
	if err != nil {
		return err
	}
	if _, err := e.privileges.GetPrivilegeBySlug(ctx, slug); err != nil {
		return err
	}
	now := e.now()
	active, err := e.grants.ActiveRoleGrants(ctx, roleID, now)
	if err != nil {
		return infra("load role grants", err)
	}
	for _, g := range active {
		if g.PrivilegeSlug == slug && g.ExpiresAt.Equal(meta.ExpiresAt) {
			return nil
		}
	}
	g := &Grant{
		ID:            e.newGrantID(),
		RoleID:        roleID,
		PrivilegeSlug: slug,
		GrantedBy:     meta.GrantedBy,
		Reason:        meta.Reason,
		Conditions:    meta.Conditions,
		Lifetime:      Lifetime{GrantedAt: now, ExpiresAt: meta.ExpiresAt},
	}
	if err := e.grants.CreateGrant(ctx, g); err != nil {
		return err
	}
	e.invalidateRoleAfterCommit(ctx, roleID)
	e.logger.Info("privilege granted", "role", role.Slug, "privilege", slug, "granted_by", meta.GrantedBy)
	return nil
}

// RevokePrivilege terminates the role's active grants of slug. The cache
// entry for the role is gone before this returns: any check that starts after
// a successful revoke sees the revoke.
func (e *Engine) RevokePrivilege(ctx context.Context, roleID, slug string) error {
	role, err := e.roles.GetRole(ctx, roleID)
	if err != nil {
		return err
	}
	if err := e.grants.RevokeRoleGrant(ctx, roleID, slug, e.now()); err != nil {
		return err
	}
	e.invalidateRoleAfterCommit(ctx, roleID)
	e.logger.Info("privilege revoked", "role", role.Slug, "privilege", slug)
	return nil
}

// GrantDirectPrivilege grants slug straight to a principal, optionally scoped
// to one resource instance. An active grant of the same slug, scope and
// expiry makes this a no-op; a different expiry records an additional grant
// like GrantPrivilege does.
func (e *Engine) GrantDirectPrivilege(ctx context.Context, principalID, slug string, scope *Scope, meta GrantMeta) error {
	if _, err := e.privileges.GetPrivilegeBySlug(ctx, slug); err != nil {
		return err
	}
	now := e.now()
	active, err := e.grants.ActiveDirectGrants(ctx, principalID, now)
	if err != nil {
		return infra("load direct grants", err)
	}
	for _, g := range active {
		if g.PrivilegeSlug == slug && g.Scope.Equal(scope) && g.ExpiresAt.Equal(meta.ExpiresAt) {
			return nil
		}
	}
	g := &Grant{
		ID:            e.newGrantID(),
		PrincipalID:   principalID,
		PrivilegeSlug: slug,
		GrantedBy:     meta.GrantedBy,
		Reason:        meta.Reason,
		Conditions:    meta.Conditions,
		Scope:         scope,
		Lifetime:      Lifetime{GrantedAt: now, ExpiresAt: meta.ExpiresAt},
	}
	if err := e.grants.CreateGrant(ctx, g); err != nil {
		return err
	}
	e.invalidatePrincipalAfterCommit(ctx, principalID)
	e.logger.Info("direct privilege granted", "principal", principalID, "privilege", slug, "granted_by", meta.GrantedBy)
	return nil
}

// RevokeDirectPrivilege terminates a principal's active direct grants of slug
// under the given scope.
func (e *Engine) RevokeDirectPrivilege(ctx context.Context, principalID, slug string, scope *Scope) error {
	if err := e.grants.RevokeDirectGrant(ctx, principalID, slug, scope, e.now()); err != nil {
		return err
	}
	e.invalidatePrincipalAfterCommit(ctx, principalID)
	e.logger.Info("direct privilege revoked", "principal", principalID, "privilege", slug)
	return nil
}

// AssignRole makes the principal a member of the role, optionally
// time-bounded via meta.ExpiresAt. Assigning an already-active membership is
// a no-op.
func (e *Engine) AssignRole(ctx context.Context, principalID, roleID string, meta GrantMeta) error {
	role, err := e.roles.GetRole(ctx, roleID)
	if err != nil {
		return err
	}
	now := e.now()
	active, err := e.memberships.ActiveAssignments(ctx, principalID, now)
	if err != nil {
		return infra("load role memberships", err)
	}
	for _, a := range active {
		if a.RoleID == roleID {
			return nil
		}
	}
	a := &RoleAssignment{
		PrincipalID: principalID,
		RoleID:      roleID,
		GrantedBy:   meta.GrantedBy,
		Reason:      meta.Reason,
		Lifetime:    Lifetime{GrantedAt: now, ExpiresAt: meta.ExpiresAt},
	}
	if err := e.memberships.AssignRole(ctx, a); err != nil {
		return err
	}
	e.invalidatePrincipalAfterCommit(ctx, principalID)
	e.logger.Info("role assigned", "principal", principalID, "role", role.Slug, "granted_by", meta.GrantedBy)
	return nil
}

// RevokeRole terminates the principal's active membership of the role.
func (e *Engine) RevokeRole(ctx context.Context, principalID, roleID string) error {
	if err := e.memberships.RevokeRole(ctx, principalID, roleID, e.now()); err != nil {
		return err
	}
	e.invalidatePrincipalAfterCommit(ctx, principalID)
	e.logger.Info("role revoked", "principal", principalID, "role_id", roleID)
	return nil
}

// ============================================================================
// ROLE OPERATIONS
// ============================================================================

type mutateOptions struct {
	overrideProtection bool
}

// MutateOption adjusts a role/privilege mutation.
type MutateOption func(*mutateOptions)

// WithProtectionOverride bypasses the protection flags on a role or
// privilege for this one mutation.
func WithProtectionOverride() MutateOption {
	return func(o *mutateOptions) { o.overrideProtection = true }
}

func applyMutateOptions(opts []MutateOption) mutateOptions {
	var o mutateOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// CreateRole inserts a new role. Slugs stay unique among live rows; when a
// soft-deleted row retired the slug, the new row gets a numeric suffix
// instead of reactivating the old one.
func (e *Engine) CreateRole(ctx context.Context, r *Role) error {
	if r.Slug == "" {
		return invariantf("role slug is required")
	}
	slug, err := e.resolveSlug(ctx, "role", r.Slug, e.roles.SlugTaken)
	if err != nil {
		return err
	}
	r.Slug = slug
	if r.ID == "" {
		r.ID = e.newID("role")
	}
	r.CreatedAt = e.now()
	if err := e.roles.CreateRole(ctx, r); err != nil {
		return err
	}
	e.logger.Info("role created", "role", r.Slug)
	return nil
}

// UpdateRole persists changes to a role. On a protected role the identity
// fields (slug and protection flags) reject mutation unless the caller passes
// WithProtectionOverride.
func (e *Engine) UpdateRole(ctx context.Context, r *Role, opts ...MutateOption) error {
	cur, err := e.roles.GetRole(ctx, r.ID)
	if err != nil {
		return err
	}
	o := applyMutateOptions(opts)
	identityChanged := r.Slug != cur.Slug || r.IsProtected != cur.IsProtected || r.IsSystem != cur.IsSystem
	if cur.IsProtected && identityChanged && !o.overrideProtection {
		return &ProtectedError{Kind: "role", Slug: cur.Slug}
	}
	if r.Slug != cur.Slug {
		live, _, err := e.roles.SlugTaken(ctx, r.Slug)
		if err != nil {
			return infra("check role slug", err)
		}
		if live {
			return invariantf("role slug %q already in use", r.Slug)
		}
	}
	if err := e.roles.UpdateRole(ctx, r); err != nil {
		return err
	}
	e.invalidateRoleAfterCommit(ctx, r.ID)
	e.logger.Info("role updated", "role", r.Slug)
	return nil
}

// DeleteRole soft-deletes a role. Protected/system roles require an explicit
// override, and the catalog must keep at least the configured minimum of
// administrator-equivalent roles. A deleted role confers nothing even while
// memberships referencing it linger: the resolver resolves it to an empty
// slug set on the recompute this deletion triggers.
func (e *Engine) DeleteRole(ctx context.Context, id string, opts ...MutateOption) error {
	role, err := e.roles.GetRole(ctx, id)
	if err != nil {
		return err
	}
	o := applyMutateOptions(opts)
	if (role.IsProtected || role.IsSystem) && !o.overrideProtection {
		return &ProtectedError{Kind: "role", Slug: role.Slug}
	}
	isAdmin, err := e.adminEquivalent(ctx, role)
	if err != nil {
		return err
	}
	if isAdmin {
		count, err := e.countAdminRoles(ctx)
		if err != nil {
			return err
		}
		if count <= e.minAdminRoles {
			return invariantf("cannot delete role %q: at least %d administrator role(s) must remain", role.Slug, e.minAdminRoles)
		}
	}
	if err := e.roles.DeleteRole(ctx, id, e.now()); err != nil {
		return err
	}
	e.invalidateRoleAfterCommit(ctx, id)
	e.logger.Info("role deleted", "role", role.Slug)
	return nil
}

// adminEquivalent reports whether the role is administrator-equivalent: the
// "admin" slug itself, or any role actively holding the global wildcard.
func (e *Engine) adminEquivalent(ctx context.Context, role *Role) (bool, error) {
	if strings.EqualFold(role.Slug, "admin") {
		return true, nil
	}
	grants, err := e.grants.ActiveRoleGrants(ctx, role.ID, e.now())
	if err != nil {
		return false, infra("load role grants", err)
	}
	for _, g := range grants {
		if g.PrivilegeSlug == "*" {
			return true, nil
		}
	}
	return false, nil
}

func (e *Engine) countAdminRoles(ctx context.Context) (int, error) {
	roles, err := e.roles.ListRoles(ctx)
	if err != nil {
		return 0, infra("list roles", err)
	}
	count := 0
	for _, r := range roles {
		isAdmin, err := e.adminEquivalent(ctx, r)
		if err != nil {
			return 0, err
		}
		if isAdmin {
			count++
		}
	}
	return count, nil
}

// ============================================================================
// PRIVILEGE CATALOG OPERATIONS
// ============================================================================

// CreatePrivilege inserts a catalog entry, deriving the wildcard fields from
// the slug and applying the same slug-collision rules as CreateRole.
func (e *Engine) CreatePrivilege(ctx context.Context, p *Privilege) error {
	if p.Slug == "" {
		return invariantf("privilege slug is required")
	}
	slug, err := e.resolveSlug(ctx, "privilege", p.Slug, e.privileges.SlugTaken)
	if err != nil {
		return err
	}
	p.Slug = slug
	p.Normalize()
	if p.ID == "" {
		p.ID = e.newID("priv")
	}
	p.CreatedAt = e.now()
	if err := e.privileges.CreatePrivilege(ctx, p); err != nil {
		return err
	}
	e.logger.Info("privilege created", "privilege", p.Slug, "wildcard", p.IsWildcard)
	return nil
}

// UpdatePrivilege persists changes to a catalog entry, enforcing protection
// on the identity fields like UpdateRole does.
func (e *Engine) UpdatePrivilege(ctx context.Context, p *Privilege, opts ...MutateOption) error {
	cur, err := e.privileges.GetPrivilege(ctx, p.ID)
	if err != nil {
		return err
	}
	o := applyMutateOptions(opts)
	identityChanged := p.Slug != cur.Slug || p.IsProtected != cur.IsProtected
	if cur.IsProtected && identityChanged && !o.overrideProtection {
		return &ProtectedError{Kind: "privilege", Slug: cur.Slug}
	}
	if p.Slug != cur.Slug {
		live, _, err := e.privileges.SlugTaken(ctx, p.Slug)
		if err != nil {
			return infra("check privilege slug", err)
		}
		if live {
			return invariantf("privilege slug %q already in use", p.Slug)
		}
	}
	p.Normalize()
	if err := e.privileges.UpdatePrivilege(ctx, p); err != nil {
		return err
	}
	e.flushAfterCommit(ctx)
	e.logger.Info("privilege updated", "privilege", p.Slug)
	return nil
}

// DeletePrivilege soft-deletes a catalog entry. Existing grants referencing
// the slug are untouched (cleanup belongs to the caller); the cache is
// flushed so no role set keeps serving the retired slug's expansion.
func (e *Engine) DeletePrivilege(ctx context.Context, id string, opts ...MutateOption) error {
	p, err := e.privileges.GetPrivilege(ctx, id)
	if err != nil {
		return err
	}
	o := applyMutateOptions(opts)
	if p.IsProtected && !o.overrideProtection {
		return &ProtectedError{Kind: "privilege", Slug: p.Slug}
	}
	if err := e.privileges.DeletePrivilege(ctx, id, e.now()); err != nil {
		return err
	}
	e.flushAfterCommit(ctx)
	e.logger.Info("privilege deleted", "privilege", p.Slug)
	return nil
}

// ============================================================================
// CACHE HOOKS
// ============================================================================

// InvalidateRole is the hook collaborators call when a grant, role or
// membership row changes outside the engine's own mutation paths.
func (e *Engine) InvalidateRole(ctx context.Context, roleID string) error {
	return e.cache.InvalidateRole(ctx, roleID)
}

// InvalidatePrincipal is the per-principal counterpart of InvalidateRole.
func (e *Engine) InvalidatePrincipal(ctx context.Context, principalID string) error {
	return e.cache.InvalidatePrincipal(ctx, principalID)
}

// FlushCache drops every cached slug set.
func (e *Engine) FlushCache(ctx context.Context) error {
	return e.cache.Flush(ctx)
}

// invalidateRoleAfterCommit runs the post-commit invalidation contract: the
// grant mutation is already the source of truth, so a failing invalidation
// is logged as a consistency risk (the TTL is the safety net) instead of
// rolling anything back.
func (e *Engine) invalidateRoleAfterCommit(ctx context.Context, roleID string) {
	if err := e.cache.InvalidateRole(ctx, roleID); err != nil {
		e.logger.Error("cache invalidation failed after commit, stale entries persist until TTL",
			"role_id", roleID, "error", err.Error())
	}
}

func (e *Engine) invalidatePrincipalAfterCommit(ctx context.Context, principalID string) {
	if err := e.cache.InvalidatePrincipal(ctx, principalID); err != nil {
		e.logger.Error("cache invalidation failed after commit, stale entries persist until TTL",
			"principal_id", principalID, "error", err.Error())
	}
}

func (e *Engine) flushAfterCommit(ctx context.Context) {
	if err := e.cache.Flush(ctx); err != nil {
		e.logger.Error("cache flush failed after commit, stale entries persist until TTL",
			"error", err.Error())
	}
}

// ============================================================================
// HELPERS
// ============================================================================

type slugTakenFunc func(ctx context.Context, slug string) (live, deleted bool, err error)

// resolveSlug enforces slug uniqueness among live rows. When only a
// soft-deleted row holds the slug, the new row takes a numeric suffix.
// Collision avoidance, not reactivation.
func (e *Engine) resolveSlug(ctx context.Context, kind, slug string, taken slugTakenFunc) (string, error) {
	live, deleted, err := taken(ctx, slug)
	if err != nil {
		return "", infra("check "+kind+" slug", err)
	}
	if live {
		return "", invariantf("%s slug %q already in use", kind, slug)
	}
	if !deleted {
		return slug, nil
	}
	for i := 2; ; i++ {
		candidate := fmt.Sprintf("%s-%d", slug, i)
		live, deleted, err := taken(ctx, candidate)
		if err != nil {
			return "", infra("check "+kind+" slug", err)
		}
		if !live && !deleted {
			return candidate, nil
		}
	}
}

func (e *Engine) newGrantID() string {
	return fmt.Sprintf("grant-%d-%d", e.now().UnixNano(), e.grantSeq.Add(1))
}

func (e *Engine) newID(prefix string) string {
	return fmt.Sprintf("%s-%d-%d", prefix, e.now().UnixNano(), e.grantSeq.Add(1))
}
