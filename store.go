package privilege

import (
	"context"
	"time"
)

// ============================================================================
// STORAGE INTERFACES
// ============================================================================

// RoleStore manages role persistence. Deletion is always a soft delete:
// DeleteRole stamps DeletedAt and lookups skip deleted rows, but SlugTaken
// still sees them so new rows can avoid colliding with retired slugs.
type RoleStore interface {
	CreateRole(ctx context.Context, r *Role) error
	UpdateRole(ctx context.Context, r *Role) error
	DeleteRole(ctx context.Context, id string, deletedAt time.Time) error
	GetRole(ctx context.Context, id string) (*Role, error)
	GetRoleBySlug(ctx context.Context, slug string) (*Role, error)
	ListRoles(ctx context.Context) ([]*Role, error)
	SlugTaken(ctx context.Context, slug string) (live, deleted bool, err error)
}

// PrivilegeStore manages the privilege catalog with the same soft-delete
// semantics as RoleStore. ListSlugs returns the live slugs (literal and
// wildcard) for catalog queries such as wildcard expansion.
type PrivilegeStore interface {
	CreatePrivilege(ctx context.Context, p *Privilege) error
	UpdatePrivilege(ctx context.Context, p *Privilege) error
	DeletePrivilege(ctx context.Context, id string, deletedAt time.Time) error
	GetPrivilege(ctx context.Context, id string) (*Privilege, error)
	GetPrivilegeBySlug(ctx context.Context, slug string) (*Privilege, error)
	ListPrivileges(ctx context.Context) ([]*Privilege, error)
	ListSlugs(ctx context.Context) ([]string, error)
	SlugTaken(ctx context.Context, slug string) (live, deleted bool, err error)
}

// GrantStore persists role and direct grants. The Active* queries return only
// grants for which Grant.IsActive(now) holds; implementations must defer to
// that predicate rather than re-deriving expiry rules. Revocation stamps
// RevokedAt on every currently active matching grant and reports ErrNotFound
// when none was active.
type GrantStore interface {
	CreateGrant(ctx context.Context, g *Grant) error
	ActiveRoleGrants(ctx context.Context, roleID string, now time.Time) ([]*Grant, error)
	ActiveDirectGrants(ctx context.Context, principalID string, now time.Time) ([]*Grant, error)
	RevokeRoleGrant(ctx context.Context, roleID, slug string, revokedAt time.Time) error
	RevokeDirectGrant(ctx context.Context, principalID, slug string, scope *Scope, revokedAt time.Time) error
}

// MembershipStore persists principal-to-role assignments. ActiveAssignments
// applies the same active predicate as GrantStore.
type MembershipStore interface {
	AssignRole(ctx context.Context, a *RoleAssignment) error
	RevokeRole(ctx context.Context, principalID, roleID string, revokedAt time.Time) error
	ActiveAssignments(ctx context.Context, principalID string, now time.Time) ([]*RoleAssignment, error)
}
