package privilege

import (
	"strings"
	"time"
)

// ============================================================================
// DOMAIN OBJECTS
// ============================================================================

// Principal represents the authenticatable entity being authorized.
type Principal struct {
	ID           string    `json:"id" yaml:"id"`
	IsSuperAdmin bool      `json:"is_super_admin" yaml:"is_super_admin"`
	Suspended    bool      `json:"suspended" yaml:"suspended"`
	LockedUntil  time.Time `json:"locked_until,omitempty" yaml:"locked_until,omitempty"` // zero = not locked
}

// Blocked reports whether the principal is suspended or locked at now.
// A blocked principal is denied unconditionally, regardless of grants held.
func (p *Principal) Blocked(now time.Time) bool {
	if p.Suspended {
		return true
	}
	return !p.LockedUntil.IsZero() && p.LockedUntil.After(now)
}

// Role is a named collection of privilege grants.
type Role struct {
	ID          string    `json:"id" yaml:"id"`
	Slug        string    `json:"slug" yaml:"slug"`
	Name        string    `json:"name" yaml:"name"`
	IsProtected bool      `json:"is_protected" yaml:"is_protected"`
	IsSystem    bool      `json:"is_system" yaml:"is_system"`
	CreatedAt   time.Time `json:"created_at" yaml:"created_at"`
	DeletedAt   time.Time `json:"deleted_at,omitempty" yaml:"deleted_at,omitempty"` // zero = live
}

// Deleted reports whether the role has been soft-deleted.
func (r *Role) Deleted() bool { return !r.DeletedAt.IsZero() }

// DefaultPriority is the display weight assigned to privileges that do not
// set one explicitly.
const DefaultPriority uint8 = 50

// Privilege is a named capability identified by a dot-notation slug
// (e.g. "users.create"). A slug containing '*' is a wildcard privilege whose
// pattern is evaluated per check against the live catalog, never pre-expanded.
type Privilege struct {
	ID              string    `json:"id" yaml:"id"`
	Slug            string    `json:"slug" yaml:"slug"`
	Name            string    `json:"name,omitempty" yaml:"name,omitempty"`
	IsWildcard      bool      `json:"is_wildcard" yaml:"is_wildcard"`
	WildcardPattern string    `json:"wildcard_pattern,omitempty" yaml:"wildcard_pattern,omitempty"` // non-empty iff wildcard
	Category        string    `json:"category,omitempty" yaml:"category,omitempty"`
	Priority        uint8     `json:"priority" yaml:"priority"` // display weight only; resolution never consults it
	IsProtected     bool      `json:"is_protected" yaml:"is_protected"`
	CreatedAt       time.Time `json:"created_at" yaml:"created_at"`
	DeletedAt       time.Time `json:"deleted_at,omitempty" yaml:"deleted_at,omitempty"`
}

// Deleted reports whether the privilege has been soft-deleted.
func (p *Privilege) Deleted() bool { return !p.DeletedAt.IsZero() }

// Normalize derives the wildcard fields from the slug and applies the default
// priority. Call before persisting a privilege.
func (p *Privilege) Normalize() {
	p.IsWildcard = strings.Contains(p.Slug, "*")
	if p.IsWildcard {
		p.WildcardPattern = p.Slug
	} else {
		p.WildcardPattern = ""
	}
	if p.Priority == 0 {
		p.Priority = DefaultPriority
	}
}

// Scope restricts a direct grant to a single resource instance.
type Scope struct {
	Type string `json:"type" yaml:"type"`
	ID   string `json:"id" yaml:"id"`
}

// Equal reports whether two scopes reference the same resource.
func (s *Scope) Equal(other *Scope) bool {
	if s == nil || other == nil {
		return s == other
	}
	return s.Type == other.Type && s.ID == other.ID
}

// Lifetime tracks when a grant-like record starts and stops being effective.
// Grants are append/terminate only: GrantedAt and the identity fields never
// change once created, RevokedAt is a terminal marker.
type Lifetime struct {
	GrantedAt time.Time `json:"granted_at" yaml:"granted_at"`
	ExpiresAt time.Time `json:"expires_at,omitempty" yaml:"expires_at,omitempty"` // zero = never expires
	RevokedAt time.Time `json:"revoked_at,omitempty" yaml:"revoked_at,omitempty"` // zero = not revoked
}

// Active reports whether the record is effective at now. This is the single
// expiry/revocation predicate; every other component defers to it. A record
// whose expiry equals now exactly is already expired (strict comparison), so
// the boundary cannot flap under clock skew.
func (l Lifetime) Active(now time.Time) bool {
	if !l.RevokedAt.IsZero() {
		return false
	}
	return l.ExpiresAt.IsZero() || l.ExpiresAt.After(now)
}

// Grant associates a privilege with a role (RoleID set) or directly with a
// principal (PrincipalID set, optionally scoped to one resource). GrantedBy,
// Reason and Conditions are immutable history fields.
type Grant struct {
	ID            string         `json:"id" yaml:"id"`
	RoleID        string         `json:"role_id,omitempty" yaml:"role_id,omitempty"`
	PrincipalID   string         `json:"principal_id,omitempty" yaml:"principal_id,omitempty"`
	PrivilegeSlug string         `json:"privilege_slug" yaml:"privilege_slug"`
	GrantedBy     string         `json:"granted_by,omitempty" yaml:"granted_by,omitempty"`
	Reason        string         `json:"reason,omitempty" yaml:"reason,omitempty"`
	Conditions    map[string]any `json:"conditions,omitempty" yaml:"conditions,omitempty"`
	Scope         *Scope         `json:"scope,omitempty" yaml:"scope,omitempty"` // direct grants only
	Lifetime      `yaml:",inline"`
}

// IsActive reports whether the grant contributes to resolution at now.
func (g *Grant) IsActive(now time.Time) bool { return g.Lifetime.Active(now) }

// RoleAssignment is the principal-to-role membership record. Memberships are
// grants in their own right: optionally time-bounded and revocable under the
// same active predicate.
type RoleAssignment struct {
	PrincipalID string `json:"principal_id" yaml:"principal_id"`
	RoleID      string `json:"role_id" yaml:"role_id"`
	GrantedBy   string `json:"granted_by,omitempty" yaml:"granted_by,omitempty"`
	Reason      string `json:"reason,omitempty" yaml:"reason,omitempty"`
	Lifetime    `yaml:",inline"`
}

// IsActive reports whether the membership is effective at now.
func (a *RoleAssignment) IsActive(now time.Time) bool { return a.Lifetime.Active(now) }

// GrantMeta carries the caller-supplied metadata recorded on a new grant.
type GrantMeta struct {
	GrantedBy  string
	Reason     string
	Conditions map[string]any
	ExpiresAt  time.Time // zero = no expiry
}
