package stores

import (
	"context"
	"encoding/json"
	"time"

	"github.com/oarkflow/squealx"

	"github.com/oarkflow/privilege"
)

// SQLGrantStore persists role and direct grants in SQL (squealx). Grants are
// append/terminate only: rows are never updated except to stamp revoked_at.
type SQLGrantStore struct {
	db *squealx.DB
}

func NewSQLGrantStore(db *squealx.DB) *SQLGrantStore {
	return &SQLGrantStore{db: db}
}

func (s *SQLGrantStore) CreateGrant(ctx context.Context, g *privilege.Grant) error {
	conditions := ""
	if len(g.Conditions) > 0 {
		raw, err := json.Marshal(g.Conditions)
		if err != nil {
			return err
		}
		conditions = string(raw)
	}
	scopeType, scopeID := "", ""
	if g.Scope != nil {
		scopeType, scopeID = g.Scope.Type, g.Scope.ID
	}
	q := `INSERT INTO grants(id, role_id, principal_id, privilege_slug, granted_by, reason, conditions_json, scope_type, scope_id, granted_at, expires_at, revoked_at) VALUES(:id, :role_id, :principal_id, :privilege_slug, :granted_by, :reason, :conditions_json, :scope_type, :scope_id, :granted_at, :expires_at, :revoked_at)`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{
		"id":              g.ID,
		"role_id":         g.RoleID,
		"principal_id":    g.PrincipalID,
		"privilege_slug":  g.PrivilegeSlug,
		"granted_by":      g.GrantedBy,
		"reason":          g.Reason,
		"conditions_json": conditions,
		"scope_type":      scopeType,
		"scope_id":        scopeID,
		"granted_at":      g.GrantedAt,
		"expires_at":      sqlNullTimeOrNil(g.ExpiresAt),
		"revoked_at":      sqlNullTimeOrNil(g.RevokedAt),
	})
	return err
}

func (s *SQLGrantStore) ActiveRoleGrants(ctx context.Context, roleID string, now time.Time) ([]*privilege.Grant, error) {
	q := `SELECT id, role_id, principal_id, privilege_slug, granted_by, reason, conditions_json, scope_type, scope_id, granted_at, expires_at, revoked_at FROM grants WHERE role_id = :role_id ORDER BY granted_at`
	return s.queryActive(ctx, q, map[string]any{"role_id": roleID}, now)
}

func (s *SQLGrantStore) ActiveDirectGrants(ctx context.Context, principalID string, now time.Time) ([]*privilege.Grant, error) {
	q := `SELECT id, role_id, principal_id, privilege_slug, granted_by, reason, conditions_json, scope_type, scope_id, granted_at, expires_at, revoked_at FROM grants WHERE principal_id = :principal_id ORDER BY granted_at`
	return s.queryActive(ctx, q, map[string]any{"principal_id": principalID}, now)
}

// queryActive filters in Go through Grant.IsActive rather than in SQL, so
// the expiry boundary rule lives in exactly one place.
func (s *SQLGrantStore) queryActive(ctx context.Context, q string, args map[string]any, now time.Time) ([]*privilege.Grant, error) {
	r, err := s.db.NamedQueryContext(ctx, q, args)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	out := make([]*privilege.Grant, 0)
	for r.Next() {
		g, err := scanGrant(r)
		if err != nil {
			return nil, err
		}
		if g.IsActive(now) {
			out = append(out, g)
		}
	}
	return out, nil
}

func (s *SQLGrantStore) RevokeRoleGrant(ctx context.Context, roleID, slug string, revokedAt time.Time) error {
	grants, err := s.ActiveRoleGrants(ctx, roleID, revokedAt)
	if err != nil {
		return err
	}
	revoked := 0
	for _, g := range grants {
		if g.PrivilegeSlug != slug {
			continue
		}
		if err := s.stampRevoked(ctx, g.ID, revokedAt); err != nil {
			return err
		}
		revoked++
	}
	if revoked == 0 {
		return &privilege.NotFoundError{Kind: "grant", Key: roleID + "/" + slug}
	}
	return nil
}

func (s *SQLGrantStore) RevokeDirectGrant(ctx context.Context, principalID, slug string, scope *privilege.Scope, revokedAt time.Time) error {
	grants, err := s.ActiveDirectGrants(ctx, principalID, revokedAt)
	if err != nil {
		return err
	}
	revoked := 0
	for _, g := range grants {
		if g.PrivilegeSlug != slug || !g.Scope.Equal(scope) {
			continue
		}
		if err := s.stampRevoked(ctx, g.ID, revokedAt); err != nil {
			return err
		}
		revoked++
	}
	if revoked == 0 {
		return &privilege.NotFoundError{Kind: "grant", Key: principalID + "/" + slug}
	}
	return nil
}

func (s *SQLGrantStore) stampRevoked(ctx context.Context, id string, revokedAt time.Time) error {
	q := `UPDATE grants SET revoked_at=:revoked_at WHERE id=:id AND revoked_at IS NULL`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{"id": id, "revoked_at": revokedAt})
	return err
}

func scanGrant(r rowScanner) (*privilege.Grant, error) {
	var id, roleID, principalID, slug, grantedBy, reason, conditionsJSON, scopeType, scopeID string
	var grantedRaw, expiresRaw, revokedRaw interface{}
	if err := r.Scan(&id, &roleID, &principalID, &slug, &grantedBy, &reason, &conditionsJSON, &scopeType, &scopeID, &grantedRaw, &expiresRaw, &revokedRaw); err != nil {
		return nil, err
	}
	g := &privilege.Grant{
		ID:            id,
		RoleID:        roleID,
		PrincipalID:   principalID,
		PrivilegeSlug: slug,
		GrantedBy:     grantedBy,
		Reason:        reason,
		Lifetime: privilege.Lifetime{
			GrantedAt: scanTime(grantedRaw),
			ExpiresAt: scanTime(expiresRaw),
			RevokedAt: scanTime(revokedRaw),
		},
	}
	if conditionsJSON != "" {
		var conditions map[string]any
		if err := json.Unmarshal([]byte(conditionsJSON), &conditions); err == nil {
			g.Conditions = conditions
		}
	}
	if scopeType != "" || scopeID != "" {
		g.Scope = &privilege.Scope{Type: scopeType, ID: scopeID}
	}
	return g, nil
}
