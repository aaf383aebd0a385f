package stores

import (
	"context"
	"time"

	"github.com/oarkflow/squealx"

	"github.com/oarkflow/privilege"
)

// SQLMembershipStore persists principal-to-role assignments in SQL (squealx).
type SQLMembershipStore struct {
	db *squealx.DB
}

func NewSQLMembershipStore(db *squealx.DB) *SQLMembershipStore {
	return &SQLMembershipStore{db: db}
}

func (s *SQLMembershipStore) AssignRole(ctx context.Context, a *privilege.RoleAssignment) error {
	q := `INSERT INTO role_memberships(principal_id, role_id, granted_by, reason, granted_at, expires_at, revoked_at) VALUES(:principal_id, :role_id, :granted_by, :reason, :granted_at, :expires_at, :revoked_at)`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{
		"principal_id": a.PrincipalID,
		"role_id":      a.RoleID,
		"granted_by":   a.GrantedBy,
		"reason":       a.Reason,
		"granted_at":   a.GrantedAt,
		"expires_at":   sqlNullTimeOrNil(a.ExpiresAt),
		"revoked_at":   sqlNullTimeOrNil(a.RevokedAt),
	})
	return err
}

func (s *SQLMembershipStore) RevokeRole(ctx context.Context, principalID, roleID string, revokedAt time.Time) error {
	active, err := s.ActiveAssignments(ctx, principalID, revokedAt)
	if err != nil {
		return err
	}
	found := false
	for _, a := range active {
		if a.RoleID == roleID {
			found = true
			break
		}
	}
	if !found {
		return &privilege.NotFoundError{Kind: "membership", Key: principalID + "/" + roleID}
	}
	q := `UPDATE role_memberships SET revoked_at=:revoked_at WHERE principal_id=:principal_id AND role_id=:role_id AND revoked_at IS NULL`
	_, err = s.db.NamedExecContext(ctx, q, map[string]any{
		"principal_id": principalID,
		"role_id":      roleID,
		"revoked_at":   revokedAt,
	})
	return err
}

func (s *SQLMembershipStore) ActiveAssignments(ctx context.Context, principalID string, now time.Time) ([]*privilege.RoleAssignment, error) {
	q := `SELECT principal_id, role_id, granted_by, reason, granted_at, expires_at, revoked_at FROM role_memberships WHERE principal_id = :principal_id ORDER BY granted_at`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{"principal_id": principalID})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	out := make([]*privilege.RoleAssignment, 0)
	for r.Next() {
		var pid, rid, grantedBy, reason string
		var grantedRaw, expiresRaw, revokedRaw interface{}
		if err := r.Scan(&pid, &rid, &grantedBy, &reason, &grantedRaw, &expiresRaw, &revokedRaw); err != nil {
			return nil, err
		}
		a := &privilege.RoleAssignment{
			PrincipalID: pid,
			RoleID:      rid,
			GrantedBy:   grantedBy,
			Reason:      reason,
			Lifetime: privilege.Lifetime{
				GrantedAt: scanTime(grantedRaw),
				ExpiresAt: scanTime(expiresRaw),
				RevokedAt: scanTime(revokedRaw),
			},
		}
		if a.IsActive(now) {
			out = append(out, a)
		}
	}
	return out, nil
}
