package stores

import (
	"context"
	"time"

	"github.com/oarkflow/squealx"

	"github.com/oarkflow/privilege"
)

// SQLRoleStore persists roles in SQL (squealx). Deletion stamps deleted_at;
// only SlugTaken looks at deleted rows.
type SQLRoleStore struct {
	db *squealx.DB
}

func NewSQLRoleStore(db *squealx.DB) *SQLRoleStore {
	return &SQLRoleStore{db: db}
}

func (s *SQLRoleStore) CreateRole(ctx context.Context, r *privilege.Role) error {
	q := `INSERT INTO roles(id, slug, name, is_protected, is_system, created_at, deleted_at) VALUES(:id, :slug, :name, :is_protected, :is_system, :created_at, NULL)`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{
		"id":           r.ID,
		"slug":         r.Slug,
		"name":         r.Name,
		"is_protected": boolToInt(r.IsProtected),
		"is_system":    boolToInt(r.IsSystem),
		"created_at":   r.CreatedAt,
	})
	return err
}

func (s *SQLRoleStore) UpdateRole(ctx context.Context, r *privilege.Role) error {
	q := `UPDATE roles SET slug=:slug, name=:name, is_protected=:is_protected, is_system=:is_system WHERE id=:id AND deleted_at IS NULL`
	res, err := s.db.NamedExecContext(ctx, q, map[string]any{
		"id":           r.ID,
		"slug":         r.Slug,
		"name":         r.Name,
		"is_protected": boolToInt(r.IsProtected),
		"is_system":    boolToInt(r.IsSystem),
	})
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return &privilege.NotFoundError{Kind: "role", Key: r.ID}
	}
	return nil
}

func (s *SQLRoleStore) DeleteRole(ctx context.Context, id string, deletedAt time.Time) error {
	q := `UPDATE roles SET deleted_at=:deleted_at WHERE id=:id AND deleted_at IS NULL`
	res, err := s.db.NamedExecContext(ctx, q, map[string]any{"id": id, "deleted_at": deletedAt})
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return &privilege.NotFoundError{Kind: "role", Key: id}
	}
	return nil
}

func (s *SQLRoleStore) GetRole(ctx context.Context, id string) (*privilege.Role, error) {
	q := `SELECT id, slug, name, is_protected, is_system, created_at, deleted_at FROM roles WHERE id = :id AND deleted_at IS NULL`
	return s.queryOne(ctx, q, map[string]any{"id": id}, id)
}

func (s *SQLRoleStore) GetRoleBySlug(ctx context.Context, slug string) (*privilege.Role, error) {
	q := `SELECT id, slug, name, is_protected, is_system, created_at, deleted_at FROM roles WHERE slug = :slug AND deleted_at IS NULL`
	return s.queryOne(ctx, q, map[string]any{"slug": slug}, slug)
}

func (s *SQLRoleStore) queryOne(ctx context.Context, q string, args map[string]any, key string) (*privilege.Role, error) {
	r, err := s.db.NamedQueryContext(ctx, q, args)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	if !r.Next() {
		return nil, &privilege.NotFoundError{Kind: "role", Key: key}
	}
	return scanRole(r)
}

func (s *SQLRoleStore) ListRoles(ctx context.Context) ([]*privilege.Role, error) {
	q := `SELECT id, slug, name, is_protected, is_system, created_at, deleted_at FROM roles WHERE deleted_at IS NULL ORDER BY slug`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	out := make([]*privilege.Role, 0)
	for r.Next() {
		role, err := scanRole(r)
		if err != nil {
			return nil, err
		}
		out = append(out, role)
	}
	return out, nil
}

func (s *SQLRoleStore) SlugTaken(ctx context.Context, slug string) (bool, bool, error) {
	q := `SELECT COUNT(CASE WHEN deleted_at IS NULL THEN 1 END), COUNT(CASE WHEN deleted_at IS NOT NULL THEN 1 END) FROM roles WHERE slug = :slug`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{"slug": slug})
	if err != nil {
		return false, false, err
	}
	defer r.Close()
	if !r.Next() {
		return false, false, nil
	}
	var live, deleted int
	if err := r.Scan(&live, &deleted); err != nil {
		return false, false, err
	}
	return live > 0, deleted > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRole(r rowScanner) (*privilege.Role, error) {
	var id, slug, name string
	var isProtected, isSystem int
	var createdRaw, deletedRaw interface{}
	if err := r.Scan(&id, &slug, &name, &isProtected, &isSystem, &createdRaw, &deletedRaw); err != nil {
		return nil, err
	}
	return &privilege.Role{
		ID:          id,
		Slug:        slug,
		Name:        name,
		IsProtected: isProtected != 0,
		IsSystem:    isSystem != 0,
		CreatedAt:   scanTime(createdRaw),
		DeletedAt:   scanTime(deletedRaw),
	}, nil
}
