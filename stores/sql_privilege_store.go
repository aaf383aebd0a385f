package stores

import (
	"context"
	"time"

	"github.com/oarkflow/squealx"

	"github.com/oarkflow/privilege"
)

// SQLPrivilegeStore persists the privilege catalog in SQL (squealx).
type SQLPrivilegeStore struct {
	db *squealx.DB
}

func NewSQLPrivilegeStore(db *squealx.DB) *SQLPrivilegeStore {
	return &SQLPrivilegeStore{db: db}
}

func (s *SQLPrivilegeStore) CreatePrivilege(ctx context.Context, p *privilege.Privilege) error {
	q := `INSERT INTO privileges(id, slug, name, is_wildcard, wildcard_pattern, category, priority, is_protected, created_at, deleted_at) VALUES(:id, :slug, :name, :is_wildcard, :wildcard_pattern, :category, :priority, :is_protected, :created_at, NULL)`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{
		"id":               p.ID,
		"slug":             p.Slug,
		"name":             p.Name,
		"is_wildcard":      boolToInt(p.IsWildcard),
		"wildcard_pattern": p.WildcardPattern,
		"category":         p.Category,
		"priority":         int(p.Priority),
		"is_protected":     boolToInt(p.IsProtected),
		"created_at":       p.CreatedAt,
	})
	return err
}

func (s *SQLPrivilegeStore) UpdatePrivilege(ctx context.Context, p *privilege.Privilege) error {
	q := `UPDATE privileges SET slug=:slug, name=:name, is_wildcard=:is_wildcard, wildcard_pattern=:wildcard_pattern, category=:category, priority=:priority, is_protected=:is_protected WHERE id=:id AND deleted_at IS NULL`
	res, err := s.db.NamedExecContext(ctx, q, map[string]any{
		"id":               p.ID,
		"slug":             p.Slug,
		"name":             p.Name,
		"is_wildcard":      boolToInt(p.IsWildcard),
		"wildcard_pattern": p.WildcardPattern,
		"category":         p.Category,
		"priority":         int(p.Priority),
		"is_protected":     boolToInt(p.IsProtected),
	})
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return &privilege.NotFoundError{Kind: "privilege", Key: p.ID}
	}
	return nil
}

func (s *SQLPrivilegeStore) DeletePrivilege(ctx context.Context, id string, deletedAt time.Time) error {
	q := `UPDATE privileges SET deleted_at=:deleted_at WHERE id=:id AND deleted_at IS NULL`
	res, err := s.db.NamedExecContext(ctx, q, map[string]any{"id": id, "deleted_at": deletedAt})
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return &privilege.NotFoundError{Kind: "privilege", Key: id}
	}
	return nil
}

func (s *SQLPrivilegeStore) GetPrivilege(ctx context.Context, id string) (*privilege.Privilege, error) {
	q := `SELECT id, slug, name, is_wildcard, wildcard_pattern, category, priority, is_protected, created_at, deleted_at FROM privileges WHERE id = :id AND deleted_at IS NULL`
	return s.queryOne(ctx, q, map[string]any{"id": id}, id)
}

func (s *SQLPrivilegeStore) GetPrivilegeBySlug(ctx context.Context, slug string) (*privilege.Privilege, error) {
	q := `SELECT id, slug, name, is_wildcard, wildcard_pattern, category, priority, is_protected, created_at, deleted_at FROM privileges WHERE slug = :slug AND deleted_at IS NULL`
	return s.queryOne(ctx, q, map[string]any{"slug": slug}, slug)
}

func (s *SQLPrivilegeStore) queryOne(ctx context.Context, q string, args map[string]any, key string) (*privilege.Privilege, error) {
	r, err := s.db.NamedQueryContext(ctx, q, args)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	if !r.Next() {
		return nil, &privilege.NotFoundError{Kind: "privilege", Key: key}
	}
	return scanPrivilege(r)
}

func (s *SQLPrivilegeStore) ListPrivileges(ctx context.Context) ([]*privilege.Privilege, error) {
	q := `SELECT id, slug, name, is_wildcard, wildcard_pattern, category, priority, is_protected, created_at, deleted_at FROM privileges WHERE deleted_at IS NULL ORDER BY slug`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	out := make([]*privilege.Privilege, 0)
	for r.Next() {
		p, err := scanPrivilege(r)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *SQLPrivilegeStore) ListSlugs(ctx context.Context) ([]string, error) {
	q := `SELECT slug FROM privileges WHERE deleted_at IS NULL ORDER BY slug`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	out := make([]string, 0)
	for r.Next() {
		var slug string
		if err := r.Scan(&slug); err != nil {
			return nil, err
		}
		out = append(out, slug)
	}
	return out, nil
}

func (s *SQLPrivilegeStore) SlugTaken(ctx context.Context, slug string) (bool, bool, error) {
	q := `SELECT COUNT(CASE WHEN deleted_at IS NULL THEN 1 END), COUNT(CASE WHEN deleted_at IS NOT NULL THEN 1 END) FROM privileges WHERE slug = :slug`
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

func scanPrivilege(r rowScanner) (*privilege.Privilege, error) {
	var id, slug, name, pattern, category string
	var isWildcard, priority, isProtected int
	var createdRaw, deletedRaw interface{}
	if err := r.Scan(&id, &slug, &name, &isWildcard, &pattern, &category, &priority, &isProtected, &createdRaw, &deletedRaw); err != nil {
		return nil, err
	}
	return &privilege.Privilege{
		ID:              id,
		Slug:            slug,
		Name:            name,
		IsWildcard:      isWildcard != 0,
		WildcardPattern: pattern,
		Category:        category,
		Priority:        uint8(priority),
		IsProtected:     isProtected != 0,
		CreatedAt:       scanTime(createdRaw),
		DeletedAt:       scanTime(deletedRaw),
	}, nil
}
