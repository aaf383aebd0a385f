package privilege

import (
	"context"
	"sort"
	"sync"
	"time"
)

// ============================================================================
// IN-MEMORY STORES (tests, demos, single-process deployments)
// ============================================================================

// MemoryRoleStore implements RoleStore in memory.
type MemoryRoleStore struct {
	mu    sync.RWMutex
	roles map[string]*Role
}

func NewMemoryRoleStore() *MemoryRoleStore {
	return &MemoryRoleStore{roles: make(map[string]*Role)}
}

func (s *MemoryRoleStore) CreateRole(ctx context.Context, r *Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *r
	s.roles[r.ID] = &cp
	return nil
}

func (s *MemoryRoleStore) UpdateRole(ctx context.Context, r *Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[r.ID]; !ok {
		return &NotFoundError{Kind: "role", Key: r.ID}
	}
	cp := *r
	s.roles[r.ID] = &cp
	return nil
}

func (s *MemoryRoleStore) DeleteRole(ctx context.Context, id string, deletedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.roles[id]
	if !ok || r.Deleted() {
		return &NotFoundError{Kind: "role", Key: id}
	}
	r.DeletedAt = deletedAt
	return nil
}

func (s *MemoryRoleStore) GetRole(ctx context.Context, id string) (*Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.roles[id]
	if !ok || r.Deleted() {
		return nil, &NotFoundError{Kind: "role", Key: id}
	}
	cp := *r
	return &cp, nil
}

func (s *MemoryRoleStore) GetRoleBySlug(ctx context.Context, slug string) (*Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.roles {
		if r.Slug == slug && !r.Deleted() {
			cp := *r
			return &cp, nil
		}
	}
	return nil, &NotFoundError{Kind: "role", Key: slug}
}

func (s *MemoryRoleStore) ListRoles(ctx context.Context) ([]*Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Role, 0, len(s.roles))
	for _, r := range s.roles {
		if r.Deleted() {
			continue
		}
		cp := *r
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out, nil
}

func (s *MemoryRoleStore) SlugTaken(ctx context.Context, slug string) (bool, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var live, deleted bool
	for _, r := range s.roles {
		if r.Slug != slug {
			continue
		}
		if r.Deleted() {
			deleted = true
		} else {
			live = true
		}
	}
	return live, deleted, nil
}

// MemoryPrivilegeStore implements PrivilegeStore in memory.
type MemoryPrivilegeStore struct {
	mu         sync.RWMutex
	privileges map[string]*Privilege
}

func NewMemoryPrivilegeStore() *MemoryPrivilegeStore {
	return &MemoryPrivilegeStore{privileges: make(map[string]*Privilege)}
}

func (s *MemoryPrivilegeStore) CreatePrivilege(ctx context.Context, p *Privilege) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.privileges[p.ID] = &cp
	return nil
}

func (s *MemoryPrivilegeStore) UpdatePrivilege(ctx context.Context, p *Privilege) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.privileges[p.ID]; !ok {
		return &NotFoundError{Kind: "privilege", Key: p.ID}
	}
	cp := *p
	s.privileges[p.ID] = &cp
	return nil
}

func (s *MemoryPrivilegeStore) DeletePrivilege(ctx context.Context, id string, deletedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.privileges[id]
	if !ok || p.Deleted() {
		return &NotFoundError{Kind: "privilege", Key: id}
	}
	p.DeletedAt = deletedAt
	return nil
}

func (s *MemoryPrivilegeStore) GetPrivilege(ctx context.Context, id string) (*Privilege, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.privileges[id]
	if !ok || p.Deleted() {
		return nil, &NotFoundError{Kind: "privilege", Key: id}
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryPrivilegeStore) GetPrivilegeBySlug(ctx context.Context, slug string) (*Privilege, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.privileges {
		if p.Slug == slug && !p.Deleted() {
			cp := *p
			return &cp, nil
		}
	}
	return nil, &NotFoundError{Kind: "privilege", Key: slug}
}

func (s *MemoryPrivilegeStore) ListPrivileges(ctx context.Context) ([]*Privilege, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Privilege, 0, len(s.privileges))
	for _, p := range s.privileges {
		if p.Deleted() {
			continue
		}
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out, nil
}

func (s *MemoryPrivilegeStore) ListSlugs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.privileges))
	for _, p := range s.privileges {
		if !p.Deleted() {
			out = append(out, p.Slug)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *MemoryPrivilegeStore) SlugTaken(ctx context.Context, slug string) (bool, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var live, deleted bool
	for _, p := range s.privileges {
		if p.Slug != slug {
			continue
		}
		if p.Deleted() {
			deleted = true
		} else {
			live = true
		}
	}
	return live, deleted, nil
}

// MemoryGrantStore implements GrantStore in memory.
type MemoryGrantStore struct {
	mu     sync.RWMutex
	grants []*Grant
}

func NewMemoryGrantStore() *MemoryGrantStore {
	return &MemoryGrantStore{grants: make([]*Grant, 0)}
}

func (s *MemoryGrantStore) CreateGrant(ctx context.Context, g *Grant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *g
	s.grants = append(s.grants, &cp)
	return nil
}

func (s *MemoryGrantStore) ActiveRoleGrants(ctx context.Context, roleID string, now time.Time) ([]*Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Grant, 0)
	for _, g := range s.grants {
		if g.RoleID == roleID && g.IsActive(now) {
			cp := *g
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *MemoryGrantStore) ActiveDirectGrants(ctx context.Context, principalID string, now time.Time) ([]*Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Grant, 0)
	for _, g := range s.grants {
		if g.PrincipalID == principalID && g.IsActive(now) {
			cp := *g
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *MemoryGrantStore) RevokeRoleGrant(ctx context.Context, roleID, slug string, revokedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	revoked := false
	for _, g := range s.grants {
		if g.RoleID == roleID && g.PrivilegeSlug == slug && g.IsActive(revokedAt) {
			g.RevokedAt = revokedAt
			revoked = true
		}
	}
	if !revoked {
		return &NotFoundError{Kind: "grant", Key: roleID + "/" + slug}
	}
	return nil
}

func (s *MemoryGrantStore) RevokeDirectGrant(ctx context.Context, principalID, slug string, scope *Scope, revokedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	revoked := false
	for _, g := range s.grants {
		if g.PrincipalID == principalID && g.PrivilegeSlug == slug && g.Scope.Equal(scope) && g.IsActive(revokedAt) {
			g.RevokedAt = revokedAt
			revoked = true
		}
	}
	if !revoked {
		return &NotFoundError{Kind: "grant", Key: principalID + "/" + slug}
	}
	return nil
}

// MemoryMembershipStore implements MembershipStore in memory.
type MemoryMembershipStore struct {
	mu          sync.RWMutex
	assignments []*RoleAssignment
}

func NewMemoryMembershipStore() *MemoryMembershipStore {
	return &MemoryMembershipStore{assignments: make([]*RoleAssignment, 0)}
}

func (s *MemoryMembershipStore) AssignRole(ctx context.Context, a *RoleAssignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *a
	s.assignments = append(s.assignments, &cp)
	return nil
}

func (s *MemoryMembershipStore) RevokeRole(ctx context.Context, principalID, roleID string, revokedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	revoked := false
	for _, a := range s.assignments {
		if a.PrincipalID == principalID && a.RoleID == roleID && a.IsActive(revokedAt) {
			a.RevokedAt = revokedAt
			revoked = true
		}
	}
	if !revoked {
		return &NotFoundError{Kind: "membership", Key: principalID + "/" + roleID}
	}
	return nil
}

func (s *MemoryMembershipStore) ActiveAssignments(ctx context.Context, principalID string, now time.Time) ([]*RoleAssignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*RoleAssignment, 0)
	for _, a := range s.assignments {
		if a.PrincipalID == principalID && a.IsActive(now) {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}
