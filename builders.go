package privilege

import "time"

// Builders provide a fluent API for creating Roles, Privileges and Grants

// RoleBuilder builds a Role
type RoleBuilder struct {
	r *Role
}

func NewRoleBuilder() *RoleBuilder {
	return &RoleBuilder{r: &Role{}}
}

func (b *RoleBuilder) ID(id string) *RoleBuilder       { b.r.ID = id; return b }
func (b *RoleBuilder) Slug(s string) *RoleBuilder      { b.r.Slug = s; return b }
func (b *RoleBuilder) Name(n string) *RoleBuilder      { b.r.Name = n; return b }
func (b *RoleBuilder) Protected() *RoleBuilder         { b.r.IsProtected = true; return b }
func (b *RoleBuilder) System() *RoleBuilder            { b.r.IsSystem = true; return b }
func (b *RoleBuilder) Build() *Role                    { return b.r }

// PrivilegeBuilder builds a Privilege
type PrivilegeBuilder struct {
	p *Privilege
}

func NewPrivilegeBuilder() *PrivilegeBuilder {
	return &PrivilegeBuilder{p: &Privilege{Priority: DefaultPriority}}
}

func (b *PrivilegeBuilder) ID(id string) *PrivilegeBuilder        { b.p.ID = id; return b }
func (b *PrivilegeBuilder) Slug(s string) *PrivilegeBuilder       { b.p.Slug = s; return b }
func (b *PrivilegeBuilder) Name(n string) *PrivilegeBuilder       { b.p.Name = n; return b }
func (b *PrivilegeBuilder) Category(c string) *PrivilegeBuilder   { b.p.Category = c; return b }
func (b *PrivilegeBuilder) Priority(p uint8) *PrivilegeBuilder    { b.p.Priority = p; return b }
func (b *PrivilegeBuilder) Protected() *PrivilegeBuilder          { b.p.IsProtected = true; return b }
func (b *PrivilegeBuilder) Build() *Privilege {
	b.p.Normalize()
	return b.p
}

// GrantBuilder builds a Grant
type GrantBuilder struct {
	g *Grant
}

func NewGrantBuilder() *GrantBuilder { return &GrantBuilder{g: &Grant{}} }

func (b *GrantBuilder) ID(id string) *GrantBuilder        { b.g.ID = id; return b }
func (b *GrantBuilder) Role(roleID string) *GrantBuilder  { b.g.RoleID = roleID; return b }
func (b *GrantBuilder) Principal(id string) *GrantBuilder { b.g.PrincipalID = id; return b }
func (b *GrantBuilder) Privilege(slug string) *GrantBuilder {
	b.g.PrivilegeSlug = slug
	return b
}
func (b *GrantBuilder) GrantedBy(who string) *GrantBuilder { b.g.GrantedBy = who; return b }
func (b *GrantBuilder) Reason(r string) *GrantBuilder      { b.g.Reason = r; return b }
func (b *GrantBuilder) Condition(key string, value any) *GrantBuilder {
	if b.g.Conditions == nil {
		b.g.Conditions = map[string]any{}
	}
	b.g.Conditions[key] = value
	return b
}
func (b *GrantBuilder) Scope(scopeType, scopeID string) *GrantBuilder {
	b.g.Scope = &Scope{Type: scopeType, ID: scopeID}
	return b
}
func (b *GrantBuilder) GrantedAt(t time.Time) *GrantBuilder { b.g.GrantedAt = t; return b }
func (b *GrantBuilder) ExpiresAt(t time.Time) *GrantBuilder { b.g.ExpiresAt = t; return b }
func (b *GrantBuilder) Build() *Grant                       { return b.g }
