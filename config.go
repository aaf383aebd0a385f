package privilege

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/oarkflow/date"
	"gopkg.in/yaml.v3"
)

// ============================================================================
// CONFIGURATION
// ============================================================================

// Settings holds the engine's tunables. Pointer booleans distinguish "unset"
// from an explicit false so a config file can turn either flag off.
type Settings struct {
	WildcardsEnabled    *bool `json:"wildcards_enabled,omitempty" yaml:"wildcards_enabled,omitempty" envconfig:"PRIVILEGE_WILDCARDS_ENABLED"`
	FailClosed          *bool `json:"fail_closed,omitempty" yaml:"fail_closed,omitempty" envconfig:"PRIVILEGE_FAIL_CLOSED"`
	RoleCacheTTLSeconds int   `json:"role_cache_ttl_seconds,omitempty" yaml:"role_cache_ttl_seconds,omitempty" envconfig:"PRIVILEGE_ROLE_CACHE_TTL_SECONDS"`
	MinAdminRoles       int   `json:"min_admin_roles,omitempty" yaml:"min_admin_roles,omitempty" envconfig:"PRIVILEGE_MIN_ADMIN_ROLES"`
}

// WithDefaults fills any unset field with the shipped default: wildcards on,
// fail closed, one hour of cache TTL, one admin role minimum.
func (s Settings) WithDefaults() Settings {
	if s.WildcardsEnabled == nil {
		s.WildcardsEnabled = boolPtr(true)
	}
	if s.FailClosed == nil {
		s.FailClosed = boolPtr(true)
	}
	if s.RoleCacheTTLSeconds <= 0 {
		s.RoleCacheTTLSeconds = int(DefaultCacheTTL.Seconds())
	}
	if s.MinAdminRoles <= 0 {
		s.MinAdminRoles = 1
	}
	return s
}

func boolPtr(b bool) *bool { return &b }

// ConfigRole declares a role in a config document.
type ConfigRole struct {
	ID          string `json:"id,omitempty" yaml:"id,omitempty"`
	Slug        string `json:"slug" yaml:"slug"`
	Name        string `json:"name,omitempty" yaml:"name,omitempty"`
	IsProtected bool   `json:"is_protected,omitempty" yaml:"is_protected,omitempty"`
	IsSystem    bool   `json:"is_system,omitempty" yaml:"is_system,omitempty"`
}

// ConfigPrivilege declares a catalog entry in a config document.
type ConfigPrivilege struct {
	ID          string `json:"id,omitempty" yaml:"id,omitempty"`
	Slug        string `json:"slug" yaml:"slug"`
	Name        string `json:"name,omitempty" yaml:"name,omitempty"`
	Category    string `json:"category,omitempty" yaml:"category,omitempty"`
	Priority    uint8  `json:"priority,omitempty" yaml:"priority,omitempty"`
	IsProtected bool   `json:"is_protected,omitempty" yaml:"is_protected,omitempty"`
}

// ConfigGrant declares a role grant in a config document. The role is named
// by slug so documents stay portable across stores with generated IDs.
type ConfigGrant struct {
	Role      string `json:"role" yaml:"role"`
	Privilege string `json:"privilege" yaml:"privilege"`
	GrantedBy string `json:"granted_by,omitempty" yaml:"granted_by,omitempty"`
	Reason    string `json:"reason,omitempty" yaml:"reason,omitempty"`
	ExpiresAt string `json:"expires_at,omitempty" yaml:"expires_at,omitempty"`
}

// ConfigDirectGrant declares a principal-level grant in a config document.
type ConfigDirectGrant struct {
	Principal string `json:"principal" yaml:"principal"`
	Privilege string `json:"privilege" yaml:"privilege"`
	ScopeType string `json:"scope_type,omitempty" yaml:"scope_type,omitempty"`
	ScopeID   string `json:"scope_id,omitempty" yaml:"scope_id,omitempty"`
	GrantedBy string `json:"granted_by,omitempty" yaml:"granted_by,omitempty"`
	Reason    string `json:"reason,omitempty" yaml:"reason,omitempty"`
	ExpiresAt string `json:"expires_at,omitempty" yaml:"expires_at,omitempty"`
}

// ConfigMembership declares a role assignment in a config document.
type ConfigMembership struct {
	Principal string `json:"principal" yaml:"principal"`
	Role      string `json:"role" yaml:"role"`
	GrantedBy string `json:"granted_by,omitempty" yaml:"granted_by,omitempty"`
	ExpiresAt string `json:"expires_at,omitempty" yaml:"expires_at,omitempty"`
}

// Config is a full declarative description of an authorization setup:
// settings plus catalog, roles, grants and memberships. ApplyConfig seeds an
// engine from it.
type Config struct {
	Version      int                 `json:"version,omitempty" yaml:"version,omitempty"`
	Settings     Settings            `json:"settings,omitempty" yaml:"settings,omitempty"`
	Privileges   []ConfigPrivilege   `json:"privileges,omitempty" yaml:"privileges,omitempty"`
	Roles        []ConfigRole        `json:"roles,omitempty" yaml:"roles,omitempty"`
	Grants       []ConfigGrant       `json:"grants,omitempty" yaml:"grants,omitempty"`
	DirectGrants []ConfigDirectGrant `json:"direct_grants,omitempty" yaml:"direct_grants,omitempty"`
	Memberships  []ConfigMembership  `json:"memberships,omitempty" yaml:"memberships,omitempty"`
}

// LoadConfigYAML parses a YAML config document.
func LoadConfigYAML(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse yaml config: %w", err)
	}
	return &cfg, nil
}

// LoadConfigYAMLFile parses the YAML config at path.
func LoadConfigYAMLFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()
	return LoadConfigYAML(f)
}

// LoadConfigJSON parses a JSON config document.
func LoadConfigJSON(r io.Reader) (*Config, error) {
	var cfg Config
	if err := json.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse json config: %w", err)
	}
	return &cfg, nil
}

// LoadSettingsEnv reads Settings from PRIVILEGE_* environment variables,
// layered over base (env wins where set).
func LoadSettingsEnv(base Settings) (Settings, error) {
	var env Settings
	if err := envconfig.Process("", &env); err != nil {
		return base, fmt.Errorf("process environment: %w", err)
	}
	if env.WildcardsEnabled != nil {
		base.WildcardsEnabled = env.WildcardsEnabled
	}
	if env.FailClosed != nil {
		base.FailClosed = env.FailClosed
	}
	if env.RoleCacheTTLSeconds > 0 {
		base.RoleCacheTTLSeconds = env.RoleCacheTTLSeconds
	}
	if env.MinAdminRoles > 0 {
		base.MinAdminRoles = env.MinAdminRoles
	}
	return base, nil
}

// ToYAML renders the config as YAML.
func (c *Config) ToYAML() ([]byte, error) {
	return yaml.Marshal(c)
}

// ToJSON renders the config as indented JSON.
func (c *Config) ToJSON() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}

// ApplyConfig seeds the engine from a config document. Everything flows
// through the engine's own mutation methods so slug rules hold and cache
// invalidation fires; already-present rows make the corresponding step a
// no-op, which keeps re-applying a document safe.
func (e *Engine) ApplyConfig(ctx context.Context, cfg *Config) error {
	for _, cp := range cfg.Privileges {
		p := &Privilege{
			ID:          cp.ID,
			Slug:        cp.Slug,
			Name:        cp.Name,
			Category:    cp.Category,
			Priority:    cp.Priority,
			IsProtected: cp.IsProtected,
		}
		if _, err := e.privileges.GetPrivilegeBySlug(ctx, cp.Slug); err == nil {
			continue
		}
		if err := e.CreatePrivilege(ctx, p); err != nil {
			return fmt.Errorf("apply privilege %q: %w", cp.Slug, err)
		}
	}

	roleIDs := make(map[string]string, len(cfg.Roles))
	for _, cr := range cfg.Roles {
		if existing, err := e.roles.GetRoleBySlug(ctx, cr.Slug); err == nil {
			roleIDs[cr.Slug] = existing.ID
			continue
		}
		r := &Role{
			ID:          cr.ID,
			Slug:        cr.Slug,
			Name:        cr.Name,
			IsProtected: cr.IsProtected,
			IsSystem:    cr.IsSystem,
		}
		if err := e.CreateRole(ctx, r); err != nil {
			return fmt.Errorf("apply role %q: %w", cr.Slug, err)
		}
		roleIDs[cr.Slug] = r.ID
	}

	for _, cg := range cfg.Grants {
		roleID, err := e.configRoleID(ctx, roleIDs, cg.Role)
		if err != nil {
			return fmt.Errorf("apply grant %q -> %q: %w", cg.Role, cg.Privilege, err)
		}
		meta := GrantMeta{GrantedBy: cg.GrantedBy, Reason: cg.Reason}
		if meta.ExpiresAt, err = parseConfigTime(cg.ExpiresAt); err != nil {
			return fmt.Errorf("apply grant %q -> %q: %w", cg.Role, cg.Privilege, err)
		}
		if err := e.GrantPrivilege(ctx, roleID, cg.Privilege, meta); err != nil {
			return fmt.Errorf("apply grant %q -> %q: %w", cg.Role, cg.Privilege, err)
		}
	}

	for _, cd := range cfg.DirectGrants {
		var scope *Scope
		if cd.ScopeType != "" || cd.ScopeID != "" {
			scope = &Scope{Type: cd.ScopeType, ID: cd.ScopeID}
		}
		meta := GrantMeta{GrantedBy: cd.GrantedBy, Reason: cd.Reason}
		var err error
		if meta.ExpiresAt, err = parseConfigTime(cd.ExpiresAt); err != nil {
			return fmt.Errorf("apply direct grant %q -> %q: %w", cd.Principal, cd.Privilege, err)
		}
		if err := e.GrantDirectPrivilege(ctx, cd.Principal, cd.Privilege, scope, meta); err != nil {
			return fmt.Errorf("apply direct grant %q -> %q: %w", cd.Principal, cd.Privilege, err)
		}
	}

	for _, cm := range cfg.Memberships {
		roleID, err := e.configRoleID(ctx, roleIDs, cm.Role)
		if err != nil {
			return fmt.Errorf("apply membership %q -> %q: %w", cm.Principal, cm.Role, err)
		}
		meta := GrantMeta{GrantedBy: cm.GrantedBy}
		if meta.ExpiresAt, err = parseConfigTime(cm.ExpiresAt); err != nil {
			return fmt.Errorf("apply membership %q -> %q: %w", cm.Principal, cm.Role, err)
		}
		if err := e.AssignRole(ctx, cm.Principal, roleID, meta); err != nil {
			return fmt.Errorf("apply membership %q -> %q: %w", cm.Principal, cm.Role, err)
		}
	}
	return nil
}

// parseConfigTime accepts the flexible date formats config authors actually
// write (RFC3339, date-only, etc.). Empty means "never".
func parseConfigTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := date.Parse(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}

func (e *Engine) configRoleID(ctx context.Context, known map[string]string, slug string) (string, error) {
	if id, ok := known[slug]; ok {
		return id, nil
	}
	role, err := e.roles.GetRoleBySlug(ctx, slug)
	if err != nil {
		return "", err
	}
	known[slug] = role.ID
	return role.ID, nil
}
