package privilege

import (
	"context"
	"strings"
	"testing"

	"github.com/oarkflow/privilege/logger"
)

const testConfigYAML = `
version: 1
settings:
  wildcards_enabled: true
  fail_closed: true
  role_cache_ttl_seconds: 600
privileges:
  - slug: users.create
    name: Create users
    category: users
  - slug: users.delete
    category: users
  - slug: content.*
    name: All content
roles:
  - slug: admin
    name: Administrator
    is_protected: true
  - slug: editor
    name: Editor
grants:
  - role: admin
    privilege: users.create
    granted_by: bootstrap
  - role: admin
    privilege: users.delete
    granted_by: bootstrap
  - role: editor
    privilege: content.*
memberships:
  - principal: user-1
    role: editor
direct_grants:
  - principal: user-2
    privilege: users.create
    reason: temporary cover
    expires_at: "2030-01-01T00:00:00Z"
`

func TestLoadConfigYAML(t *testing.T) {
	cfg, err := LoadConfigYAML(strings.NewReader(testConfigYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Version != 1 {
		t.Fatalf("version = %d", cfg.Version)
	}
	if cfg.Settings.RoleCacheTTLSeconds != 600 {
		t.Fatalf("ttl = %d", cfg.Settings.RoleCacheTTLSeconds)
	}
	if cfg.Settings.WildcardsEnabled == nil || !*cfg.Settings.WildcardsEnabled {
		t.Fatalf("wildcards_enabled not parsed")
	}
	if len(cfg.Privileges) != 3 || len(cfg.Roles) != 2 || len(cfg.Grants) != 3 {
		t.Fatalf("unexpected counts: %d privileges, %d roles, %d grants",
			len(cfg.Privileges), len(cfg.Roles), len(cfg.Grants))
	}
}

func TestSettingsDefaults(t *testing.T) {
	s := Settings{}.WithDefaults()
	if s.WildcardsEnabled == nil || !*s.WildcardsEnabled {
		t.Fatalf("wildcards must default on")
	}
	if s.FailClosed == nil || !*s.FailClosed {
		t.Fatalf("fail-closed must default on")
	}
	if s.RoleCacheTTLSeconds != 3600 {
		t.Fatalf("ttl default = %d", s.RoleCacheTTLSeconds)
	}
	if s.MinAdminRoles != 1 {
		t.Fatalf("min admin roles default = %d", s.MinAdminRoles)
	}

	off := false
	s = Settings{FailClosed: &off}.WithDefaults()
	if *s.FailClosed {
		t.Fatalf("explicit false must survive defaulting")
	}
}

func TestLoadSettingsEnv(t *testing.T) {
	t.Setenv("PRIVILEGE_WILDCARDS_ENABLED", "false")
	t.Setenv("PRIVILEGE_ROLE_CACHE_TTL_SECONDS", "120")

	s, err := LoadSettingsEnv(Settings{}.WithDefaults())
	if err != nil {
		t.Fatalf("load env: %v", err)
	}
	if s.WildcardsEnabled == nil || *s.WildcardsEnabled {
		t.Fatalf("env must override wildcards to false")
	}
	if s.RoleCacheTTLSeconds != 120 {
		t.Fatalf("env ttl = %d", s.RoleCacheTTLSeconds)
	}
	if s.FailClosed == nil || !*s.FailClosed {
		t.Fatalf("untouched setting must keep its base value")
	}
}

func TestApplyConfig(t *testing.T) {
	ctx := context.Background()
	cfg, err := LoadConfigYAML(strings.NewReader(testConfigYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	env := newTestEnv(t, WithSettings(cfg.Settings))
	if err := env.engine.ApplyConfig(ctx, cfg); err != nil {
		t.Fatalf("apply: %v", err)
	}

	editor := &Principal{ID: "user-1"}
	mustAuthorize(t, env.engine, editor, "content.articles.create", true)
	mustAuthorize(t, env.engine, editor, "users.create", false)

	direct := &Principal{ID: "user-2"}
	mustAuthorize(t, env.engine, direct, "users.create", true)

	admin, err := env.roles.GetRoleBySlug(ctx, "admin")
	if err != nil {
		t.Fatalf("admin role: %v", err)
	}
	if !admin.IsProtected {
		t.Fatalf("protection flag must carry over from config")
	}

	// re-applying the same document is a no-op
	if err := env.engine.ApplyConfig(ctx, cfg); err != nil {
		t.Fatalf("re-apply: %v", err)
	}
	grants, err := env.grants.ActiveRoleGrants(ctx, admin.ID, env.clock.Now())
	if err != nil {
		t.Fatalf("list grants: %v", err)
	}
	if len(grants) != 2 {
		t.Fatalf("re-apply must not duplicate grants, got %d", len(grants))
	}
}

func TestApplyConfigBadTime(t *testing.T) {
	cfg := &Config{
		Privileges: []ConfigPrivilege{{Slug: "users.create"}},
		DirectGrants: []ConfigDirectGrant{
			{Principal: "user-1", Privilege: "users.create", ExpiresAt: "not-a-time"},
		},
	}
	env := newTestEnv(t, WithLogger(logger.NewNullLogger()))
	if err := env.engine.ApplyConfig(context.Background(), cfg); err == nil {
		t.Fatalf("unparseable expiry must fail")
	}
}

func TestConfigRoundtrip(t *testing.T) {
	cfg, err := LoadConfigYAML(strings.NewReader(testConfigYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	out, err := cfg.ToYAML()
	if err != nil {
		t.Fatalf("to yaml: %v", err)
	}
	again, err := LoadConfigYAML(strings.NewReader(string(out)))
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if len(again.Grants) != len(cfg.Grants) || len(again.Roles) != len(cfg.Roles) {
		t.Fatalf("roundtrip lost entries")
	}

	js, err := cfg.ToJSON()
	if err != nil {
		t.Fatalf("to json: %v", err)
	}
	fromJSON, err := LoadConfigJSON(strings.NewReader(string(js)))
	if err != nil {
		t.Fatalf("from json: %v", err)
	}
	if len(fromJSON.Privileges) != len(cfg.Privileges) {
		t.Fatalf("json roundtrip lost privileges")
	}
}
