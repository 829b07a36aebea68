package authz

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is a declarative description of tenants, roles, policies and
// assignments. It exists for tests, seeds and the authz-config tool; in
// production the stores are backed by the relational schema instead.
type Config struct {
	Version      int                    `json:"version" yaml:"version"`
	Customers    []CustomerConfig       `json:"customers" yaml:"customers"`
	Staff        []string               `json:"staff,omitempty" yaml:"staff,omitempty"`
	Roles        []*AccessRole          `json:"roles" yaml:"roles"`
	Policies     []*AccessPolicy        `json:"policies" yaml:"policies"`
	RolePolicies []PolicyRoleAssignment `json:"role_policies" yaml:"role_policies"`
	Memberships  []MembershipConfig     `json:"memberships" yaml:"memberships"`
	GlobalGrants []GlobalGrant          `json:"global_grants,omitempty" yaml:"global_grants,omitempty"`
	Engine       EngineConfig           `json:"engine,omitempty" yaml:"engine,omitempty"`
}

type CustomerConfig struct {
	ID       string          `json:"id" yaml:"id"`
	Name     string          `json:"name,omitempty" yaml:"name,omitempty"`
	Projects []ProjectConfig `json:"projects,omitempty" yaml:"projects,omitempty"`
}

type ProjectConfig struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
}

// MembershipConfig is a membership plus its role assignments, flattened for
// config convenience.
type MembershipConfig struct {
	ID       string   `json:"id" yaml:"id"`
	UserID   string   `json:"user_id" yaml:"user_id"`
	TenantID string   `json:"tenant_id" yaml:"tenant_id"`
	Inactive bool     `json:"inactive,omitempty" yaml:"inactive,omitempty"`
	Roles    []string `json:"roles,omitempty" yaml:"roles,omitempty"`
}

// GlobalGrant grants a global role directly to a user, outside any
// membership (the Staff role is granted this way).
type GlobalGrant struct {
	UserID string `json:"user_id" yaml:"user_id"`
	RoleID string `json:"role_id" yaml:"role_id"`
}

type EngineConfig struct {
	Cache                string `json:"cache,omitempty" yaml:"cache,omitempty"` // "memory" (default) or "ristretto"
	RistrettoNumCounters int64  `json:"ristretto_num_counters,omitempty" yaml:"ristretto_num_counters,omitempty"`
	RistrettoMaxCost     int64  `json:"ristretto_max_cost,omitempty" yaml:"ristretto_max_cost,omitempty"`
	RistrettoBufferItems int64  `json:"ristretto_buffer_items,omitempty" yaml:"ristretto_buffer_items,omitempty"`
}

// ConfigLoader loads configuration from YAML or JSON.
type ConfigLoader struct{}

func NewConfigLoader() *ConfigLoader { return &ConfigLoader{} }

func (l *ConfigLoader) LoadYAML(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse yaml config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (l *ConfigLoader) LoadJSON(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse json config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile picks the codec from the file extension (.yaml/.yml/.json).
func (l *ConfigLoader) LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return l.LoadYAML(data)
	case ".json":
		return l.LoadJSON(data)
	default:
		return nil, fmt.Errorf("unsupported config format: %s", filepath.Ext(path))
	}
}

func (c *Config) ToYAML() ([]byte, error) { return yaml.Marshal(c) }

func (c *Config) ToJSON() ([]byte, error) { return json.MarshalIndent(c, "", "  ") }

// Validate checks referential integrity: unique ids, role names unique per
// tenant, assignments pointing at declared roles/policies, memberships and
// projects pointing at declared customers.
func (c *Config) Validate() error {
	customers := NewIDSet()
	for _, cust := range c.Customers {
		if cust.ID == "" {
			return fmt.Errorf("customer missing id")
		}
		if customers.Contains(cust.ID) {
			return fmt.Errorf("duplicate customer id %q", cust.ID)
		}
		customers.Add(cust.ID)
	}

	roleIDs := NewIDSet()
	namesPerTenant := map[string]IDSet{}
	for _, r := range c.Roles {
		if r.ID == "" {
			return fmt.Errorf("role missing id")
		}
		if roleIDs.Contains(r.ID) {
			return fmt.Errorf("duplicate role id %q", r.ID)
		}
		roleIDs.Add(r.ID)
		names, ok := namesPerTenant[r.TenantID]
		if !ok {
			names = NewIDSet()
			namesPerTenant[r.TenantID] = names
		}
		if names.Contains(r.Name) {
			return fmt.Errorf("role name %q duplicated in tenant %q", r.Name, r.TenantID)
		}
		names.Add(r.Name)
		if r.TenantID != "" && !customers.Contains(r.TenantID) {
			return fmt.Errorf("role %s references unknown tenant %q", r.ID, r.TenantID)
		}
	}

	policyIDs := NewIDSet()
	for _, p := range c.Policies {
		if err := p.Validate(); err != nil {
			return err
		}
		if policyIDs.Contains(p.ID) {
			return fmt.Errorf("duplicate policy id %q", p.ID)
		}
		policyIDs.Add(p.ID)
		if p.TenantID != "" && !customers.Contains(p.TenantID) {
			return fmt.Errorf("policy %s references unknown tenant %q", p.ID, p.TenantID)
		}
	}

	for _, rp := range c.RolePolicies {
		if !roleIDs.Contains(rp.RoleID) {
			return fmt.Errorf("role policy assignment references unknown role %q", rp.RoleID)
		}
		if !policyIDs.Contains(rp.PolicyID) {
			return fmt.Errorf("role policy assignment references unknown policy %q", rp.PolicyID)
		}
	}

	membershipIDs := NewIDSet()
	for _, m := range c.Memberships {
		if m.ID == "" || m.UserID == "" || m.TenantID == "" {
			return fmt.Errorf("membership requires id, user_id and tenant_id")
		}
		if membershipIDs.Contains(m.ID) {
			return fmt.Errorf("duplicate membership id %q", m.ID)
		}
		membershipIDs.Add(m.ID)
		if !customers.Contains(m.TenantID) {
			return fmt.Errorf("membership %s references unknown tenant %q", m.ID, m.TenantID)
		}
		for _, roleID := range m.Roles {
			if !roleIDs.Contains(roleID) {
				return fmt.Errorf("membership %s references unknown role %q", m.ID, roleID)
			}
		}
	}

	for _, g := range c.GlobalGrants {
		if !roleIDs.Contains(g.RoleID) {
			return fmt.Errorf("global grant references unknown role %q", g.RoleID)
		}
	}
	return nil
}

// BuildService materializes the config into in-memory stores and a wired
// PermissionService. The returned store and directory allow further mutation
// (tests exercising invalidation rely on that).
func (c *Config) BuildService(opts ...ServiceOption) (*PermissionService, *MemoryStore, *MemoryDirectory, error) {
	if err := c.Validate(); err != nil {
		return nil, nil, nil, err
	}

	store := NewMemoryStore()
	dir := NewMemoryDirectory()

	for _, cust := range c.Customers {
		dir.AddCustomer(cust.ID)
		for _, proj := range cust.Projects {
			if err := dir.AddProject(proj.ID, cust.ID); err != nil {
				return nil, nil, nil, err
			}
		}
	}
	for _, id := range c.Staff {
		dir.AddStaff(id)
	}

	for _, r := range c.Roles {
		if err := store.CreateRole(r); err != nil {
			return nil, nil, nil, err
		}
	}
	for _, p := range c.Policies {
		if err := store.CreatePolicy(p); err != nil {
			return nil, nil, nil, err
		}
	}
	for _, rp := range c.RolePolicies {
		if err := store.AttachPolicy(rp.PolicyID, rp.RoleID); err != nil {
			return nil, nil, nil, err
		}
	}
	for _, m := range c.Memberships {
		if err := store.CreateMembership(Membership{ID: m.ID, UserID: m.UserID, TenantID: m.TenantID, Active: !m.Inactive}); err != nil {
			return nil, nil, nil, err
		}
		for _, roleID := range m.Roles {
			if err := store.AssignRole(m.ID, roleID); err != nil {
				return nil, nil, nil, err
			}
		}
	}
	for _, g := range c.GlobalGrants {
		if err := store.GrantGlobalRole(g.UserID, g.RoleID); err != nil {
			return nil, nil, nil, err
		}
	}

	customerHandler := NewCustomerHandler(dir)
	registry, err := NewHandlerRegistry(
		customerHandler,
		NewProjectHandler(dir, customerHandler),
		NewStaffHandler(dir),
	)
	if err != nil {
		return nil, nil, nil, err
	}

	if c.Engine.Cache == "ristretto" {
		cache, err := NewRistrettoPermissionCache(RistrettoCacheConfig{
			NumCounters: c.Engine.RistrettoNumCounters,
			MaxCost:     c.Engine.RistrettoMaxCost,
			BufferItems: c.Engine.RistrettoBufferItems,
		})
		if err != nil {
			return nil, nil, nil, err
		}
		opts = append([]ServiceOption{WithCache(cache)}, opts...)
	}

	svc, err := NewPermissionService(store, store, store, registry, opts...)
	if err != nil {
		return nil, nil, nil, err
	}
	return svc, store, dir, nil
}
