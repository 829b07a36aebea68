package authz

import (
	"fmt"
	"time"
)

// PermissionType is the level of access a policy grants or a caller requests.
type PermissionType string

const (
	PermissionRead  PermissionType = "read"
	PermissionWrite PermissionType = "write"
	PermissionAdmin PermissionType = "admin"
)

// permissionRank orders permission types so that higher levels imply lower ones.
var permissionRank = map[PermissionType]int{
	PermissionRead:  1,
	PermissionWrite: 2,
	PermissionAdmin: 3,
}

// Valid reports whether the permission type is one of the known levels.
func (p PermissionType) Valid() bool {
	_, ok := permissionRank[p]
	return ok
}

// Satisfies reports whether a policy holding permission p satisfies a request
// for permission requested. admin satisfies write and read, write satisfies
// read, read satisfies only read.
func (p PermissionType) Satisfies(requested PermissionType) bool {
	hr, ok := permissionRank[p]
	if !ok {
		return false
	}
	rr, ok := permissionRank[requested]
	if !ok {
		return false
	}
	return hr >= rr
}

// ResourceType identifies the kind of resource a policy applies to. The set is
// open: registering a new PermissionHandler introduces a new resource type.
type ResourceType string

const (
	ResourceTypeStaff    ResourceType = "staff"
	ResourceTypeCustomer ResourceType = "customer"
	ResourceTypeProject  ResourceType = "project"
)

// Effect is the outcome a policy contributes when it matches.
type Effect string

const (
	EffectAllow Effect = "allow"
	EffectDeny  Effect = "deny"
)

// StaffRoleName is the name of the global system role whose holders bypass
// policy evaluation entirely.
const StaffRoleName = "Staff"

// AccessRole is a named bundle of policies assignable to memberships.
// TenantID is empty for global roles (system roles such as Staff).
type AccessRole struct {
	ID          string    `json:"id" yaml:"id"`
	Name        string    `json:"name" yaml:"name"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	TenantID    string    `json:"tenant_id,omitempty" yaml:"tenant_id,omitempty"`
	IsDefault   bool      `json:"is_default,omitempty" yaml:"is_default,omitempty"`
	CreatedAt   time.Time `json:"created_at,omitempty" yaml:"created_at,omitempty"`
}

// IsGlobal reports whether the role is unscoped (not owned by a tenant).
func (r *AccessRole) IsGlobal() bool { return r.TenantID == "" }

// IsSystemStaff reports whether this is the global Staff role.
func (r *AccessRole) IsSystemStaff() bool {
	return r.TenantID == "" && r.Name == StaffRoleName
}

// AccessPolicy is a single authorization rule: permission type x resource type
// x selector x effect, optionally scoped to a tenant. A tenant-scoped policy
// with a wildcard selector reaches only resources under that tenant.
type AccessPolicy struct {
	ID         string           `json:"id" yaml:"id"`
	Name       string           `json:"name,omitempty" yaml:"name,omitempty"`
	TenantID   string           `json:"tenant_id,omitempty" yaml:"tenant_id,omitempty"`
	Permission PermissionType   `json:"permission" yaml:"permission"`
	Resource   ResourceType     `json:"resource" yaml:"resource"`
	Selector   ResourceSelector `json:"selector" yaml:"selector"`
	Effect     Effect           `json:"effect" yaml:"effect"`
	CreatedAt  time.Time        `json:"created_at,omitempty" yaml:"created_at,omitempty"`
	UpdatedAt  time.Time        `json:"updated_at,omitempty" yaml:"updated_at,omitempty"`
}

// Validate checks the policy is structurally sound, including that the
// selector deserialized to a valid shape.
func (p *AccessPolicy) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("policy ID is required")
	}
	if !p.Permission.Valid() {
		return fmt.Errorf("policy %s: unknown permission type %q", p.ID, p.Permission)
	}
	if p.Resource == "" {
		return fmt.Errorf("policy %s: resource type is required", p.ID)
	}
	if p.Effect != EffectAllow && p.Effect != EffectDeny {
		return fmt.Errorf("policy %s: unknown effect %q", p.ID, p.Effect)
	}
	if err := p.Selector.Validate(); err != nil {
		return fmt.Errorf("policy %s: %w", p.ID, err)
	}
	return nil
}

// Membership is the relationship between a user and a tenant. It is the root
// from which role assignments are resolved.
type Membership struct {
	ID       string `json:"id" yaml:"id"`
	UserID   string `json:"user_id" yaml:"user_id"`
	TenantID string `json:"tenant_id" yaml:"tenant_id"`
	Active   bool   `json:"active" yaml:"active"`
}

// PolicyRoleAssignment attaches a policy to a role. Unique per (policy, role).
type PolicyRoleAssignment struct {
	PolicyID string `json:"policy_id" yaml:"policy_id"`
	RoleID   string `json:"role_id" yaml:"role_id"`
}

// MembershipAssignment attaches a role to a membership. Unique per
// (membership, role).
type MembershipAssignment struct {
	MembershipID string `json:"membership_id" yaml:"membership_id"`
	AccessRoleID string `json:"access_role_id" yaml:"access_role_id"`
}
