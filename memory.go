package authz

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryStore is an in-memory implementation of MembershipStore, RoleStore
// and PolicyStore with the same cascade semantics as the relational schema:
// deleting a role removes its policy and membership assignments, deleting a
// membership removes its role assignments, deleting a tenant removes its
// roles, policies and memberships. Intended for tests and config-driven
// setups.
type MemoryStore struct {
	mu              sync.RWMutex
	roles           map[string]*AccessRole
	policies        map[string]*AccessPolicy
	rolePolicies    map[string]IDSet // role id -> policy ids
	memberships     map[string]Membership
	membershipRoles map[string]IDSet // membership id -> role ids
	userGlobalRoles map[string]IDSet // user id -> global role ids
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		roles:           make(map[string]*AccessRole),
		policies:        make(map[string]*AccessPolicy),
		rolePolicies:    make(map[string]IDSet),
		memberships:     make(map[string]Membership),
		membershipRoles: make(map[string]IDSet),
		userGlobalRoles: make(map[string]IDSet),
	}
}

func (s *MemoryStore) CreateRole(r *AccessRole) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.ID == "" {
		return fmt.Errorf("role ID is required")
	}
	for _, existing := range s.roles {
		if existing.TenantID == r.TenantID && existing.Name == r.Name {
			return fmt.Errorf("role name %q already exists in tenant %q", r.Name, r.TenantID)
		}
	}
	cop := *r
	if cop.CreatedAt.IsZero() {
		cop.CreatedAt = time.Now()
	}
	s.roles[r.ID] = &cop
	return nil
}

func (s *MemoryStore) DeleteRole(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.roles, id)
	delete(s.rolePolicies, id)
	for _, roleIDs := range s.membershipRoles {
		delete(roleIDs, id)
	}
	for _, roleIDs := range s.userGlobalRoles {
		delete(roleIDs, id)
	}
}

func (s *MemoryStore) CreatePolicy(p *AccessPolicy) error {
	if err := p.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cop := *p
	now := time.Now()
	if cop.CreatedAt.IsZero() {
		cop.CreatedAt = now
	}
	if cop.UpdatedAt.IsZero() {
		cop.UpdatedAt = now
	}
	s.policies[p.ID] = &cop
	return nil
}

func (s *MemoryStore) DeletePolicy(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.policies, id)
	for _, policyIDs := range s.rolePolicies {
		delete(policyIDs, id)
	}
}

// AttachPolicy links a policy to a role. Attaching twice is a no-op, matching
// the (policy_id, role_id) uniqueness of the join table.
func (s *MemoryStore) AttachPolicy(policyID, roleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.policies[policyID]; !ok {
		return fmt.Errorf("policy not found: %s", policyID)
	}
	if _, ok := s.roles[roleID]; !ok {
		return fmt.Errorf("role not found: %s", roleID)
	}
	set, ok := s.rolePolicies[roleID]
	if !ok {
		set = NewIDSet()
		s.rolePolicies[roleID] = set
	}
	set.Add(policyID)
	return nil
}

func (s *MemoryStore) DetachPolicy(policyID, roleID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if set, ok := s.rolePolicies[roleID]; ok {
		delete(set, policyID)
	}
}

func (s *MemoryStore) CreateMembership(m Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.ID == "" || m.UserID == "" || m.TenantID == "" {
		return fmt.Errorf("membership requires id, user_id and tenant_id")
	}
	s.memberships[m.ID] = m
	return nil
}

func (s *MemoryStore) RemoveMembership(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.memberships, id)
	delete(s.membershipRoles, id)
}

// AssignRole attaches a role to a membership; repeat assignments are no-ops.
func (s *MemoryStore) AssignRole(membershipID, roleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.memberships[membershipID]; !ok {
		return fmt.Errorf("membership not found: %s", membershipID)
	}
	if _, ok := s.roles[roleID]; !ok {
		return fmt.Errorf("role not found: %s", roleID)
	}
	set, ok := s.membershipRoles[membershipID]
	if !ok {
		set = NewIDSet()
		s.membershipRoles[membershipID] = set
	}
	set.Add(roleID)
	return nil
}

func (s *MemoryStore) UnassignRole(membershipID, roleID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if set, ok := s.membershipRoles[membershipID]; ok {
		delete(set, roleID)
	}
}

// GrantGlobalRole grants an unscoped role (e.g. Staff) directly to a user.
func (s *MemoryStore) GrantGlobalRole(userID, roleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	role, ok := s.roles[roleID]
	if !ok {
		return fmt.Errorf("role not found: %s", roleID)
	}
	if !role.IsGlobal() {
		return fmt.Errorf("role %s is tenant-scoped, not global", roleID)
	}
	set, ok := s.userGlobalRoles[userID]
	if !ok {
		set = NewIDSet()
		s.userGlobalRoles[userID] = set
	}
	set.Add(roleID)
	return nil
}

func (s *MemoryStore) RevokeGlobalRole(userID, roleID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if set, ok := s.userGlobalRoles[userID]; ok {
		delete(set, roleID)
	}
}

// DeleteTenant cascades the tenant's roles, policies and memberships away,
// mirroring the foreign-key cascades of the relational schema.
func (s *MemoryStore) DeleteTenant(tenantID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, r := range s.roles {
		if r.TenantID == tenantID {
			delete(s.roles, id)
			delete(s.rolePolicies, id)
			for _, roleIDs := range s.membershipRoles {
				delete(roleIDs, id)
			}
		}
	}
	for id, p := range s.policies {
		if p.TenantID == tenantID {
			delete(s.policies, id)
			for _, policyIDs := range s.rolePolicies {
				delete(policyIDs, id)
			}
		}
	}
	for id, m := range s.memberships {
		if m.TenantID == tenantID {
			delete(s.memberships, id)
			delete(s.membershipRoles, id)
		}
	}
}

func (s *MemoryStore) ListActiveMemberships(_ context.Context, userID string) ([]Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]Membership, 0)
	for _, m := range s.memberships {
		if m.UserID == userID && m.Active {
			result = append(result, m)
		}
	}
	return result, nil
}

func (s *MemoryStore) ListMemberUserIDs(_ context.Context, tenantID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := NewIDSet()
	for _, m := range s.memberships {
		if m.TenantID == tenantID && m.Active {
			seen.Add(m.UserID)
		}
	}
	return seen.Sorted(), nil
}

func (s *MemoryStore) ListRolesForMembership(_ context.Context, membershipID string) ([]*AccessRole, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*AccessRole, 0)
	for roleID := range s.membershipRoles[membershipID] {
		if r, ok := s.roles[roleID]; ok {
			cop := *r
			result = append(result, &cop)
		}
	}
	return result, nil
}

func (s *MemoryStore) ListGlobalRolesForUser(_ context.Context, userID string) ([]*AccessRole, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*AccessRole, 0)
	for roleID := range s.userGlobalRoles[userID] {
		if r, ok := s.roles[roleID]; ok {
			cop := *r
			result = append(result, &cop)
		}
	}
	return result, nil
}

func (s *MemoryStore) ListPoliciesForRoles(_ context.Context, roleIDs []string) ([]*AccessPolicy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := NewIDSet()
	result := make([]*AccessPolicy, 0)
	for _, roleID := range roleIDs {
		for policyID := range s.rolePolicies[roleID] {
			if seen.Contains(policyID) {
				continue
			}
			seen.Add(policyID)
			if p, ok := s.policies[policyID]; ok {
				cop := *p
				result = append(result, &cop)
			}
		}
	}
	return result, nil
}

// MemoryDirectory is an in-memory implementation of the customer, project and
// staff directories.
type MemoryDirectory struct {
	mu        sync.RWMutex
	customers IDSet
	projects  map[string]string // project id -> customer id
	staff     IDSet
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		customers: NewIDSet(),
		projects:  make(map[string]string),
		staff:     NewIDSet(),
	}
}

func (d *MemoryDirectory) AddCustomer(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.customers.Add(id)
}

// RemoveCustomer deletes the customer and, cascade-style, its projects.
func (d *MemoryDirectory) RemoveCustomer(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.customers, id)
	for pid, cid := range d.projects {
		if cid == id {
			delete(d.projects, pid)
		}
	}
}

func (d *MemoryDirectory) AddProject(id, customerID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.customers.Contains(customerID) {
		return &ResourceNotFoundError{Resource: ResourceTypeCustomer, ID: customerID}
	}
	d.projects[id] = customerID
	return nil
}

func (d *MemoryDirectory) RemoveProject(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.projects, id)
}

func (d *MemoryDirectory) AddStaff(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.staff.Add(id)
}

func (d *MemoryDirectory) ListCustomerIDs(context.Context) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.customers.Sorted(), nil
}

func (d *MemoryDirectory) ListProjectIDs(context.Context) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, 0, len(d.projects))
	for id := range d.projects {
		out = append(out, id)
	}
	return out, nil
}

func (d *MemoryDirectory) ListProjectIDsForCustomers(_ context.Context, customerIDs []string) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	want := NewIDSet(customerIDs...)
	out := make([]string, 0)
	for pid, cid := range d.projects {
		if want.Contains(cid) {
			out = append(out, pid)
		}
	}
	return out, nil
}

func (d *MemoryDirectory) CustomerOfProject(_ context.Context, projectID string) (string, bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	cid, ok := d.projects[projectID]
	return cid, ok, nil
}

func (d *MemoryDirectory) ListStaffIDs(context.Context) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.staff.Sorted(), nil
}
