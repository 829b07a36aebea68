package authz

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/burnnotice/authz/logger"
)

// MembershipStore is the engine's read-only view of user/tenant memberships.
type MembershipStore interface {
	// ListActiveMemberships returns the active memberships of userID.
	ListActiveMemberships(ctx context.Context, userID string) ([]Membership, error)

	// ListMemberUserIDs returns the user ids holding an active membership in
	// tenantID. Used for per-tenant cache invalidation.
	ListMemberUserIDs(ctx context.Context, tenantID string) ([]string, error)
}

// RoleStore resolves role assignments.
type RoleStore interface {
	// ListRolesForMembership returns the roles assigned to a membership.
	ListRolesForMembership(ctx context.Context, membershipID string) ([]*AccessRole, error)

	// ListGlobalRolesForUser returns unscoped roles held directly by the user
	// (e.g. the system Staff role), which exist outside any membership.
	ListGlobalRolesForUser(ctx context.Context, userID string) ([]*AccessRole, error)
}

// PolicyStore resolves the policies attached to a set of roles.
type PolicyStore interface {
	ListPoliciesForRoles(ctx context.Context, roleIDs []string) ([]*AccessPolicy, error)
}

// PermissionService is the core evaluator. It combines memberships, role
// assignments, policy rules, effects and resource hierarchy into the effective
// set of resource ids a user may act on. It only ever reads from its stores;
// the cache is the single piece of mutable state.
type PermissionService struct {
	memberships MembershipStore
	roles       RoleStore
	policies    PolicyStore
	registry    *HandlerRegistry

	cache  PermissionCache
	logger logger.Logger

	audit     AuditStore
	auditCh   chan AuditEntry
	done      chan struct{}
	closeOnce sync.Once
}

// ServiceOption configures a PermissionService.
type ServiceOption func(*PermissionService) error

// WithLogger installs a structured logger. The default logs nothing.
func WithLogger(l logger.Logger) ServiceOption {
	return func(s *PermissionService) error {
		if l == nil {
			return fmt.Errorf("logger is nil")
		}
		s.logger = l
		return nil
	}
}

// WithCache swaps the permission cache. The default is an in-memory map cache.
func WithCache(c PermissionCache) ServiceOption {
	return func(s *PermissionService) error {
		if c == nil {
			return fmt.Errorf("cache is nil")
		}
		s.cache = c
		return nil
	}
}

// WithAuditStore enables asynchronous decision auditing of point checks.
func WithAuditStore(store AuditStore) ServiceOption {
	return func(s *PermissionService) error {
		if store == nil {
			return fmt.Errorf("audit store is nil")
		}
		s.audit = store
		return nil
	}
}

// NewPermissionService wires the evaluator. All collaborators are injected;
// there are no hidden singletons, so tests can swap the cache and stores
// freely.
func NewPermissionService(memberships MembershipStore, roles RoleStore, policies PolicyStore, registry *HandlerRegistry, opts ...ServiceOption) (*PermissionService, error) {
	if memberships == nil || roles == nil || policies == nil {
		return nil, fmt.Errorf("membership, role and policy stores are required")
	}
	if registry == nil {
		return nil, fmt.Errorf("handler registry is required")
	}
	s := &PermissionService{
		memberships: memberships,
		roles:       roles,
		policies:    policies,
		registry:    registry,
		cache:       NewMemoryPermissionCache(),
		logger:      logger.NewNullLogger(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	if s.audit != nil {
		s.auditCh = make(chan AuditEntry, 1024)
		s.done = make(chan struct{})
		go s.auditWorker()
	}
	return s, nil
}

// Close stops the audit worker, flushing queued entries. Safe to call more
// than once and when auditing is disabled.
func (s *PermissionService) Close() {
	s.closeOnce.Do(func() {
		if s.auditCh != nil {
			close(s.auditCh)
			<-s.done
		}
	})
}

// resolution is everything derived from a user id before rule evaluation.
type resolution struct {
	tenantIDs IDSet // tenants of active memberships
	roleIDs   []string
	policies  []*AccessPolicy
	staff     bool
}

// resolveRoles walks user -> active memberships -> role assignments, folding
// in global roles held outside any membership.
func (s *PermissionService) resolveRoles(ctx context.Context, userID string) (IDSet, []*AccessRole, error) {
	memberships, err := s.memberships.ListActiveMemberships(ctx, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("list memberships for user %s: %w", userID, err)
	}
	tenantIDs := NewIDSet()
	seen := NewIDSet()
	var roles []*AccessRole
	for _, m := range memberships {
		tenantIDs.Add(m.TenantID)
		assigned, err := s.roles.ListRolesForMembership(ctx, m.ID)
		if err != nil {
			return nil, nil, fmt.Errorf("list roles for membership %s: %w", m.ID, err)
		}
		for _, r := range assigned {
			if !seen.Contains(r.ID) {
				seen.Add(r.ID)
				roles = append(roles, r)
			}
		}
	}
	global, err := s.roles.ListGlobalRolesForUser(ctx, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("list global roles for user %s: %w", userID, err)
	}
	for _, r := range global {
		if !seen.Contains(r.ID) {
			seen.Add(r.ID)
			roles = append(roles, r)
		}
	}
	return tenantIDs, roles, nil
}

func (s *PermissionService) resolve(ctx context.Context, userID string) (*resolution, error) {
	tenantIDs, roles, err := s.resolveRoles(ctx, userID)
	if err != nil {
		return nil, err
	}
	res := &resolution{tenantIDs: tenantIDs}
	for _, r := range roles {
		res.roleIDs = append(res.roleIDs, r.ID)
		if r.IsSystemStaff() {
			res.staff = true
		}
	}
	if res.staff || len(res.roleIDs) == 0 {
		// Staff bypasses rule evaluation; no roles means no policies.
		return res, nil
	}
	policies, err := s.policies.ListPoliciesForRoles(ctx, res.roleIDs)
	if err != nil {
		return nil, fmt.Errorf("list policies for user %s: %w", userID, err)
	}
	res.policies = policies
	return res, nil
}

func splitByEffect(policies []*AccessPolicy) (allow, deny []*AccessPolicy) {
	for _, p := range policies {
		if p.Effect == EffectDeny {
			deny = append(deny, p)
		} else {
			allow = append(allow, p)
		}
	}
	return allow, deny
}

// ListPermittedIDs resolves the effective set of resourceType ids userID may
// act on at the requested permission level. An empty set means no access, not
// an error. Results are cached per (user, permission, resource type) until
// invalidated.
func (s *PermissionService) ListPermittedIDs(ctx context.Context, userID string, permission PermissionType, resourceType ResourceType) (IDSet, error) {
	if !permission.Valid() {
		return nil, fmt.Errorf("unknown permission type %q", permission)
	}
	handler, err := s.registry.Handler(resourceType)
	if err != nil {
		return nil, err
	}
	key := CacheKey{UserID: userID, Permission: permission, Resource: resourceType}
	return s.cache.GetOrCompute(ctx, key, func(ctx context.Context) (IDSet, error) {
		return s.computePermittedIDs(ctx, handler, userID, permission)
	})
}

func (s *PermissionService) computePermittedIDs(ctx context.Context, handler PermissionHandler, userID string, permission PermissionType) (IDSet, error) {
	res, err := s.resolve(ctx, userID)
	if err != nil {
		return nil, err
	}
	if res.staff {
		// Full bypass: staff sees every resource of the type. Deny rules are
		// never evaluated for staff.
		all, err := handler.AllResourceIDs(ctx)
		if err != nil {
			return nil, err
		}
		s.logger.Debug("staff bypass", "user_id", userID, "resource_type", string(handler.ResourceType()), "count", all.Len())
		return all, nil
	}
	allowRules, denyRules := splitByEffect(res.policies)
	allowed, err := handler.HierarchicalResourceIDs(ctx, allowRules, permission, res.tenantIDs)
	if err != nil {
		return nil, err
	}
	if len(denyRules) > 0 {
		denied, err := handler.HierarchicalResourceIDs(ctx, denyRules, permission, res.tenantIDs)
		if err != nil {
			return nil, err
		}
		allowed.Subtract(denied)
	}
	s.logger.Debug("resolved permitted ids",
		"user_id", userID,
		"permission", string(permission),
		"resource_type", string(handler.ResourceType()),
		"count", allowed.Len(),
	)
	return allowed, nil
}

// CheckPermission reports whether userID holds permission on one specific
// resource. It is equivalent to membership in ListPermittedIDs but avoids
// materializing the whole set: selectors are point-matched and hierarchy is
// resolved through the handler's point check.
func (s *PermissionService) CheckPermission(ctx context.Context, userID string, permission PermissionType, resourceType ResourceType, resourceID string) (bool, error) {
	if !permission.Valid() {
		return false, fmt.Errorf("unknown permission type %q", permission)
	}
	handler, err := s.registry.Handler(resourceType)
	if err != nil {
		return false, err
	}
	res, err := s.resolve(ctx, userID)
	if err != nil {
		return false, err
	}

	allowed, reason, err := s.checkResolved(ctx, handler, res, permission, resourceID)
	if err != nil {
		return false, err
	}
	s.auditDecision(userID, permission, resourceType, resourceID, allowed, reason)
	return allowed, nil
}

// checkResolved runs the point check against an already-resolved rule set.
// Deny rules are evaluated first so a deny always wins over an allow for the
// same resource, regardless of which role contributed it.
func (s *PermissionService) checkResolved(ctx context.Context, handler PermissionHandler, res *resolution, permission PermissionType, resourceID string) (bool, string, error) {
	if res.staff {
		return true, "staff bypass", nil
	}
	allowRules, denyRules := splitByEffect(res.policies)

	for _, rule := range denyRules {
		matched, err := ruleMatchesResource(ctx, handler, rule, permission, resourceID, res.tenantIDs)
		if err != nil {
			return false, "", err
		}
		if matched {
			return false, "deny rule " + rule.ID, nil
		}
	}
	if len(denyRules) > 0 {
		denied, err := handler.HasHierarchicalPermission(ctx, denyRules, permission, resourceID, res.tenantIDs)
		if err != nil {
			return false, "", err
		}
		if denied {
			return false, "inherited deny", nil
		}
	}

	for _, rule := range allowRules {
		matched, err := ruleMatchesResource(ctx, handler, rule, permission, resourceID, res.tenantIDs)
		if err != nil {
			return false, "", err
		}
		if matched {
			return true, "allow rule " + rule.ID, nil
		}
	}
	granted, err := handler.HasHierarchicalPermission(ctx, allowRules, permission, resourceID, res.tenantIDs)
	if err != nil {
		return false, "", err
	}
	if granted {
		return true, "inherited allow", nil
	}
	return false, "no matching rule", nil
}

// RequirePermission is CheckPermission that returns ErrAccessDenied instead of
// false, for callers that want to propagate a denial directly.
func (s *PermissionService) RequirePermission(ctx context.Context, userID string, permission PermissionType, resourceType ResourceType, resourceID string) error {
	ok, err := s.CheckPermission(ctx, userID, permission, resourceType, resourceID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrAccessDenied
	}
	return nil
}

// IsStaffUserID reports whether the user holds the global Staff role.
func (s *PermissionService) IsStaffUserID(ctx context.Context, userID string) (bool, error) {
	_, roles, err := s.resolveRoles(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, r := range roles {
		if r.IsSystemStaff() {
			return true, nil
		}
	}
	return false, nil
}

// InvalidateCustomerMemberUserCache evicts cached permission results for every
// user with an active membership in tenantID. Callers must invoke it after any
// role, policy or assignment mutation within the tenant; a stale entry is a
// correctness bug, not just a performance one.
func (s *PermissionService) InvalidateCustomerMemberUserCache(ctx context.Context, tenantID string) error {
	userIDs, err := s.memberships.ListMemberUserIDs(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("list members of tenant %s: %w", tenantID, err)
	}
	for _, uid := range userIDs {
		s.cache.InvalidateUser(uid)
	}
	s.logger.Info("invalidated permission cache", "tenant_id", tenantID, "users", len(userIDs))
	return nil
}

// InvalidateUserCache evicts a single user's cached results, for callers that
// know the blast radius is one user (e.g. a membership removal).
func (s *PermissionService) InvalidateUserCache(userID string) {
	s.cache.InvalidateUser(userID)
}

func (s *PermissionService) auditDecision(userID string, permission PermissionType, resourceType ResourceType, resourceID string, allowed bool, reason string) {
	s.logger.Debug("permission decision",
		"user_id", userID,
		"permission", string(permission),
		"resource_type", string(resourceType),
		"resource_id", resourceID,
		"allowed", allowed,
		"reason", reason,
	)
	if s.auditCh == nil {
		return
	}
	entry := AuditEntry{
		ID:         uuid.NewString(),
		UserID:     userID,
		Permission: permission,
		Resource:   resourceType,
		ResourceID: resourceID,
		Allowed:    allowed,
		Reason:     reason,
		Timestamp:  time.Now(),
	}
	select {
	case s.auditCh <- entry:
	default:
		// Never block a permission check on the audit trail.
	}
}

func (s *PermissionService) auditWorker() {
	defer close(s.done)
	bg := context.Background()
	for entry := range s.auditCh {
		if err := s.audit.LogDecision(bg, &entry); err != nil {
			s.logger.Error("audit log failed", "entry_id", entry.ID, "error", err.Error())
		}
	}
}
