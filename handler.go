package authz

import (
	"context"
	"fmt"
	"sync"
)

// PermissionHandler is the per-resource-type strategy the evaluator delegates
// to. Resources form a tree (customer -> project); each handler knows how to
// walk one level of that tree so the evaluator stays free of resource-type
// specifics. Registering a handler for a new resource type is the extension
// point for covering new resources.
type PermissionHandler interface {
	// ResourceType identifies the resource type this handler serves.
	ResourceType() ResourceType

	// AllResourceIDs returns every id of this type system-wide. Used for the
	// staff bypass.
	AllResourceIDs(ctx context.Context) (IDSet, error)

	// Universe returns the ids of this type reachable from the given parent
	// ids (the tenant ids the caller holds memberships in). Wildcard grants
	// are resolved against this set.
	Universe(ctx context.Context, parentIDs IDSet) (IDSet, error)

	// HierarchicalResourceIDs collects the ids the given rules grant at the
	// requested permission level: directly (rules at this resource type) and
	// by inheritance (rules at a parent resource type granting the same or
	// higher permission).
	HierarchicalResourceIDs(ctx context.Context, rules []*AccessPolicy, permission PermissionType, parentIDs IDSet) (IDSet, error)

	// HasHierarchicalPermission is the point-check counterpart: it reports
	// whether a parent-level rule covers resourceID's parent. parentIDs scopes
	// wildcard parent rules exactly as in HierarchicalResourceIDs. A parent
	// that no longer exists is an ordinary "no" branch, not an error.
	HasHierarchicalPermission(ctx context.Context, rules []*AccessPolicy, permission PermissionType, resourceID string, parentIDs IDSet) (bool, error)
}

// HandlerRegistry maps resource types to their handlers. Handlers are
// registered at init time; lookups are concurrent-safe.
type HandlerRegistry struct {
	mu       sync.RWMutex
	handlers map[ResourceType]PermissionHandler
}

func NewHandlerRegistry(handlers ...PermissionHandler) (*HandlerRegistry, error) {
	r := &HandlerRegistry{handlers: make(map[ResourceType]PermissionHandler, len(handlers))}
	for _, h := range handlers {
		if err := r.Register(h); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *HandlerRegistry) Register(h PermissionHandler) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rt := h.ResourceType()
	if rt == "" {
		return fmt.Errorf("handler has empty resource type")
	}
	if _, exists := r.handlers[rt]; exists {
		return fmt.Errorf("handler already registered for resource type %q", rt)
	}
	r.handlers[rt] = h
	return nil
}

// Handler returns the handler for rt, or *UnknownResourceTypeError.
func (r *HandlerRegistry) Handler(rt ResourceType) (PermissionHandler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[rt]
	if !ok {
		return nil, &UnknownResourceTypeError{Resource: rt}
	}
	return h, nil
}

// ResourceTypes returns the registered resource types.
func (r *HandlerRegistry) ResourceTypes() []ResourceType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ResourceType, 0, len(r.handlers))
	for rt := range r.handlers {
		out = append(out, rt)
	}
	return out
}

// ruleUniverse resolves the universe a wildcard-selector rule can reach for
// the given handler. A global rule sees everything under the caller's
// memberships; a tenant-scoped rule sees only that tenant's slice, and an
// empty set when the caller is not a member of the rule's tenant.
func ruleUniverse(ctx context.Context, h PermissionHandler, rule *AccessPolicy, parentIDs IDSet) (IDSet, error) {
	if rule.TenantID == "" {
		return h.Universe(ctx, parentIDs)
	}
	if !parentIDs.Contains(rule.TenantID) {
		return NewIDSet(), nil
	}
	return h.Universe(ctx, NewIDSet(rule.TenantID))
}

// collectDirectIDs gathers the ids granted by rules declared at the handler's
// own resource type. Enumerable selectors contribute their ids as-is; wildcard
// selectors are intersected with the rule's universe. Malformed selectors
// abort collection.
func collectDirectIDs(ctx context.Context, h PermissionHandler, rules []*AccessPolicy, permission PermissionType, parentIDs IDSet) (IDSet, error) {
	out := NewIDSet()
	for _, rule := range rules {
		if rule.Resource != h.ResourceType() || !rule.Permission.Satisfies(permission) {
			continue
		}
		if err := rule.Selector.Validate(); err != nil {
			return nil, err
		}
		if rule.Selector.Enumerable() {
			out.AddAll(rule.Selector.EnumeratedIDs())
			continue
		}
		universe, err := ruleUniverse(ctx, h, rule, parentIDs)
		if err != nil {
			return nil, err
		}
		for id := range universe {
			ok, err := rule.Selector.Matches(id)
			if err != nil {
				return nil, err
			}
			if ok {
				out.Add(id)
			}
		}
	}
	return out, nil
}

// ruleMatchesResource is the point-check form of collectDirectIDs for a single
// rule and candidate id.
func ruleMatchesResource(ctx context.Context, h PermissionHandler, rule *AccessPolicy, permission PermissionType, resourceID string, parentIDs IDSet) (bool, error) {
	if rule.Resource != h.ResourceType() || !rule.Permission.Satisfies(permission) {
		return false, nil
	}
	ok, err := rule.Selector.Matches(resourceID)
	if err != nil || !ok {
		return false, err
	}
	if rule.Selector.Enumerable() {
		return true, nil
	}
	// Wildcard match still has to fall inside the rule's universe.
	universe, err := ruleUniverse(ctx, h, rule, parentIDs)
	if err != nil {
		return false, err
	}
	return universe.Contains(resourceID), nil
}
