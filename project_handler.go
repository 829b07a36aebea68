package authz

import "context"

// ProjectHandler serves the project resource type. Projects belong to a
// customer, so a customer-level grant of the same or higher permission
// implicitly covers every project under that customer.
type ProjectHandler struct {
	dir    ProjectDirectory
	parent PermissionHandler // customer handler; resolves parent-level grants
}

func NewProjectHandler(dir ProjectDirectory, parent *CustomerHandler) *ProjectHandler {
	return &ProjectHandler{dir: dir, parent: parent}
}

func (h *ProjectHandler) ResourceType() ResourceType { return ResourceTypeProject }

func (h *ProjectHandler) AllResourceIDs(ctx context.Context) (IDSet, error) {
	ids, err := h.dir.ListProjectIDs(ctx)
	if err != nil {
		return nil, err
	}
	return NewIDSet(ids...), nil
}

func (h *ProjectHandler) Universe(ctx context.Context, parentIDs IDSet) (IDSet, error) {
	if parentIDs.Len() == 0 {
		return NewIDSet(), nil
	}
	ids, err := h.dir.ListProjectIDsForCustomers(ctx, parentIDs.Sorted())
	if err != nil {
		return nil, err
	}
	return NewIDSet(ids...), nil
}

func (h *ProjectHandler) HierarchicalResourceIDs(ctx context.Context, rules []*AccessPolicy, permission PermissionType, parentIDs IDSet) (IDSet, error) {
	direct, err := collectDirectIDs(ctx, h, rules, permission, parentIDs)
	if err != nil {
		return nil, err
	}
	// Fold in projects inherited from customer-level grants.
	grantedCustomers, err := collectDirectIDs(ctx, h.parent, rules, permission, parentIDs)
	if err != nil {
		return nil, err
	}
	if grantedCustomers.Len() == 0 {
		return direct, nil
	}
	inherited, err := h.dir.ListProjectIDsForCustomers(ctx, grantedCustomers.Sorted())
	if err != nil {
		return nil, err
	}
	direct.AddAll(inherited)
	return direct, nil
}

// HasHierarchicalPermission reports whether a customer-level rule covers the
// project's owning customer. A project whose customer lookup comes back empty
// (deleted underneath us) yields no access.
func (h *ProjectHandler) HasHierarchicalPermission(ctx context.Context, rules []*AccessPolicy, permission PermissionType, resourceID string, parentIDs IDSet) (bool, error) {
	customerID, ok, err := h.dir.CustomerOfProject(ctx, resourceID)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	for _, rule := range rules {
		if rule.Resource != ResourceTypeCustomer || !rule.Permission.Satisfies(permission) {
			continue
		}
		matched, err := rule.Selector.Matches(customerID)
		if err != nil {
			return false, err
		}
		if !matched {
			continue
		}
		// Wildcard grants reach only the rule's universe: the caller's
		// membership tenants, narrowed to the rule's own tenant when scoped.
		if !rule.Selector.Enumerable() {
			if !parentIDs.Contains(customerID) {
				continue
			}
			if rule.TenantID != "" && rule.TenantID != customerID {
				continue
			}
		}
		return true, nil
	}
	return false, nil
}
