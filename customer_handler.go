package authz

import "context"

// CustomerHandler serves the customer (tenant) resource type, the root of the
// resource tree. Customers have no parent, so hierarchical resolution reduces
// to direct rule collection.
type CustomerHandler struct {
	dir CustomerDirectory
}

func NewCustomerHandler(dir CustomerDirectory) *CustomerHandler {
	return &CustomerHandler{dir: dir}
}

func (h *CustomerHandler) ResourceType() ResourceType { return ResourceTypeCustomer }

func (h *CustomerHandler) AllResourceIDs(ctx context.Context) (IDSet, error) {
	ids, err := h.dir.ListCustomerIDs(ctx)
	if err != nil {
		return nil, err
	}
	return NewIDSet(ids...), nil
}

// Universe is the identity: the parent ids handed in are membership tenant
// ids, which are themselves the customer universe for the caller.
func (h *CustomerHandler) Universe(_ context.Context, parentIDs IDSet) (IDSet, error) {
	return parentIDs.Clone(), nil
}

func (h *CustomerHandler) HierarchicalResourceIDs(ctx context.Context, rules []*AccessPolicy, permission PermissionType, parentIDs IDSet) (IDSet, error) {
	return collectDirectIDs(ctx, h, rules, permission, parentIDs)
}

// HasHierarchicalPermission is always false: nothing sits above a customer.
func (h *CustomerHandler) HasHierarchicalPermission(context.Context, []*AccessPolicy, PermissionType, string, IDSet) (bool, error) {
	return false, nil
}
