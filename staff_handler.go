package authz

import "context"

// StaffHandler serves the staff resource type. Staff users are not tenant
// children, so the universe is global and there is no parent level to inherit
// from.
type StaffHandler struct {
	dir StaffDirectory
}

func NewStaffHandler(dir StaffDirectory) *StaffHandler {
	return &StaffHandler{dir: dir}
}

func (h *StaffHandler) ResourceType() ResourceType { return ResourceTypeStaff }

func (h *StaffHandler) AllResourceIDs(ctx context.Context) (IDSet, error) {
	ids, err := h.dir.ListStaffIDs(ctx)
	if err != nil {
		return nil, err
	}
	return NewIDSet(ids...), nil
}

func (h *StaffHandler) Universe(ctx context.Context, _ IDSet) (IDSet, error) {
	return h.AllResourceIDs(ctx)
}

func (h *StaffHandler) HierarchicalResourceIDs(ctx context.Context, rules []*AccessPolicy, permission PermissionType, parentIDs IDSet) (IDSet, error) {
	return collectDirectIDs(ctx, h, rules, permission, parentIDs)
}

func (h *StaffHandler) HasHierarchicalPermission(context.Context, []*AccessPolicy, PermissionType, string, IDSet) (bool, error) {
	return false, nil
}
