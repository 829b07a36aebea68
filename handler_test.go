package authz

import (
	"context"
	"errors"
	"testing"
)

func testDirectory(t *testing.T) *MemoryDirectory {
	t.Helper()
	dir := NewMemoryDirectory()
	dir.AddCustomer("c1")
	dir.AddCustomer("c2")
	for id, customer := range map[string]string{"p1": "c1", "p2": "c1", "p3": "c2"} {
		if err := dir.AddProject(id, customer); err != nil {
			t.Fatalf("add project %s: %v", id, err)
		}
	}
	return dir
}

func TestHandlerRegistry(t *testing.T) {
	dir := testDirectory(t)
	customer := NewCustomerHandler(dir)
	registry, err := NewHandlerRegistry(customer, NewProjectHandler(dir, customer))
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}

	h, err := registry.Handler(ResourceTypeProject)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if h.ResourceType() != ResourceTypeProject {
		t.Fatalf("wrong handler %s", h.ResourceType())
	}

	_, err = registry.Handler(ResourceType("document"))
	var unknown *UnknownResourceTypeError
	if !errors.As(err, &unknown) {
		t.Fatalf("expected UnknownResourceTypeError, got %v", err)
	}

	if err := registry.Register(NewCustomerHandler(dir)); err == nil {
		t.Fatal("duplicate registration should fail")
	}
}

func TestProjectUniverseFollowsParents(t *testing.T) {
	dir := testDirectory(t)
	customer := NewCustomerHandler(dir)
	project := NewProjectHandler(dir, customer)
	ctx := context.Background()

	universe, err := project.Universe(ctx, NewIDSet("c1"))
	if err != nil {
		t.Fatalf("universe: %v", err)
	}
	assertIDs(t, universe, "p1", "p2")

	universe, err = project.Universe(ctx, NewIDSet())
	if err != nil {
		t.Fatalf("empty universe: %v", err)
	}
	assertIDs(t, universe)

	all, err := project.AllResourceIDs(ctx)
	if err != nil {
		t.Fatalf("all: %v", err)
	}
	assertIDs(t, all, "p1", "p2", "p3")
}

func TestProjectInheritsCustomerGrants(t *testing.T) {
	dir := testDirectory(t)
	customer := NewCustomerHandler(dir)
	project := NewProjectHandler(dir, customer)
	ctx := context.Background()

	rules := []*AccessPolicy{
		{ID: "r1", Permission: PermissionWrite, Resource: ResourceTypeCustomer, Selector: ExactSelector("c1"), Effect: EffectAllow},
		{ID: "r2", Permission: PermissionRead, Resource: ResourceTypeProject, Selector: ExactSelector("p3"), Effect: EffectAllow},
	}

	ids, err := project.HierarchicalResourceIDs(ctx, rules, PermissionRead, NewIDSet("c1", "c2"))
	if err != nil {
		t.Fatalf("hierarchical: %v", err)
	}
	assertIDs(t, ids, "p1", "p2", "p3")

	// At write level the read-only project rule drops out.
	ids, err = project.HierarchicalResourceIDs(ctx, rules, PermissionWrite, NewIDSet("c1", "c2"))
	if err != nil {
		t.Fatalf("hierarchical write: %v", err)
	}
	assertIDs(t, ids, "p1", "p2")

	ok, err := project.HasHierarchicalPermission(ctx, rules, PermissionWrite, "p2", NewIDSet("c1", "c2"))
	if err != nil {
		t.Fatalf("point check: %v", err)
	}
	if !ok {
		t.Fatal("customer rule should cover p2")
	}
	ok, err = project.HasHierarchicalPermission(ctx, rules, PermissionWrite, "p3", NewIDSet("c1", "c2"))
	if err != nil {
		t.Fatalf("point check p3: %v", err)
	}
	if ok {
		t.Fatal("c1 grant must not cover c2's project")
	}
}

func TestProjectPointCheckDeletedProject(t *testing.T) {
	dir := testDirectory(t)
	customer := NewCustomerHandler(dir)
	project := NewProjectHandler(dir, customer)

	rules := []*AccessPolicy{
		{ID: "r1", Permission: PermissionAdmin, Resource: ResourceTypeCustomer, Selector: WildcardSelector(), Effect: EffectAllow},
	}

	ok, err := project.HasHierarchicalPermission(context.Background(), rules, PermissionRead, "p-gone", NewIDSet("c1", "c2"))
	if err != nil {
		t.Fatalf("expected ordinary no-access branch, got error %v", err)
	}
	if ok {
		t.Fatal("missing project should yield no access")
	}
}

// Wildcard customer rules on the point-check path stay inside the caller's
// membership tenants, exactly as on the set path.
func TestProjectPointCheckWildcardCustomerScope(t *testing.T) {
	dir := testDirectory(t)
	customer := NewCustomerHandler(dir)
	project := NewProjectHandler(dir, customer)
	ctx := context.Background()
	memberOfC1 := NewIDSet("c1")

	cases := []struct {
		name      string
		rule      *AccessPolicy
		projectID string
		want      bool
	}{
		{
			"global wildcard covers member tenant project",
			&AccessPolicy{ID: "r1", Permission: PermissionRead, Resource: ResourceTypeCustomer, Selector: WildcardSelector(), Effect: EffectAllow},
			"p1", true,
		},
		{
			"global wildcard stops at non-member tenant",
			&AccessPolicy{ID: "r1", Permission: PermissionRead, Resource: ResourceTypeCustomer, Selector: WildcardSelector(), Effect: EffectAllow},
			"p3", false,
		},
		{
			"tenant-scoped wildcard covers own tenant",
			&AccessPolicy{ID: "r2", TenantID: "c1", Permission: PermissionRead, Resource: ResourceTypeCustomer, Selector: WildcardSelector(), Effect: EffectAllow},
			"p2", true,
		},
		{
			"tenant-scoped wildcard stops at other tenant",
			&AccessPolicy{ID: "r2", TenantID: "c1", Permission: PermissionRead, Resource: ResourceTypeCustomer, Selector: WildcardSelector(), Effect: EffectAllow},
			"p3", false,
		},
		{
			"wildcard_except excludes the owning customer",
			&AccessPolicy{ID: "r3", Permission: PermissionRead, Resource: ResourceTypeCustomer, Selector: WildcardExceptSelector("c1"), Effect: EffectAllow},
			"p1", false,
		},
		{
			"wildcard_except still bounded by membership",
			&AccessPolicy{ID: "r3", Permission: PermissionRead, Resource: ResourceTypeCustomer, Selector: WildcardExceptSelector("c1"), Effect: EffectAllow},
			"p3", false,
		},
		{
			"exact grant is not membership-bounded",
			&AccessPolicy{ID: "r4", Permission: PermissionRead, Resource: ResourceTypeCustomer, Selector: ExactSelector("c2"), Effect: EffectAllow},
			"p3", true,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := project.HasHierarchicalPermission(ctx, []*AccessPolicy{tc.rule}, PermissionRead, tc.projectID, memberOfC1)
			if err != nil {
				t.Fatalf("point check: %v", err)
			}
			if got != tc.want {
				t.Fatalf("point check %s = %v, want %v", tc.projectID, got, tc.want)
			}
		})
	}
}

func TestStaffHandlerUniverseIsGlobal(t *testing.T) {
	dir := NewMemoryDirectory()
	dir.AddStaff("s1")
	dir.AddStaff("s2")
	staff := NewStaffHandler(dir)
	ctx := context.Background()

	universe, err := staff.Universe(ctx, NewIDSet())
	if err != nil {
		t.Fatalf("universe: %v", err)
	}
	assertIDs(t, universe, "s1", "s2")

	rules := []*AccessPolicy{
		{ID: "r1", Permission: PermissionRead, Resource: ResourceTypeStaff, Selector: WildcardSelector(), Effect: EffectAllow},
	}
	ids, err := staff.HierarchicalResourceIDs(ctx, rules, PermissionRead, NewIDSet())
	if err != nil {
		t.Fatalf("hierarchical: %v", err)
	}
	assertIDs(t, ids, "s1", "s2")
}
