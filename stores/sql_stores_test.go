package stores

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/oarkflow/squealx"
	_ "modernc.org/sqlite"

	"github.com/burnnotice/authz"
)

func openTestDB(t *testing.T) *squealx.DB {
	t.Helper()
	sqlDB, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })
	db := squealx.NewDb(sqlDB, "sqlite", "testdb")
	if err := Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func seedTestData(t *testing.T, db *squealx.DB) {
	t.Helper()
	ctx := context.Background()

	dir := NewSQLDirectory(db)
	if err := dir.AddCustomer(ctx, "c1", "Acme"); err != nil {
		t.Fatalf("add customer: %v", err)
	}
	if err := dir.AddCustomer(ctx, "c2", "Globex"); err != nil {
		t.Fatalf("add customer: %v", err)
	}
	for id, customer := range map[string]string{"p1": "c1", "p2": "c1", "p3": "c2"} {
		if err := dir.AddProject(ctx, id, customer, ""); err != nil {
			t.Fatalf("add project %s: %v", id, err)
		}
	}
	if err := dir.AddStaff(ctx, "staff-1"); err != nil {
		t.Fatalf("add staff: %v", err)
	}

	roles := NewSQLRoleStore(db)
	if err := roles.CreateRole(ctx, &authz.AccessRole{ID: "role-staff", Name: authz.StaffRoleName}); err != nil {
		t.Fatalf("create staff role: %v", err)
	}
	if err := roles.CreateRole(ctx, &authz.AccessRole{ID: "role-editor", Name: "Editor", TenantID: "c1"}); err != nil {
		t.Fatalf("create editor role: %v", err)
	}
	if err := roles.GrantGlobalRole(ctx, "staff-1", "role-staff"); err != nil {
		t.Fatalf("grant staff: %v", err)
	}

	policies := NewSQLPolicyStore(db)
	if err := policies.CreatePolicy(ctx, &authz.AccessPolicy{
		ID:         "pol-wild",
		TenantID:   "c1",
		Permission: authz.PermissionWrite,
		Resource:   authz.ResourceTypeProject,
		Selector:   authz.WildcardSelector(),
		Effect:     authz.EffectAllow,
	}); err != nil {
		t.Fatalf("create policy: %v", err)
	}
	if err := policies.CreatePolicy(ctx, &authz.AccessPolicy{
		ID:         "pol-deny",
		Permission: authz.PermissionWrite,
		Resource:   authz.ResourceTypeProject,
		Selector:   authz.ExactSelector("p2"),
		Effect:     authz.EffectDeny,
	}); err != nil {
		t.Fatalf("create deny policy: %v", err)
	}
	if err := policies.AttachPolicy(ctx, "pol-wild", "role-editor"); err != nil {
		t.Fatalf("attach: %v", err)
	}
	if err := policies.AttachPolicy(ctx, "pol-deny", "role-editor"); err != nil {
		t.Fatalf("attach deny: %v", err)
	}

	memberships := NewSQLMembershipStore(db)
	if err := memberships.CreateMembership(ctx, authz.Membership{ID: "m1", UserID: "alice", TenantID: "c1", Active: true}); err != nil {
		t.Fatalf("create membership: %v", err)
	}
	if err := memberships.AssignRole(ctx, "m1", "role-editor"); err != nil {
		t.Fatalf("assign role: %v", err)
	}
	if err := memberships.CreateMembership(ctx, authz.Membership{ID: "m2", UserID: "bob", TenantID: "c1", Active: false}); err != nil {
		t.Fatalf("create inactive membership: %v", err)
	}
}

func TestSQLStoresRoundtrip(t *testing.T) {
	db := openTestDB(t)
	seedTestData(t, db)
	ctx := context.Background()

	memberships := NewSQLMembershipStore(db)
	active, err := memberships.ListActiveMemberships(ctx, "alice")
	if err != nil {
		t.Fatalf("list memberships: %v", err)
	}
	if len(active) != 1 || active[0].TenantID != "c1" {
		t.Fatalf("unexpected memberships %+v", active)
	}
	active, err = memberships.ListActiveMemberships(ctx, "bob")
	if err != nil {
		t.Fatalf("list bob: %v", err)
	}
	if len(active) != 0 {
		t.Fatalf("inactive membership leaked: %+v", active)
	}

	users, err := memberships.ListMemberUserIDs(ctx, "c1")
	if err != nil {
		t.Fatalf("list members: %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("expected alice and bob, got %v", users)
	}

	roles := NewSQLRoleStore(db)
	assigned, err := roles.ListRolesForMembership(ctx, "m1")
	if err != nil {
		t.Fatalf("list roles: %v", err)
	}
	if len(assigned) != 1 || assigned[0].ID != "role-editor" {
		t.Fatalf("unexpected roles %+v", assigned)
	}
	global, err := roles.ListGlobalRolesForUser(ctx, "staff-1")
	if err != nil {
		t.Fatalf("global roles: %v", err)
	}
	if len(global) != 1 || !global[0].IsSystemStaff() {
		t.Fatalf("expected the Staff role, got %+v", global)
	}

	policies := NewSQLPolicyStore(db)
	attached, err := policies.ListPoliciesForRoles(ctx, []string{"role-editor"})
	if err != nil {
		t.Fatalf("list policies: %v", err)
	}
	if len(attached) != 2 {
		t.Fatalf("expected 2 policies, got %d", len(attached))
	}
	for _, p := range attached {
		if err := p.Validate(); err != nil {
			t.Fatalf("policy %s came back invalid: %v", p.ID, err)
		}
	}
}

func TestSQLRoleStoreRejectsTenantScopedGlobalGrant(t *testing.T) {
	db := openTestDB(t)
	seedTestData(t, db)

	roles := NewSQLRoleStore(db)
	if err := roles.GrantGlobalRole(context.Background(), "alice", "role-editor"); err == nil {
		t.Fatal("tenant-scoped role must not be grantable globally")
	}
}

func TestSQLDirectoryProjectLookups(t *testing.T) {
	db := openTestDB(t)
	seedTestData(t, db)
	ctx := context.Background()
	dir := NewSQLDirectory(db)

	ids, err := dir.ListProjectIDsForCustomers(ctx, []string{"c1"})
	if err != nil {
		t.Fatalf("projects for c1: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 projects, got %v", ids)
	}

	customerID, ok, err := dir.CustomerOfProject(ctx, "p3")
	if err != nil {
		t.Fatalf("customer of p3: %v", err)
	}
	if !ok || customerID != "c2" {
		t.Fatalf("expected c2, got %q ok=%v", customerID, ok)
	}

	_, ok, err = dir.CustomerOfProject(ctx, "p-gone")
	if err != nil {
		t.Fatalf("missing project should not error: %v", err)
	}
	if ok {
		t.Fatal("missing project reported as found")
	}
}

// The full engine wired on SQL stores end to end.
func TestPermissionServiceOnSQLStores(t *testing.T) {
	db := openTestDB(t)
	seedTestData(t, db)
	ctx := context.Background()

	dir := NewSQLDirectory(db)
	customerHandler := authz.NewCustomerHandler(dir)
	registry, err := authz.NewHandlerRegistry(
		customerHandler,
		authz.NewProjectHandler(dir, customerHandler),
		authz.NewStaffHandler(dir),
	)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}

	svc, err := authz.NewPermissionService(
		NewSQLMembershipStore(db),
		NewSQLRoleStore(db),
		NewSQLPolicyStore(db),
		registry,
	)
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	defer svc.Close()

	ids, err := svc.ListPermittedIDs(ctx, "alice", authz.PermissionWrite, authz.ResourceTypeProject)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !ids.Equal(authz.NewIDSet("p1")) {
		t.Fatalf("expected {p1}, got %v", ids.Sorted())
	}

	staffIDs, err := svc.ListPermittedIDs(ctx, "staff-1", authz.PermissionAdmin, authz.ResourceTypeProject)
	if err != nil {
		t.Fatalf("staff list: %v", err)
	}
	if !staffIDs.Equal(authz.NewIDSet("p1", "p2", "p3")) {
		t.Fatalf("staff should see every project, got %v", staffIDs.Sorted())
	}
}

func TestSQLAuditStore(t *testing.T) {
	db := openTestDB(t)
	store := NewSQLAuditStore(db)
	ctx := context.Background()

	entry := &authz.AuditEntry{
		ID:         "evt-1",
		UserID:     "alice",
		Permission: authz.PermissionWrite,
		Resource:   authz.ResourceTypeProject,
		ResourceID: "p2",
		Allowed:    false,
		Reason:     "deny rule pol-deny",
		Timestamp:  time.Now(),
	}
	if err := store.LogDecision(ctx, entry); err != nil {
		t.Fatalf("log: %v", err)
	}

	got, err := store.ListDecisions(ctx, authz.AuditFilter{UserID: "alice", Limit: 10})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(got))
	}
	if got[0].Allowed || got[0].ResourceID != "p2" || got[0].Reason != entry.Reason {
		t.Fatalf("roundtrip mismatch %+v", got[0])
	}
}
