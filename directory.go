package authz

import "context"

// CustomerDirectory resolves customer (tenant) ids. Backed by the relational
// store in production; the engine only ever reads from it.
type CustomerDirectory interface {
	ListCustomerIDs(ctx context.Context) ([]string, error)
}

// ProjectDirectory resolves project ids and their owning customers.
type ProjectDirectory interface {
	ListProjectIDs(ctx context.Context) ([]string, error)
	ListProjectIDsForCustomers(ctx context.Context, customerIDs []string) ([]string, error)

	// CustomerOfProject returns the owning customer id. ok is false when the
	// project does not exist (possibly deleted concurrently); that is an
	// ordinary branch for callers, not an error.
	CustomerOfProject(ctx context.Context, projectID string) (customerID string, ok bool, err error)
}

// StaffDirectory resolves staff user ids.
type StaffDirectory interface {
	ListStaffIDs(ctx context.Context) ([]string, error)
}
