package stores

import (
	"context"
	"time"

	"github.com/oarkflow/squealx"
)

// SQLDirectory answers customer, project and staff lookups from SQL. It
// implements authz.CustomerDirectory, authz.ProjectDirectory and
// authz.StaffDirectory.
type SQLDirectory struct {
	db *squealx.DB
}

func NewSQLDirectory(db *squealx.DB) *SQLDirectory {
	return &SQLDirectory{db: db}
}

func (d *SQLDirectory) AddCustomer(ctx context.Context, id, name string) error {
	q := `INSERT INTO customers(id, name, created_at) VALUES(:id, :name, :created_at)`
	_, err := d.db.NamedExecContext(ctx, q, map[string]any{"id": id, "name": name, "created_at": time.Now()})
	return err
}

func (d *SQLDirectory) RemoveCustomer(ctx context.Context, id string) error {
	for _, q := range []string{
		`DELETE FROM customers WHERE id = :id`,
		`DELETE FROM projects WHERE customer_id = :id`,
	} {
		if _, err := d.db.NamedExecContext(ctx, q, map[string]any{"id": id}); err != nil {
			return err
		}
	}
	return nil
}

func (d *SQLDirectory) AddProject(ctx context.Context, id, customerID, name string) error {
	q := `INSERT INTO projects(id, customer_id, name, created_at) VALUES(:id, :customer_id, :name, :created_at)`
	_, err := d.db.NamedExecContext(ctx, q, map[string]any{"id": id, "customer_id": customerID, "name": name, "created_at": time.Now()})
	return err
}

func (d *SQLDirectory) RemoveProject(ctx context.Context, id string) error {
	q := `DELETE FROM projects WHERE id = :id`
	_, err := d.db.NamedExecContext(ctx, q, map[string]any{"id": id})
	return err
}

func (d *SQLDirectory) AddStaff(ctx context.Context, userID string) error {
	q := `INSERT OR IGNORE INTO staff_users(user_id) VALUES(:user_id)`
	_, err := d.db.NamedExecContext(ctx, q, map[string]any{"user_id": userID})
	return err
}

func (d *SQLDirectory) listIDs(ctx context.Context, q string, params map[string]any) ([]string, error) {
	r, err := d.db.NamedQueryContext(ctx, q, params)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	out := make([]string, 0)
	for r.Next() {
		var id string
		if err := r.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}

func (d *SQLDirectory) ListCustomerIDs(ctx context.Context) ([]string, error) {
	return d.listIDs(ctx, `SELECT id FROM customers`, map[string]any{})
}

func (d *SQLDirectory) ListProjectIDs(ctx context.Context) ([]string, error) {
	return d.listIDs(ctx, `SELECT id FROM projects`, map[string]any{})
}

func (d *SQLDirectory) ListProjectIDsForCustomers(ctx context.Context, customerIDs []string) ([]string, error) {
	out := make([]string, 0)
	for _, customerID := range customerIDs {
		ids, err := d.listIDs(ctx, `SELECT id FROM projects WHERE customer_id = :customer_id`, map[string]any{"customer_id": customerID})
		if err != nil {
			return nil, err
		}
		out = append(out, ids...)
	}
	return out, nil
}

func (d *SQLDirectory) CustomerOfProject(ctx context.Context, projectID string) (string, bool, error) {
	q := `SELECT customer_id FROM projects WHERE id = :id`
	r, err := d.db.NamedQueryContext(ctx, q, map[string]any{"id": projectID})
	if err != nil {
		return "", false, err
	}
	defer r.Close()
	if !r.Next() {
		return "", false, nil
	}
	var customerID string
	if err := r.Scan(&customerID); err != nil {
		return "", false, err
	}
	return customerID, true, nil
}

func (d *SQLDirectory) ListStaffIDs(ctx context.Context) ([]string, error) {
	return d.listIDs(ctx, `SELECT user_id FROM staff_users`, map[string]any{})
}
