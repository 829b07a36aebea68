package stores

import (
	"context"
	"fmt"
	"time"

	"github.com/oarkflow/squealx"

	"github.com/burnnotice/authz"
)

// SQLRoleStore persists roles, role assignments and global grants in SQL
// (squealx). It implements authz.RoleStore.
type SQLRoleStore struct {
	db *squealx.DB
}

func NewSQLRoleStore(db *squealx.DB) *SQLRoleStore {
	return &SQLRoleStore{db: db}
}

func (s *SQLRoleStore) CreateRole(ctx context.Context, r *authz.AccessRole) error {
	created := r.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	q := `INSERT INTO access_roles(id, tenant_id, name, description, is_default, created_at) VALUES(:id, :tenant_id, :name, :description, :is_default, :created_at)`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{
		"id":          r.ID,
		"tenant_id":   r.TenantID,
		"name":        r.Name,
		"description": r.Description,
		"is_default":  boolToInt(r.IsDefault),
		"created_at":  created,
	})
	return err
}

func (s *SQLRoleStore) DeleteRole(ctx context.Context, id string) error {
	for _, q := range []string{
		`DELETE FROM access_roles WHERE id = :id`,
		`DELETE FROM policy_role_assignments WHERE role_id = :id`,
		`DELETE FROM membership_assignments WHERE role_id = :id`,
		`DELETE FROM user_global_roles WHERE role_id = :id`,
	} {
		if _, err := s.db.NamedExecContext(ctx, q, map[string]any{"id": id}); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLRoleStore) GetRole(ctx context.Context, id string) (*authz.AccessRole, error) {
	q := `SELECT id, tenant_id, name, description, is_default, created_at FROM access_roles WHERE id = :id`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{"id": id})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	if !r.Next() {
		return nil, fmt.Errorf("role not found: %s", id)
	}
	return scanRole(r)
}

func scanRole(r rowScanner) (*authz.AccessRole, error) {
	var id, tenant, name, description string
	var isDefault int
	var createdRaw interface{}
	if err := r.Scan(&id, &tenant, &name, &description, &isDefault, &createdRaw); err != nil {
		return nil, err
	}
	return &authz.AccessRole{
		ID:          id,
		TenantID:    tenant,
		Name:        name,
		Description: description,
		IsDefault:   isDefault != 0,
		CreatedAt:   scanTime(createdRaw),
	}, nil
}

func (s *SQLRoleStore) listRolesQuery(ctx context.Context, q string, params map[string]any) ([]*authz.AccessRole, error) {
	r, err := s.db.NamedQueryContext(ctx, q, params)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	out := make([]*authz.AccessRole, 0)
	for r.Next() {
		role, err := scanRole(r)
		if err != nil {
			return nil, err
		}
		out = append(out, role)
	}
	return out, nil
}

func (s *SQLRoleStore) ListRolesForMembership(ctx context.Context, membershipID string) ([]*authz.AccessRole, error) {
	q := `SELECT ar.id, ar.tenant_id, ar.name, ar.description, ar.is_default, ar.created_at
	FROM access_roles ar
	JOIN membership_assignments ma ON ma.role_id = ar.id
	WHERE ma.membership_id = :membership_id`
	return s.listRolesQuery(ctx, q, map[string]any{"membership_id": membershipID})
}

func (s *SQLRoleStore) ListGlobalRolesForUser(ctx context.Context, userID string) ([]*authz.AccessRole, error) {
	q := `SELECT ar.id, ar.tenant_id, ar.name, ar.description, ar.is_default, ar.created_at
	FROM access_roles ar
	JOIN user_global_roles ug ON ug.role_id = ar.id
	WHERE ug.user_id = :user_id AND ar.tenant_id = ''`
	return s.listRolesQuery(ctx, q, map[string]any{"user_id": userID})
}

func (s *SQLRoleStore) GrantGlobalRole(ctx context.Context, userID, roleID string) error {
	role, err := s.GetRole(ctx, roleID)
	if err != nil {
		return err
	}
	if !role.IsGlobal() {
		return fmt.Errorf("role %s is tenant scoped, cannot grant globally", roleID)
	}
	q := `INSERT OR IGNORE INTO user_global_roles(user_id, role_id) VALUES(:user_id, :role_id)`
	_, err = s.db.NamedExecContext(ctx, q, map[string]any{"user_id": userID, "role_id": roleID})
	return err
}

func (s *SQLRoleStore) RevokeGlobalRole(ctx context.Context, userID, roleID string) error {
	q := `DELETE FROM user_global_roles WHERE user_id = :user_id AND role_id = :role_id`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{"user_id": userID, "role_id": roleID})
	return err
}
