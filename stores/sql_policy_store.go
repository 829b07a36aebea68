package stores

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/oarkflow/squealx"

	"github.com/burnnotice/authz"
)

// SQLPolicyStore persists access policies and their role attachments. The
// selector is stored as JSON so deserialization revalidates its shape. It
// implements authz.PolicyStore.
type SQLPolicyStore struct {
	db *squealx.DB
}

func NewSQLPolicyStore(db *squealx.DB) *SQLPolicyStore {
	return &SQLPolicyStore{db: db}
}

func (s *SQLPolicyStore) CreatePolicy(ctx context.Context, p *authz.AccessPolicy) error {
	if err := p.Validate(); err != nil {
		return err
	}
	selB, err := json.Marshal(p.Selector)
	if err != nil {
		return fmt.Errorf("encode selector for policy %s: %w", p.ID, err)
	}
	created := p.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	q := `INSERT INTO access_policies(id, name, tenant_id, permission, resource, selector_json, effect, created_at, updated_at) VALUES(:id, :name, :tenant_id, :permission, :resource, :selector_json, :effect, :created_at, :updated_at)`
	_, err = s.db.NamedExecContext(ctx, q, map[string]any{
		"id":            p.ID,
		"name":          p.Name,
		"tenant_id":     p.TenantID,
		"permission":    string(p.Permission),
		"resource":      string(p.Resource),
		"selector_json": string(selB),
		"effect":        string(p.Effect),
		"created_at":    created,
		"updated_at":    created,
	})
	return err
}

func (s *SQLPolicyStore) UpdatePolicy(ctx context.Context, p *authz.AccessPolicy) error {
	if err := p.Validate(); err != nil {
		return err
	}
	selB, err := json.Marshal(p.Selector)
	if err != nil {
		return fmt.Errorf("encode selector for policy %s: %w", p.ID, err)
	}
	q := `UPDATE access_policies SET name=:name, tenant_id=:tenant_id, permission=:permission, resource=:resource, selector_json=:selector_json, effect=:effect, updated_at=:updated_at WHERE id=:id`
	_, err = s.db.NamedExecContext(ctx, q, map[string]any{
		"id":            p.ID,
		"name":          p.Name,
		"tenant_id":     p.TenantID,
		"permission":    string(p.Permission),
		"resource":      string(p.Resource),
		"selector_json": string(selB),
		"effect":        string(p.Effect),
		"updated_at":    time.Now(),
	})
	return err
}

func (s *SQLPolicyStore) DeletePolicy(ctx context.Context, id string) error {
	for _, q := range []string{
		`DELETE FROM access_policies WHERE id = :id`,
		`DELETE FROM policy_role_assignments WHERE policy_id = :id`,
	} {
		if _, err := s.db.NamedExecContext(ctx, q, map[string]any{"id": id}); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLPolicyStore) GetPolicy(ctx context.Context, id string) (*authz.AccessPolicy, error) {
	q := `SELECT id, name, tenant_id, permission, resource, selector_json, effect, created_at, updated_at FROM access_policies WHERE id = :id`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{"id": id})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	if !r.Next() {
		return nil, fmt.Errorf("policy not found: %s", id)
	}
	return scanPolicy(r)
}

func scanPolicy(r rowScanner) (*authz.AccessPolicy, error) {
	var id, name, tenant, permission, resource, selectorJSON, effect string
	var createdRaw, updatedRaw interface{}
	if err := r.Scan(&id, &name, &tenant, &permission, &resource, &selectorJSON, &effect, &createdRaw, &updatedRaw); err != nil {
		return nil, err
	}
	p := &authz.AccessPolicy{
		ID:         id,
		Name:       name,
		TenantID:   tenant,
		Permission: authz.PermissionType(permission),
		Resource:   authz.ResourceType(resource),
		Effect:     authz.Effect(effect),
		CreatedAt:  scanTime(createdRaw),
		UpdatedAt:  scanTime(updatedRaw),
	}
	if err := json.Unmarshal([]byte(selectorJSON), &p.Selector); err != nil {
		return nil, fmt.Errorf("decode selector for policy %s: %w", id, err)
	}
	return p, nil
}

// AttachPolicy links a policy to a role. Re-attaching is a no-op, matching
// set semantics.
func (s *SQLPolicyStore) AttachPolicy(ctx context.Context, policyID, roleID string) error {
	q := `INSERT OR IGNORE INTO policy_role_assignments(policy_id, role_id) VALUES(:policy_id, :role_id)`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{"policy_id": policyID, "role_id": roleID})
	return err
}

func (s *SQLPolicyStore) DetachPolicy(ctx context.Context, policyID, roleID string) error {
	q := `DELETE FROM policy_role_assignments WHERE policy_id = :policy_id AND role_id = :role_id`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{"policy_id": policyID, "role_id": roleID})
	return err
}

func (s *SQLPolicyStore) ListPoliciesForRoles(ctx context.Context, roleIDs []string) ([]*authz.AccessPolicy, error) {
	out := make([]*authz.AccessPolicy, 0)
	seen := authz.NewIDSet()
	q := `SELECT ap.id, ap.name, ap.tenant_id, ap.permission, ap.resource, ap.selector_json, ap.effect, ap.created_at, ap.updated_at
	FROM access_policies ap
	JOIN policy_role_assignments pra ON pra.policy_id = ap.id
	WHERE pra.role_id = :role_id`
	for _, roleID := range roleIDs {
		r, err := s.db.NamedQueryContext(ctx, q, map[string]any{"role_id": roleID})
		if err != nil {
			return nil, err
		}
		for r.Next() {
			p, err := scanPolicy(r)
			if err != nil {
				r.Close()
				return nil, err
			}
			if seen.Contains(p.ID) {
				continue
			}
			seen.Add(p.ID)
			out = append(out, p)
		}
		r.Close()
	}
	return out, nil
}
