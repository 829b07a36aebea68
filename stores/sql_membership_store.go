package stores

import (
	"context"

	"github.com/oarkflow/squealx"

	"github.com/burnnotice/authz"
)

// SQLMembershipStore persists memberships and their role assignments. It
// implements authz.MembershipStore.
type SQLMembershipStore struct {
	db *squealx.DB
}

func NewSQLMembershipStore(db *squealx.DB) *SQLMembershipStore {
	return &SQLMembershipStore{db: db}
}

func (s *SQLMembershipStore) CreateMembership(ctx context.Context, m authz.Membership) error {
	q := `INSERT INTO memberships(id, user_id, tenant_id, active) VALUES(:id, :user_id, :tenant_id, :active)`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{
		"id":        m.ID,
		"user_id":   m.UserID,
		"tenant_id": m.TenantID,
		"active":    boolToInt(m.Active),
	})
	return err
}

func (s *SQLMembershipStore) RemoveMembership(ctx context.Context, id string) error {
	for _, q := range []string{
		`DELETE FROM memberships WHERE id = :id`,
		`DELETE FROM membership_assignments WHERE membership_id = :id`,
	} {
		if _, err := s.db.NamedExecContext(ctx, q, map[string]any{"id": id}); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLMembershipStore) SetActive(ctx context.Context, id string, active bool) error {
	q := `UPDATE memberships SET active = :active WHERE id = :id`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{"id": id, "active": boolToInt(active)})
	return err
}

func (s *SQLMembershipStore) AssignRole(ctx context.Context, membershipID, roleID string) error {
	q := `INSERT OR IGNORE INTO membership_assignments(membership_id, role_id) VALUES(:membership_id, :role_id)`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{"membership_id": membershipID, "role_id": roleID})
	return err
}

func (s *SQLMembershipStore) UnassignRole(ctx context.Context, membershipID, roleID string) error {
	q := `DELETE FROM membership_assignments WHERE membership_id = :membership_id AND role_id = :role_id`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{"membership_id": membershipID, "role_id": roleID})
	return err
}

func (s *SQLMembershipStore) ListActiveMemberships(ctx context.Context, userID string) ([]authz.Membership, error) {
	q := `SELECT id, user_id, tenant_id, active FROM memberships WHERE user_id = :user_id AND active = 1`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{"user_id": userID})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	out := make([]authz.Membership, 0)
	for r.Next() {
		var m authz.Membership
		var active int
		if err := r.Scan(&m.ID, &m.UserID, &m.TenantID, &active); err != nil {
			return nil, err
		}
		m.Active = active != 0
		out = append(out, m)
	}
	return out, nil
}

func (s *SQLMembershipStore) ListMemberUserIDs(ctx context.Context, tenantID string) ([]string, error) {
	q := `SELECT DISTINCT user_id FROM memberships WHERE tenant_id = :tenant_id`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{"tenant_id": tenantID})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	out := make([]string, 0)
	for r.Next() {
		var userID string
		if err := r.Scan(&userID); err != nil {
			return nil, err
		}
		out = append(out, userID)
	}
	return out, nil
}
