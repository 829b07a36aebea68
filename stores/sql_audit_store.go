package stores

import (
	"context"

	"github.com/oarkflow/squealx"

	"github.com/burnnotice/authz"
)

// SQLAuditStore persists permission decisions in SQL. It implements
// authz.AuditStore.
type SQLAuditStore struct {
	db *squealx.DB
}

func NewSQLAuditStore(db *squealx.DB) *SQLAuditStore {
	return &SQLAuditStore{db: db}
}

func (s *SQLAuditStore) LogDecision(ctx context.Context, entry *authz.AuditEntry) error {
	q := `INSERT INTO permission_audit(id, user_id, permission, resource, resource_id, allowed, reason, timestamp) VALUES(:id, :user_id, :permission, :resource, :resource_id, :allowed, :reason, :timestamp)`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{
		"id":          entry.ID,
		"user_id":     entry.UserID,
		"permission":  string(entry.Permission),
		"resource":    string(entry.Resource),
		"resource_id": entry.ResourceID,
		"allowed":     boolToInt(entry.Allowed),
		"reason":      entry.Reason,
		"timestamp":   entry.Timestamp,
	})
	return err
}

func (s *SQLAuditStore) ListDecisions(ctx context.Context, filter authz.AuditFilter) ([]*authz.AuditEntry, error) {
	q := `SELECT id, user_id, permission, resource, resource_id, allowed, reason, timestamp FROM permission_audit WHERE 1=1`
	params := map[string]any{}
	if filter.UserID != "" {
		q += " AND user_id = :user_id"
		params["user_id"] = filter.UserID
	}
	if filter.Resource != "" {
		q += " AND resource = :resource"
		params["resource"] = string(filter.Resource)
	}
	if filter.ResourceID != "" {
		q += " AND resource_id = :resource_id"
		params["resource_id"] = filter.ResourceID
	}
	if !filter.StartTime.IsZero() {
		q += " AND timestamp >= :start"
		params["start"] = filter.StartTime
	}
	if !filter.EndTime.IsZero() {
		q += " AND timestamp <= :end"
		params["end"] = filter.EndTime
	}
	q += " ORDER BY timestamp"
	if filter.Limit > 0 {
		q += " LIMIT :limit"
		params["limit"] = filter.Limit
	} else {
		q += " LIMIT 100"
	}
	r, err := s.db.NamedQueryContext(ctx, q, params)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	out := make([]*authz.AuditEntry, 0)
	for r.Next() {
		var id, userID, permission, resource, resourceID, reason string
		var allowedInt int
		var tsRaw interface{}
		if err := r.Scan(&id, &userID, &permission, &resource, &resourceID, &allowedInt, &reason, &tsRaw); err != nil {
			return nil, err
		}
		out = append(out, &authz.AuditEntry{
			ID:         id,
			UserID:     userID,
			Permission: authz.PermissionType(permission),
			Resource:   authz.ResourceType(resource),
			ResourceID: resourceID,
			Allowed:    allowedInt != 0,
			Reason:     reason,
			Timestamp:  scanTime(tsRaw),
		})
	}
	return out, nil
}
