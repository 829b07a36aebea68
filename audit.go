package authz

import (
	"context"
	"sync"
	"time"
)

// AuditEntry records one point-check decision.
type AuditEntry struct {
	ID         string         `json:"id"`
	UserID     string         `json:"user_id"`
	Permission PermissionType `json:"permission"`
	Resource   ResourceType   `json:"resource_type"`
	ResourceID string         `json:"resource_id"`
	Allowed    bool           `json:"allowed"`
	Reason     string         `json:"reason"`
	Timestamp  time.Time      `json:"timestamp"`
}

// AuditFilter narrows audit queries.
type AuditFilter struct {
	UserID     string
	Resource   ResourceType
	ResourceID string
	StartTime  time.Time
	EndTime    time.Time
	Limit      int
}

// AuditStore persists decision audit entries.
type AuditStore interface {
	LogDecision(ctx context.Context, entry *AuditEntry) error
	ListDecisions(ctx context.Context, filter AuditFilter) ([]*AuditEntry, error)
}

// MemoryAuditStore keeps entries in memory, append-only.
type MemoryAuditStore struct {
	mu      sync.RWMutex
	entries []*AuditEntry
}

func NewMemoryAuditStore() *MemoryAuditStore {
	return &MemoryAuditStore{}
}

func (s *MemoryAuditStore) LogDecision(_ context.Context, entry *AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cop := *entry
	s.entries = append(s.entries, &cop)
	return nil
}

func (s *MemoryAuditStore) ListDecisions(_ context.Context, filter AuditFilter) ([]*AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*AuditEntry, 0)
	for _, e := range s.entries {
		if filter.UserID != "" && e.UserID != filter.UserID {
			continue
		}
		if filter.Resource != "" && e.Resource != filter.Resource {
			continue
		}
		if filter.ResourceID != "" && e.ResourceID != filter.ResourceID {
			continue
		}
		if !filter.StartTime.IsZero() && e.Timestamp.Before(filter.StartTime) {
			continue
		}
		if !filter.EndTime.IsZero() && e.Timestamp.After(filter.EndTime) {
			continue
		}
		cop := *e
		result = append(result, &cop)
		if filter.Limit > 0 && len(result) >= filter.Limit {
			break
		}
	}
	return result, nil
}
