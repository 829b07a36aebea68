package authz

import (
	"context"
	"fmt"
	"time"
)

// Decision is the traced result of an explained point check, for admin
// debugging. The Trace names rule ids; it is never shown to end users.
type Decision struct {
	Allowed     bool      `json:"allowed"`
	Reason      string    `json:"reason"`
	MatchedRule string    `json:"matched_rule,omitempty"`
	Trace       []string  `json:"trace"`
	Timestamp   time.Time `json:"timestamp"`
}

// ExplainCheck runs CheckPermission with a step-by-step trace of which rules
// were considered and why the final decision fell the way it did.
func (s *PermissionService) ExplainCheck(ctx context.Context, userID string, permission PermissionType, resourceType ResourceType, resourceID string) (*Decision, error) {
	dec := &Decision{Timestamp: time.Now()}
	if !permission.Valid() {
		return nil, fmt.Errorf("unknown permission type %q", permission)
	}
	handler, err := s.registry.Handler(resourceType)
	if err != nil {
		return nil, err
	}
	res, err := s.resolve(ctx, userID)
	if err != nil {
		return nil, err
	}
	dec.Trace = append(dec.Trace, fmt.Sprintf("resolved %d tenant(s), %d role(s), %d policy rule(s)",
		res.tenantIDs.Len(), len(res.roleIDs), len(res.policies)))

	if res.staff {
		dec.Allowed = true
		dec.Reason = "staff bypass"
		dec.Trace = append(dec.Trace, "user holds the global Staff role: full access")
		return dec, nil
	}

	allowRules, denyRules := splitByEffect(res.policies)

	for _, rule := range denyRules {
		matched, err := ruleMatchesResource(ctx, handler, rule, permission, resourceID, res.tenantIDs)
		if err != nil {
			return nil, err
		}
		dec.Trace = append(dec.Trace, fmt.Sprintf("deny rule %s (%s %s %s): match=%v",
			rule.ID, rule.Permission, rule.Resource, rule.Selector, matched))
		if matched {
			dec.Reason = "explicit deny"
			dec.MatchedRule = rule.ID
			return dec, nil
		}
	}
	if len(denyRules) > 0 {
		denied, err := handler.HasHierarchicalPermission(ctx, denyRules, permission, resourceID, res.tenantIDs)
		if err != nil {
			return nil, err
		}
		dec.Trace = append(dec.Trace, fmt.Sprintf("inherited deny via parent: %v", denied))
		if denied {
			dec.Reason = "inherited deny"
			return dec, nil
		}
	}

	for _, rule := range allowRules {
		matched, err := ruleMatchesResource(ctx, handler, rule, permission, resourceID, res.tenantIDs)
		if err != nil {
			return nil, err
		}
		dec.Trace = append(dec.Trace, fmt.Sprintf("allow rule %s (%s %s %s): match=%v",
			rule.ID, rule.Permission, rule.Resource, rule.Selector, matched))
		if matched {
			dec.Allowed = true
			dec.Reason = "explicit allow"
			dec.MatchedRule = rule.ID
			return dec, nil
		}
	}
	granted, err := handler.HasHierarchicalPermission(ctx, allowRules, permission, resourceID, res.tenantIDs)
	if err != nil {
		return nil, err
	}
	dec.Trace = append(dec.Trace, fmt.Sprintf("inherited allow via parent: %v", granted))
	if granted {
		dec.Allowed = true
		dec.Reason = "inherited allow"
		return dec, nil
	}

	dec.Reason = "no matching rule"
	return dec, nil
}
