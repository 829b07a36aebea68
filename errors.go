package authz

import (
	"errors"
	"fmt"
)

// ErrAccessDenied is the generic denial surfaced to callers. The message
// deliberately carries no rule details so the HTTP layer cannot leak policy
// structure to end users.
var ErrAccessDenied = errors.New("access denied")

// InvalidSelectorError reports a malformed resource selector (unknown kind or
// a missing required field). Evaluation must abort when one is encountered; a
// malformed selector is never treated as "no match".
type InvalidSelectorError struct {
	Kind   SelectorKind
	Reason string
}

func (e *InvalidSelectorError) Error() string {
	if e.Kind == "" {
		return fmt.Sprintf("invalid resource selector: %s", e.Reason)
	}
	return fmt.Sprintf("invalid resource selector (kind=%s): %s", e.Kind, e.Reason)
}

// ResourceNotFoundError reports that a resource referenced during a
// hierarchical lookup no longer exists. Handlers treat it as "no access" for
// that resource rather than a hard failure, since the resource may have been
// deleted concurrently.
type ResourceNotFoundError struct {
	Resource ResourceType
	ID       string
}

func (e *ResourceNotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// UnknownResourceTypeError reports a permission check against a resource type
// with no registered handler.
type UnknownResourceTypeError struct {
	Resource ResourceType
}

func (e *UnknownResourceTypeError) Error() string {
	return fmt.Sprintf("no permission handler registered for resource type %q", e.Resource)
}
