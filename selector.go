package authz

import (
	"encoding/json"
	"fmt"
	"sort"
)

// SelectorKind tags the variant of a ResourceSelector.
type SelectorKind string

const (
	SelectorExact          SelectorKind = "exact"
	SelectorMultiple       SelectorKind = "multiple"
	SelectorWildcard       SelectorKind = "wildcard"
	SelectorWildcardExcept SelectorKind = "wildcard_except"
)

// ResourceSelector is the tagged union persisted as structured JSON on an
// AccessPolicy. Exactly one variant is populated:
//
//	exact           {"kind":"exact","id":"proj_1"}
//	multiple        {"kind":"multiple","ids":["p1","p2"]}
//	wildcard        {"kind":"wildcard"}
//	wildcard_except {"kind":"wildcard_except","excluded_ids":["p2"]}
//
// Wildcard variants match everything in scope; intersecting with the tenant
// universe is the evaluator's responsibility.
type ResourceSelector struct {
	Kind        SelectorKind `json:"kind" yaml:"kind"`
	ID          string       `json:"id,omitempty" yaml:"id,omitempty"`
	IDs         []string     `json:"ids,omitempty" yaml:"ids,omitempty"`
	ExcludedIDs []string     `json:"excluded_ids,omitempty" yaml:"excluded_ids,omitempty"`
}

// ExactSelector selects a single resource id.
func ExactSelector(id string) ResourceSelector {
	return ResourceSelector{Kind: SelectorExact, ID: id}
}

// MultipleSelector selects a fixed set of resource ids.
func MultipleSelector(ids ...string) ResourceSelector {
	return ResourceSelector{Kind: SelectorMultiple, IDs: ids}
}

// WildcardSelector selects every resource of the policy's type, within the
// policy's tenant scope.
func WildcardSelector() ResourceSelector {
	return ResourceSelector{Kind: SelectorWildcard}
}

// WildcardExceptSelector selects every resource except the excluded ids.
func WildcardExceptSelector(excluded ...string) ResourceSelector {
	return ResourceSelector{Kind: SelectorWildcardExcept, ExcludedIDs: excluded}
}

// Validate checks the selector has a known kind and the fields that kind
// requires. It returns *InvalidSelectorError on any violation.
func (s ResourceSelector) Validate() error {
	switch s.Kind {
	case SelectorExact:
		if s.ID == "" {
			return &InvalidSelectorError{Kind: s.Kind, Reason: "missing id"}
		}
	case SelectorMultiple:
		if len(s.IDs) == 0 {
			return &InvalidSelectorError{Kind: s.Kind, Reason: "missing ids"}
		}
	case SelectorWildcard:
		// no fields
	case SelectorWildcardExcept:
		if len(s.ExcludedIDs) == 0 {
			return &InvalidSelectorError{Kind: s.Kind, Reason: "missing excluded_ids"}
		}
	case "":
		return &InvalidSelectorError{Reason: "missing kind"}
	default:
		return &InvalidSelectorError{Kind: s.Kind, Reason: "unknown kind"}
	}
	return nil
}

// Matches reports whether candidateID matches the selector. Wildcard variants
// report true for any candidate; the caller intersects wildcard grants with
// the tenant universe. A malformed selector yields *InvalidSelectorError and
// never a silent false.
func (s ResourceSelector) Matches(candidateID string) (bool, error) {
	if err := s.Validate(); err != nil {
		return false, err
	}
	switch s.Kind {
	case SelectorExact:
		return candidateID == s.ID, nil
	case SelectorMultiple:
		for _, id := range s.IDs {
			if id == candidateID {
				return true, nil
			}
		}
		return false, nil
	case SelectorWildcard:
		return true, nil
	default: // SelectorWildcardExcept
		for _, id := range s.ExcludedIDs {
			if id == candidateID {
				return false, nil
			}
		}
		return true, nil
	}
}

// Enumerable reports whether the selector names its ids directly (exact or
// multiple) as opposed to being universe-relative.
func (s ResourceSelector) Enumerable() bool {
	return s.Kind == SelectorExact || s.Kind == SelectorMultiple
}

// EnumeratedIDs returns the directly named ids for enumerable selectors.
func (s ResourceSelector) EnumeratedIDs() []string {
	switch s.Kind {
	case SelectorExact:
		return []string{s.ID}
	case SelectorMultiple:
		return s.IDs
	default:
		return nil
	}
}

func (s ResourceSelector) String() string {
	switch s.Kind {
	case SelectorExact:
		return fmt.Sprintf("exact(%s)", s.ID)
	case SelectorMultiple:
		ids := append([]string(nil), s.IDs...)
		sort.Strings(ids)
		return fmt.Sprintf("multiple(%v)", ids)
	case SelectorWildcard:
		return "wildcard"
	case SelectorWildcardExcept:
		ids := append([]string(nil), s.ExcludedIDs...)
		sort.Strings(ids)
		return fmt.Sprintf("wildcard_except(%v)", ids)
	default:
		return fmt.Sprintf("invalid(%s)", string(s.Kind))
	}
}

// resourceSelectorJSON mirrors the persisted wire shape. A separate type keeps
// UnmarshalJSON from recursing.
type resourceSelectorJSON struct {
	Kind        SelectorKind `json:"kind"`
	ID          string       `json:"id,omitempty"`
	IDs         []string     `json:"ids,omitempty"`
	ExcludedIDs []string     `json:"excluded_ids,omitempty"`
}

// UnmarshalJSON decodes and validates the persisted selector form. Shape
// errors surface at load time as *InvalidSelectorError.
func (s *ResourceSelector) UnmarshalJSON(data []byte) error {
	var raw resourceSelectorJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return &InvalidSelectorError{Reason: err.Error()}
	}
	dec := ResourceSelector{Kind: raw.Kind, ID: raw.ID, IDs: raw.IDs, ExcludedIDs: raw.ExcludedIDs}
	if err := dec.Validate(); err != nil {
		return err
	}
	*s = dec
	return nil
}

func (s ResourceSelector) MarshalJSON() ([]byte, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(resourceSelectorJSON{Kind: s.Kind, ID: s.ID, IDs: s.IDs, ExcludedIDs: s.ExcludedIDs})
}
