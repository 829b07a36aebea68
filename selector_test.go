package authz

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestSelectorMatches(t *testing.T) {
	cases := []struct {
		name      string
		selector  ResourceSelector
		candidate string
		want      bool
	}{
		{"exact hit", ExactSelector("p1"), "p1", true},
		{"exact miss", ExactSelector("p1"), "p2", false},
		{"multiple hit", MultipleSelector("p1", "p2"), "p2", true},
		{"multiple miss", MultipleSelector("p1", "p2"), "p3", false},
		{"wildcard", WildcardSelector(), "anything", true},
		{"wildcard_except excluded", WildcardExceptSelector("p2"), "p2", false},
		{"wildcard_except other", WildcardExceptSelector("p2"), "p1", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.selector.Matches(tc.candidate)
			if err != nil {
				t.Fatalf("matches: %v", err)
			}
			if got != tc.want {
				t.Fatalf("matches(%q) = %v, want %v", tc.candidate, got, tc.want)
			}
		})
	}
}

func TestSelectorValidate(t *testing.T) {
	cases := []struct {
		name     string
		selector ResourceSelector
		valid    bool
	}{
		{"exact", ExactSelector("p1"), true},
		{"exact missing id", ResourceSelector{Kind: SelectorExact}, false},
		{"multiple", MultipleSelector("p1"), true},
		{"multiple empty", ResourceSelector{Kind: SelectorMultiple}, false},
		{"wildcard", WildcardSelector(), true},
		{"wildcard_except", WildcardExceptSelector("p1"), true},
		{"wildcard_except empty", ResourceSelector{Kind: SelectorWildcardExcept}, false},
		{"missing kind", ResourceSelector{}, false},
		{"unknown kind", ResourceSelector{Kind: "glob"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.selector.Validate()
			if tc.valid && err != nil {
				t.Fatalf("expected valid, got %v", err)
			}
			if !tc.valid {
				var invalid *InvalidSelectorError
				if !errors.As(err, &invalid) {
					t.Fatalf("expected InvalidSelectorError, got %v", err)
				}
			}
		})
	}
}

func TestSelectorMatchesMalformed(t *testing.T) {
	_, err := ResourceSelector{Kind: "glob"}.Matches("p1")
	var invalid *InvalidSelectorError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidSelectorError, got %v", err)
	}
}

func TestSelectorUnmarshalValidatesAtLoad(t *testing.T) {
	var s ResourceSelector
	if err := json.Unmarshal([]byte(`{"kind":"exact","id":"p1"}`), &s); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if s.Kind != SelectorExact || s.ID != "p1" {
		t.Fatalf("unexpected selector %+v", s)
	}

	malformed := []string{
		`{"kind":"exact"}`,
		`{"kind":"multiple","ids":[]}`,
		`{"kind":"wildcard_except"}`,
		`{"kind":"nonsense"}`,
		`{"id":"p1"}`,
	}
	for _, raw := range malformed {
		var bad ResourceSelector
		err := json.Unmarshal([]byte(raw), &bad)
		var invalid *InvalidSelectorError
		if !errors.As(err, &invalid) {
			t.Fatalf("unmarshal %s: expected InvalidSelectorError, got %v", raw, err)
		}
	}
}

func TestSelectorMarshalRoundtrip(t *testing.T) {
	orig := WildcardExceptSelector("p2", "p9")
	data, err := json.Marshal(orig)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back ResourceSelector
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.String() != orig.String() {
		t.Fatalf("roundtrip mismatch: %s != %s", back.String(), orig.String())
	}
}

func TestPermissionSatisfies(t *testing.T) {
	cases := []struct {
		held, requested PermissionType
		want            bool
	}{
		{PermissionAdmin, PermissionRead, true},
		{PermissionAdmin, PermissionWrite, true},
		{PermissionAdmin, PermissionAdmin, true},
		{PermissionWrite, PermissionRead, true},
		{PermissionWrite, PermissionAdmin, false},
		{PermissionRead, PermissionRead, true},
		{PermissionRead, PermissionWrite, false},
		{PermissionType("owner"), PermissionRead, false},
	}
	for _, tc := range cases {
		if got := tc.held.Satisfies(tc.requested); got != tc.want {
			t.Fatalf("%s satisfies %s = %v, want %v", tc.held, tc.requested, got, tc.want)
		}
	}
}
