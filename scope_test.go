package rbac

import (
	"errors"
	"testing"
)

func TestNewScope(t *testing.T) {
	cases := []struct {
		kind    ScopeKind
		target  string
		ids     []string
		want    Scope
		wantErr error
	}{
		{kind: ScopeSelf, target: "ignored", want: SelfScope{}},
		{kind: ScopeDirectReports, want: DirectReportsScope{}},
		{kind: ScopeAllReports, want: AllReportsScope{}},
		{kind: ScopeBranch, target: "branch-7", want: BranchScope{BranchID: "branch-7"}},
		{kind: ScopeBranch, wantErr: ErrValidation},
		{kind: ScopeDepartment, target: "dept-ops", want: DepartmentScope{DepartmentID: "dept-ops"}},
		{kind: ScopeDepartment, wantErr: ErrValidation},
		{kind: ScopeCompanyAll, want: CompanyAllScope{}},
		{kind: "", wantErr: ErrValidation},
		{kind: "EVERYONE", wantErr: ErrValidation},
	}

	for _, tc := range cases {
		got, err := NewScope(tc.kind, tc.target, tc.ids)
		if tc.wantErr != nil {
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("NewScope(%q, %q): expected %v, got %v", tc.kind, tc.target, tc.wantErr, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("NewScope(%q, %q): unexpected error: %v", tc.kind, tc.target, err)
		}
		if got != tc.want {
			t.Fatalf("NewScope(%q, %q): expected %#v, got %#v", tc.kind, tc.target, tc.want, got)
		}
		if got.Kind() != tc.kind {
			t.Fatalf("expected kind %s, got %s", tc.kind, got.Kind())
		}
	}
}

func TestCustomListScopeNormalizesIDs(t *testing.T) {
	s, err := NewScope(ScopeCustomList, "", []string{"e3", "", "e1", "e3"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	custom, ok := s.(CustomListScope)
	if !ok {
		t.Fatalf("expected CustomListScope, got %T", s)
	}
	if !equalIDs(custom.EmployeeIDs, []string{"e1", "e3"}) {
		t.Fatalf("expected [e1 e3], got %v", custom.EmployeeIDs)
	}

	empty, err := NewScope(ScopeCustomList, "", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ids := empty.(CustomListScope).EmployeeIDs; ids == nil || len(ids) != 0 {
		t.Fatalf("expected empty non-nil list, got %#v", ids)
	}
}

func TestScopePartsRoundTrip(t *testing.T) {
	for _, kind := range ScopeKinds {
		g := Grant{Scope: kind}
		switch kind {
		case ScopeBranch, ScopeDepartment:
			g.ScopeTarget = "target-1"
		case ScopeCustomList:
			g.AssignedEmployeeIDs = []string{"e1", "e2"}
		}

		s, err := g.ScopeValue()
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", kind, err)
		}
		target, ids := scopeParts(s)
		if target != g.ScopeTarget {
			t.Fatalf("%s: expected target %q, got %q", kind, g.ScopeTarget, target)
		}
		if !equalIDs(ids, g.AssignedEmployeeIDs) {
			t.Fatalf("%s: expected ids %v, got %v", kind, g.AssignedEmployeeIDs, ids)
		}
	}
}
