package rbac

import (
	"fmt"
	"sort"
)

// ScopeKind is the persisted discriminator of a Scope.
type ScopeKind string

const (
	ScopeSelf          ScopeKind = "SELF"
	ScopeDirectReports ScopeKind = "DIRECT_REPORTS"
	ScopeAllReports    ScopeKind = "ALL_REPORTS"
	ScopeBranch        ScopeKind = "BRANCH"
	ScopeDepartment    ScopeKind = "DEPARTMENT"
	ScopeCompanyAll    ScopeKind = "COMPANY_ALL"
	ScopeCustomList    ScopeKind = "CUSTOM_LIST"
)

// ScopeKinds lists every scope kind.
var ScopeKinds = []ScopeKind{
	ScopeSelf,
	ScopeDirectReports,
	ScopeAllReports,
	ScopeBranch,
	ScopeDepartment,
	ScopeCompanyAll,
	ScopeCustomList,
}

// Scope selects the employees a grant covers. The set of implementations is
// closed; switches over Scope must handle every type below.
type Scope interface {
	Kind() ScopeKind
	isScope()
}

type SelfScope struct{}

type DirectReportsScope struct{}

type AllReportsScope struct{}

type BranchScope struct{ BranchID string }

type DepartmentScope struct{ DepartmentID string }

type CompanyAllScope struct{}

type CustomListScope struct{ EmployeeIDs []string }

func (SelfScope) Kind() ScopeKind          { return ScopeSelf }
func (DirectReportsScope) Kind() ScopeKind { return ScopeDirectReports }
func (AllReportsScope) Kind() ScopeKind    { return ScopeAllReports }
func (BranchScope) Kind() ScopeKind        { return ScopeBranch }
func (DepartmentScope) Kind() ScopeKind    { return ScopeDepartment }
func (CompanyAllScope) Kind() ScopeKind    { return ScopeCompanyAll }
func (CustomListScope) Kind() ScopeKind    { return ScopeCustomList }

func (SelfScope) isScope()          {}
func (DirectReportsScope) isScope() {}
func (AllReportsScope) isScope()    {}
func (BranchScope) isScope()        {}
func (DepartmentScope) isScope()    {}
func (CompanyAllScope) isScope()    {}
func (CustomListScope) isScope()    {}

// NewScope builds a Scope from its persisted parts and checks the kind/target
// pairing. The target is ignored for kinds that do not use it, and employee ids
// are ignored for everything but CUSTOM_LIST.
func NewScope(kind ScopeKind, target string, employeeIDs []string) (Scope, error) {
	switch kind {
	case ScopeSelf:
		return SelfScope{}, nil
	case ScopeDirectReports:
		return DirectReportsScope{}, nil
	case ScopeAllReports:
		return AllReportsScope{}, nil
	case ScopeBranch:
		if target == "" {
			return nil, fmt.Errorf("%w: BRANCH scope requires a branch id", ErrValidation)
		}
		return BranchScope{BranchID: target}, nil
	case ScopeDepartment:
		if target == "" {
			return nil, fmt.Errorf("%w: DEPARTMENT scope requires a department id", ErrValidation)
		}
		return DepartmentScope{DepartmentID: target}, nil
	case ScopeCompanyAll:
		return CompanyAllScope{}, nil
	case ScopeCustomList:
		// An empty list is legal and covers nobody until retargeted.
		return CustomListScope{EmployeeIDs: normalizeIDs(employeeIDs)}, nil
	default:
		return nil, fmt.Errorf("%w: unknown scope %q", ErrValidation, kind)
	}
}

// scopeParts returns the persisted target and employee list of a scope.
func scopeParts(s Scope) (string, []string) {
	switch v := s.(type) {
	case BranchScope:
		return v.BranchID, nil
	case DepartmentScope:
		return v.DepartmentID, nil
	case CustomListScope:
		return "", v.EmployeeIDs
	case SelfScope, DirectReportsScope, AllReportsScope, CompanyAllScope:
		return "", nil
	default:
		panic(fmt.Sprintf("rbac: unhandled scope %T", s))
	}
}

// ScopeValue decodes the grant's scope columns.
func (g *Grant) ScopeValue() (Scope, error) {
	return NewScope(g.Scope, g.ScopeTarget, g.AssignedEmployeeIDs)
}

// normalizeIDs drops blanks and duplicates and sorts the result.
func normalizeIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
