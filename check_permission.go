package rbac

import (
	"context"
	"fmt"
	"sort"
)

// Decision reasons.
const (
	ReasonNoGrant      = "no grant for permission"
	ReasonOutsideScope = "target outside granted scope"
)

// Decision is the outcome of an access check. A denial is a normal result,
// not an error.
type Decision struct {
	HasAccess bool
	Reason    string
	// Scope and GrantID identify the first grant that matched.
	Scope   ScopeKind
	GrantID string
}

// HasPermission reports whether the actor holds code in companyID under any scope.
func (r *RBAC) HasPermission(ctx context.Context, actorID, companyID, code string) (bool, error) {
	if actorID == "" || companyID == "" || code == "" {
		return false, ErrInvalidInput
	}
	grants, err := r.store.ListGrants(ctx, GrantFilter{GranteeUserID: actorID, CompanyID: companyID, PermissionCode: code})
	if err != nil {
		return false, err
	}
	return len(grants) > 0, nil
}

// CanAccessEmployee decides whether the actor may act on targetID under code.
// Grants are OR-ed: the first grant whose scope covers the target allows access.
func (r *RBAC) CanAccessEmployee(ctx context.Context, actorID, companyID, code, targetID string) (Decision, error) {
	if actorID == "" || companyID == "" || code == "" || targetID == "" {
		return Decision{}, ErrInvalidInput
	}

	grants, err := r.store.ListGrants(ctx, GrantFilter{GranteeUserID: actorID, CompanyID: companyID, PermissionCode: code})
	if err != nil {
		return Decision{}, err
	}
	if len(grants) == 0 {
		return Decision{Reason: ReasonNoGrant}, nil
	}

	target := &targetLookup{h: r.hierarchy, id: targetID, companyID: companyID}
	for i := range grants {
		ok, err := r.grantCovers(ctx, &grants[i], actorID, target)
		if err != nil {
			return Decision{}, err
		}
		if ok {
			return Decision{
				HasAccess: true,
				Reason:    fmt.Sprintf("granted via %s scope", grants[i].Scope),
				Scope:     grants[i].Scope,
				GrantID:   grants[i].ID,
			}, nil
		}
	}
	return Decision{Reason: ReasonOutsideScope}, nil
}

// GetAccessibleEmployeeIDs returns the sorted union of every grant's resolved set.
func (r *RBAC) GetAccessibleEmployeeIDs(ctx context.Context, actorID, companyID, code string) ([]string, error) {
	if actorID == "" || companyID == "" || code == "" {
		return nil, ErrInvalidInput
	}

	grants, err := r.store.ListGrants(ctx, GrantFilter{GranteeUserID: actorID, CompanyID: companyID, PermissionCode: code})
	if err != nil {
		return nil, err
	}

	// SELF and CUSTOM_LIST may name ids missing from the directory, so even a
	// COMPANY_ALL grant does not make the other grants redundant.
	set := make(map[string]struct{})
	for i := range grants {
		ids, err := r.ResolveGrant(ctx, grants[i])
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			set[id] = struct{}{}
		}
	}

	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

// ResolveGrant returns the employees a single grant covers, sorted.
func (r *RBAC) ResolveGrant(ctx context.Context, g Grant) ([]string, error) {
	scope, err := g.ScopeValue()
	if err != nil {
		return nil, err
	}

	var ids []string
	switch s := scope.(type) {
	case SelfScope:
		ids = []string{g.GranteeUserID}
	case DirectReportsScope:
		ids, err = r.hierarchy.DirectReports(ctx, g.GranteeUserID, g.CompanyID)
	case AllReportsScope:
		ids, err = r.hierarchy.AllReports(ctx, g.GranteeUserID, g.CompanyID)
	case BranchScope:
		ids, err = r.hierarchy.BranchMembers(ctx, s.BranchID, g.CompanyID)
	case DepartmentScope:
		ids, err = r.hierarchy.DepartmentMembers(ctx, s.DepartmentID, g.CompanyID)
	case CompanyAllScope:
		ids, err = r.hierarchy.CompanyMembers(ctx, g.CompanyID)
	case CustomListScope:
		ids = append([]string(nil), s.EmployeeIDs...)
	default:
		panic(fmt.Sprintf("rbac: unhandled scope %T", scope))
	}
	if err != nil {
		return nil, err
	}
	sort.Strings(ids)
	return ids, nil
}

// grantCovers evaluates one grant's scope predicate against the target.
func (r *RBAC) grantCovers(ctx context.Context, g *Grant, actorID string, target *targetLookup) (bool, error) {
	scope, err := g.ScopeValue()
	if err != nil {
		// A corrupt row widens nothing.
		r.log.Sugar().Warnw("skipping malformed grant", "grant_id", g.ID, "error", err)
		return false, nil
	}

	switch s := scope.(type) {
	case SelfScope:
		return target.id == actorID, nil
	case DirectReportsScope:
		emp, err := target.get(ctx)
		if err != nil || emp == nil {
			return false, err
		}
		return emp.ManagerID != nil && *emp.ManagerID == actorID, nil
	case AllReportsScope:
		return r.hierarchy.IsInAllReports(ctx, actorID, target.id, g.CompanyID)
	case BranchScope:
		emp, err := target.get(ctx)
		if err != nil || emp == nil {
			return false, err
		}
		return emp.BranchID != nil && *emp.BranchID == s.BranchID, nil
	case DepartmentScope:
		emp, err := target.get(ctx)
		if err != nil || emp == nil {
			return false, err
		}
		return emp.DepartmentID != nil && *emp.DepartmentID == s.DepartmentID, nil
	case CompanyAllScope:
		emp, err := target.get(ctx)
		if err != nil {
			return false, err
		}
		return emp != nil, nil
	case CustomListScope:
		return contains(s.EmployeeIDs, target.id), nil
	default:
		panic(fmt.Sprintf("rbac: unhandled scope %T", scope))
	}
}

// targetLookup loads the target employee at most once per decision.
type targetLookup struct {
	h         *Hierarchy
	id        string
	companyID string

	loaded bool
	emp    *Employee
	err    error
}

func (t *targetLookup) get(ctx context.Context) (*Employee, error) {
	if !t.loaded {
		t.emp, t.err = t.h.lookup(ctx, t.id, t.companyID)
		t.loaded = true
	}
	return t.emp, t.err
}
