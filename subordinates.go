package rbac

import (
	"context"
	"errors"
	"sort"
)

// Hierarchy answers reporting-line and membership questions over a Directory.
type Hierarchy struct {
	dir Directory
}

// NewHierarchy returns a Hierarchy reading from dir.
func NewHierarchy(dir Directory) *Hierarchy {
	return &Hierarchy{dir: dir}
}

// DirectReports returns the ids of employees managed by managerID in companyID.
func (h *Hierarchy) DirectReports(ctx context.Context, managerID, companyID string) ([]string, error) {
	if managerID == "" || companyID == "" {
		return nil, ErrInvalidInput
	}
	emps, err := h.dir.ListEmployeesByManager(ctx, managerID, companyID)
	if err != nil {
		return nil, err
	}
	return employeeIDs(emps, companyID), nil
}

// AllReports returns every transitive subordinate of managerID, breadth first.
// Each employee is expanded at most once, so a cycle in the manager graph ends
// the walk instead of looping; the result then contains whatever the walk
// reached, possibly including managerID itself.
func (h *Hierarchy) AllReports(ctx context.Context, managerID, companyID string) ([]string, error) {
	if managerID == "" || companyID == "" {
		return nil, ErrInvalidInput
	}

	visited := map[string]struct{}{managerID: {}}
	var out []string
	queue := []string{managerID}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		reports, err := h.dir.ListEmployeesByManager(ctx, current, companyID)
		if err != nil {
			return nil, err
		}
		for _, emp := range reports {
			if emp.CompanyID != companyID {
				continue
			}
			if _, seen := visited[emp.ID]; seen {
				if emp.ID == managerID && !contains(out, managerID) {
					out = append(out, managerID)
				}
				continue
			}
			visited[emp.ID] = struct{}{}
			out = append(out, emp.ID)
			queue = append(queue, emp.ID)
		}
	}
	return out, nil
}

// IsDirectReport reports whether targetID's manager is managerID.
func (h *Hierarchy) IsDirectReport(ctx context.Context, managerID, targetID, companyID string) (bool, error) {
	emp, err := h.lookup(ctx, targetID, companyID)
	if err != nil || emp == nil {
		return false, err
	}
	return emp.ManagerID != nil && *emp.ManagerID == managerID, nil
}

// IsInAllReports reports whether targetID sits anywhere below managerID. It walks
// up from the target, so the cost is the depth of the target rather than the
// size of the manager's organization.
func (h *Hierarchy) IsInAllReports(ctx context.Context, managerID, targetID, companyID string) (bool, error) {
	emp, err := h.lookup(ctx, targetID, companyID)
	if err != nil || emp == nil {
		return false, err
	}

	visited := map[string]struct{}{emp.ID: {}}
	for emp.ManagerID != nil {
		next := *emp.ManagerID
		if next == managerID {
			return true, nil
		}
		if _, seen := visited[next]; seen {
			return false, nil
		}
		visited[next] = struct{}{}

		emp, err = h.lookup(ctx, next, companyID)
		if err != nil || emp == nil {
			return false, err
		}
	}
	return false, nil
}

// BranchMembers returns the ids of employees in branchID.
func (h *Hierarchy) BranchMembers(ctx context.Context, branchID, companyID string) ([]string, error) {
	if branchID == "" || companyID == "" {
		return nil, ErrInvalidInput
	}
	emps, err := h.dir.ListEmployeesByBranch(ctx, branchID, companyID)
	if err != nil {
		return nil, err
	}
	return employeeIDs(emps, companyID), nil
}

// DepartmentMembers returns the ids of employees in departmentID.
func (h *Hierarchy) DepartmentMembers(ctx context.Context, departmentID, companyID string) ([]string, error) {
	if departmentID == "" || companyID == "" {
		return nil, ErrInvalidInput
	}
	emps, err := h.dir.ListEmployeesByDepartment(ctx, departmentID, companyID)
	if err != nil {
		return nil, err
	}
	return employeeIDs(emps, companyID), nil
}

// CompanyMembers returns the ids of every employee in companyID.
func (h *Hierarchy) CompanyMembers(ctx context.Context, companyID string) ([]string, error) {
	if companyID == "" {
		return nil, ErrInvalidInput
	}
	emps, err := h.dir.ListEmployeesByCompany(ctx, companyID)
	if err != nil {
		return nil, err
	}
	return employeeIDs(emps, companyID), nil
}

// lookup returns nil without error when the employee is unknown or belongs to
// another company.
func (h *Hierarchy) lookup(ctx context.Context, id, companyID string) (*Employee, error) {
	if id == "" {
		return nil, nil
	}
	emp, err := h.dir.GetEmployee(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if emp.CompanyID != companyID {
		return nil, nil
	}
	return emp, nil
}

func employeeIDs(emps []Employee, companyID string) []string {
	ids := make([]string, 0, len(emps))
	for _, emp := range emps {
		if emp.CompanyID == companyID {
			ids = append(ids, emp.ID)
		}
	}
	sort.Strings(ids)
	return ids
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
