package rbac

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// GetEmployee retrieves an employee by ID.
func (s *GormStore) GetEmployee(ctx context.Context, id string) (*Employee, error) {
	if id == "" {
		return nil, ErrInvalidInput
	}

	var emp Employee
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&emp).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: employee %q", ErrNotFound, id)
		}
		return nil, err
	}
	return &emp, nil
}

// ListEmployeesByManager retrieves the direct reports of a manager.
func (s *GormStore) ListEmployeesByManager(ctx context.Context, managerID, companyID string) ([]Employee, error) {
	return s.listEmployees(ctx, companyID, "manager_id = ?", managerID)
}

// ListEmployeesByBranch retrieves the employees of a branch.
func (s *GormStore) ListEmployeesByBranch(ctx context.Context, branchID, companyID string) ([]Employee, error) {
	return s.listEmployees(ctx, companyID, "branch_id = ?", branchID)
}

// ListEmployeesByDepartment retrieves the employees of a department.
func (s *GormStore) ListEmployeesByDepartment(ctx context.Context, departmentID, companyID string) ([]Employee, error) {
	return s.listEmployees(ctx, companyID, "department_id = ?", departmentID)
}

// ListEmployeesByCompany retrieves every employee of a company.
func (s *GormStore) ListEmployeesByCompany(ctx context.Context, companyID string) ([]Employee, error) {
	return s.listEmployees(ctx, companyID, "")
}

func (s *GormStore) listEmployees(ctx context.Context, companyID, cond string, args ...interface{}) ([]Employee, error) {
	query := s.db.WithContext(ctx).Where("company_id = ?", companyID).Order("id ASC")
	if cond != "" {
		query = query.Where(cond, args...)
	}

	var emps []Employee
	if err := query.Find(&emps).Error; err != nil {
		return nil, err
	}
	return emps, nil
}
