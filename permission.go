package rbac

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// CreatePermission adds a permission definition to the catalog.
func (s *GormStore) CreatePermission(ctx context.Context, perm *Permission) error {
	if perm == nil || perm.Code == "" || perm.Category == "" {
		return ErrInvalidInput
	}
	if perm.Name == "" {
		perm.Name = perm.Code
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&Permission{}).Where("code = ?", perm.Code).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return fmt.Errorf("%w: permission %q", ErrConflict, perm.Code)
	}
	return s.db.WithContext(ctx).Create(perm).Error
}

// UpdatePermission changes a permission's display name, category, description
// and advisory dependency. The code is immutable.
func (s *GormStore) UpdatePermission(ctx context.Context, perm *Permission) error {
	if perm == nil || perm.Code == "" || perm.Name == "" || perm.Category == "" {
		return ErrInvalidInput
	}

	res := s.db.WithContext(ctx).Model(&Permission{}).Where("code = ?", perm.Code).Updates(map[string]interface{}{
		"name":                perm.Name,
		"category":            perm.Category,
		"description":         perm.Description,
		"requires_permission": perm.RequiresPermission,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: permission %q", ErrNotFound, perm.Code)
	}
	return nil
}

// GetPermissionByCode retrieves a permission by its code.
func (s *GormStore) GetPermissionByCode(ctx context.Context, code string) (*Permission, error) {
	if code == "" {
		return nil, ErrInvalidInput
	}

	var perm Permission
	if err := s.db.WithContext(ctx).Where("code = ?", code).First(&perm).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: permission %q", ErrNotFound, code)
		}
		return nil, err
	}
	return &perm, nil
}

// ListPermissions retrieves all permissions ordered by code.
func (s *GormStore) ListPermissions(ctx context.Context) ([]Permission, error) {
	var perms []Permission
	if err := s.db.WithContext(ctx).Order("code ASC").Find(&perms).Error; err != nil {
		return nil, err
	}
	return perms, nil
}

// ListPermissionsByCategory retrieves all permissions grouped by category.
func (s *GormStore) ListPermissionsByCategory(ctx context.Context) (map[string][]Permission, error) {
	perms, err := s.ListPermissions(ctx)
	if err != nil {
		return nil, err
	}
	return groupByCategory(perms), nil
}
