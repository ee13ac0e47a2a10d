package rbac

import (
	"time"

	"github.com/lib/pq"
)

// Employee is the read model of the employee directory.
type Employee struct {
	ID           string  `gorm:"primaryKey;type:varchar(64)"`
	CompanyID    string  `gorm:"type:varchar(64);not null;index:idx_employees_company_manager,priority:1;index:idx_employees_company_branch,priority:1;index:idx_employees_company_department,priority:1"`
	Name         string  `gorm:"not null"`
	ManagerID    *string `gorm:"type:varchar(64);index:idx_employees_company_manager,priority:2"` // nil for organizational roots
	BranchID     *string `gorm:"type:varchar(64);index:idx_employees_company_branch,priority:2"`
	DepartmentID *string `gorm:"type:varchar(64);index:idx_employees_company_department,priority:2"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (Employee) TableName() string {
	return "employees"
}

// Permission is a permission definition from the catalog.
type Permission struct {
	Code        string `gorm:"primaryKey;type:varchar(128)" json:"code"`
	Name        string `gorm:"not null" json:"name"`
	Category    string `gorm:"type:varchar(64);not null;index" json:"category"`
	Description string `json:"description,omitempty"`
	// RequiresPermission is advisory metadata. Holding it is not checked on grant.
	RequiresPermission *string   `gorm:"type:varchar(128)" json:"requiresPermission,omitempty"`
	CreatedAt          time.Time `json:"-"`
	UpdatedAt          time.Time `json:"-"`
}

func (Permission) TableName() string {
	return "permissions"
}

// Grant gives a user a permission over the employees selected by its scope.
type Grant struct {
	ID             string    `gorm:"primaryKey;type:uuid"`
	GranteeUserID  string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_user_permissions_key,priority:1"`
	CompanyID      string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_user_permissions_key,priority:2"`
	PermissionCode string    `gorm:"type:varchar(128);not null;uniqueIndex:idx_user_permissions_key,priority:3"`
	Scope          ScopeKind `gorm:"type:varchar(32);not null;uniqueIndex:idx_user_permissions_key,priority:4"`
	// ScopeTarget holds the branch or department id for BRANCH and DEPARTMENT scopes.
	ScopeTarget         string         `gorm:"type:varchar(64);not null;default:'';uniqueIndex:idx_user_permissions_key,priority:5"`
	AssignedEmployeeIDs pq.StringArray `gorm:"type:text[]"`
	CreatedBy           string         `gorm:"type:varchar(64)"`
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

func (Grant) TableName() string {
	return "user_permissions"
}

// Key identifies a grant within a grantee's grant set.
func (g *Grant) Key() GrantKey {
	return GrantKey{PermissionCode: g.PermissionCode, Scope: g.Scope, ScopeTarget: g.ScopeTarget}
}

// GrantKey is the identity used to diff grant sets in bulk replacement.
type GrantKey struct {
	PermissionCode string
	Scope          ScopeKind
	ScopeTarget    string
}

// less orders keys by permission code, then scope, then scope target.
func (k GrantKey) less(o GrantKey) bool {
	if k.PermissionCode != o.PermissionCode {
		return k.PermissionCode < o.PermissionCode
	}
	if k.Scope != o.Scope {
		return k.Scope < o.Scope
	}
	return k.ScopeTarget < o.ScopeTarget
}

// UserPermission is a grant joined with its catalog definition.
type UserPermission struct {
	Grant      Grant
	Permission *Permission
}

// Audit actions.
const (
	AuditActionGrant    = "GRANT"
	AuditActionRevoke   = "REVOKE"
	AuditActionRetarget = "RETARGET"
)

// AuditLog records a grant mutation. Names are snapshots taken when the entry is
// written and are never refreshed.
type AuditLog struct {
	ID             string    `gorm:"primaryKey;type:uuid" json:"id"`
	CompanyID      string    `gorm:"type:varchar(64);not null;index:idx_permission_audit_company_created,priority:1" json:"companyId"`
	Action         string    `gorm:"type:varchar(16);not null" json:"action"`
	PerformedByID  string    `gorm:"type:varchar(64);not null" json:"performedById"`
	TargetUserID   string    `gorm:"type:varchar(64);not null;index" json:"targetUserId"`
	TargetUserName string    `gorm:"not null" json:"targetUserName"`
	PermissionCode string    `gorm:"type:varchar(128);not null" json:"permissionCode"`
	PermissionName string    `gorm:"not null" json:"permissionName"`
	Scope          ScopeKind `gorm:"type:varchar(32);not null" json:"scope"`
	ScopeDetails   string    `json:"scopeDetails"`
	CreatedAt      time.Time `gorm:"index:idx_permission_audit_company_created,priority:2,sort:desc" json:"createdAt"`
	// Seq is assigned by the database on insert and breaks CreatedAt ties in
	// insertion order.
	Seq int64 `gorm:"type:bigserial;not null;<-:false" json:"-"`
}

func (AuditLog) TableName() string {
	return "permission_audit_logs"
}
