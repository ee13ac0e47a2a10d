package rbac

import "context"

// Directory is the read-only employee directory the engine resolves scopes against.
type Directory interface {
	// GetEmployee returns ErrNotFound when the id is unknown.
	GetEmployee(ctx context.Context, id string) (*Employee, error)
	ListEmployeesByManager(ctx context.Context, managerID, companyID string) ([]Employee, error)
	ListEmployeesByBranch(ctx context.Context, branchID, companyID string) ([]Employee, error)
	ListEmployeesByDepartment(ctx context.Context, departmentID, companyID string) ([]Employee, error)
	ListEmployeesByCompany(ctx context.Context, companyID string) ([]Employee, error)
}

// Catalog is the read-only permission catalog.
type Catalog interface {
	// GetPermissionByCode returns ErrNotFound when the code is unknown.
	GetPermissionByCode(ctx context.Context, code string) (*Permission, error)
	ListPermissions(ctx context.Context) ([]Permission, error)
	ListPermissionsByCategory(ctx context.Context) (map[string][]Permission, error)
}

// GrantFilter narrows ListGrants. Empty fields match everything.
type GrantFilter struct {
	GranteeUserID  string
	CompanyID      string
	PermissionCode string
}

// AuditQuery pages through a company's audit log.
type AuditQuery struct {
	Limit        int
	Offset       int
	Action       string
	TargetUserID string
}

// GrantReader reads grants and audit entries.
type GrantReader interface {
	ListGrants(ctx context.Context, filter GrantFilter) ([]Grant, error)
	// GetGrant returns ErrNotFound when the id is unknown.
	GetGrant(ctx context.Context, id string) (*Grant, error)
	ListAuditLogs(ctx context.Context, companyID string, q AuditQuery) ([]AuditLog, error)
}

// Tx is a store transaction. Writes become visible only when the enclosing
// WithinTx returns nil.
type Tx interface {
	GrantReader
	// LockGrantee serializes transactions that rewrite one grantee's grant set.
	LockGrantee(ctx context.Context, granteeID, companyID string) error
	// CreateGrant returns ErrConflict when the grant key already exists.
	CreateGrant(ctx context.Context, g *Grant) error
	DeleteGrant(ctx context.Context, id string) error
	UpdateGrantEmployees(ctx context.Context, id string, employeeIDs []string) error
	AppendAudit(ctx context.Context, entry *AuditLog) error
}

// Store owns grants and the audit trail.
type Store interface {
	GrantReader
	// WithinTx runs fn in one transaction, committing only if fn returns nil.
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
}
