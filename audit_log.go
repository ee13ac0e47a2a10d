package rbac

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
)

const (
	defaultAuditPageSize = 50
	maxAuditPageSize     = 200
)

// scopeDetails is the serialized form of a grant's target information.
type scopeDetails struct {
	ScopeTarget string `json:"scopeTarget,omitempty"`
	// EmployeeIDs is set for every CUSTOM_LIST grant, so an empty list is
	// written as [].
	EmployeeIDs *[]string `json:"employeeIds,omitempty"`
}

// auditSnapshot captures display names before a mutation so the entry keeps
// them after later renames or deletions.
type auditSnapshot struct {
	targetUserName string
	permissionName string
}

// snapshot reads the grantee and permission names. An employee missing from the
// directory is recorded under its id.
func (r *RBAC) snapshot(ctx context.Context, granteeID string, perm *Permission) (auditSnapshot, error) {
	snap := auditSnapshot{targetUserName: granteeID, permissionName: perm.Name}
	emp, err := r.dir.GetEmployee(ctx, granteeID)
	switch {
	case errors.Is(err, ErrNotFound):
	case err != nil:
		return auditSnapshot{}, err
	default:
		snap.targetUserName = emp.Name
	}
	if snap.permissionName == "" {
		snap.permissionName = perm.Code
	}
	return snap, nil
}

// newAuditEntry builds the audit entry describing action on g.
func (r *RBAC) newAuditEntry(action, performedByID string, g *Grant, snap auditSnapshot) (*AuditLog, error) {
	d := scopeDetails{ScopeTarget: g.ScopeTarget}
	if g.Scope == ScopeCustomList {
		ids := []string(g.AssignedEmployeeIDs)
		if ids == nil {
			ids = []string{}
		}
		d.EmployeeIDs = &ids
	}
	details, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	return &AuditLog{
		ID:             uuid.NewString(),
		CompanyID:      g.CompanyID,
		Action:         action,
		PerformedByID:  performedByID,
		TargetUserID:   g.GranteeUserID,
		TargetUserName: snap.targetUserName,
		PermissionCode: g.PermissionCode,
		PermissionName: snap.permissionName,
		Scope:          g.Scope,
		ScopeDetails:   string(details),
		CreatedAt:      r.now(),
	}, nil
}

// GetAuditLog returns a page of the company's audit log, most recent first.
func (r *RBAC) GetAuditLog(ctx context.Context, companyID string, q AuditQuery) ([]AuditLog, error) {
	if companyID == "" || q.Offset < 0 {
		return nil, ErrInvalidInput
	}
	if q.Limit <= 0 {
		q.Limit = defaultAuditPageSize
	}
	if q.Limit > maxAuditPageSize {
		q.Limit = maxAuditPageSize
	}
	return r.store.ListAuditLogs(ctx, companyID, q)
}
