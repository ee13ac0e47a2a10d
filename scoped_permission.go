package rbac

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AddGrantInput describes a grant to create.
type AddGrantInput struct {
	ActorAdminID   string
	GranteeID      string
	CompanyID      string
	PermissionCode string
	Scope          ScopeKind
	// ScopeTarget is the branch or department id for BRANCH and DEPARTMENT.
	ScopeTarget         string
	AssignedEmployeeIDs []string
}

// AddUserPermission grants a permission to a user. The grant and its GRANT audit
// entry are written in one transaction.
func (r *RBAC) AddUserPermission(ctx context.Context, in AddGrantInput) (*Grant, error) {
	if in.ActorAdminID == "" || in.GranteeID == "" || in.CompanyID == "" {
		return nil, ErrInvalidInput
	}

	grant, perm, err := r.prepareGrant(ctx, in.GranteeID, in.CompanyID, GrantSpec{
		PermissionCode:      in.PermissionCode,
		Scope:               in.Scope,
		ScopeTarget:         in.ScopeTarget,
		AssignedEmployeeIDs: in.AssignedEmployeeIDs,
	})
	if err != nil {
		r.log.Warn("add grant rejected",
			zap.String("grantee_id", in.GranteeID),
			zap.String("permission", in.PermissionCode),
			zap.Error(err))
		return nil, err
	}
	grant.CreatedBy = in.ActorAdminID

	snap, err := r.snapshot(ctx, in.GranteeID, perm)
	if err != nil {
		return nil, err
	}

	err = r.store.WithinTx(ctx, func(tx Tx) error {
		if err := tx.LockGrantee(ctx, grant.GranteeUserID, grant.CompanyID); err != nil {
			return err
		}
		existing, err := tx.ListGrants(ctx, GrantFilter{
			GranteeUserID:  grant.GranteeUserID,
			CompanyID:      grant.CompanyID,
			PermissionCode: grant.PermissionCode,
		})
		if err != nil {
			return err
		}
		for i := range existing {
			if existing[i].Key() == grant.Key() {
				return fmt.Errorf("%w: %s already granted with scope %s", ErrConflict, grant.PermissionCode, grant.Scope)
			}
		}
		return r.createGrantTx(ctx, tx, in.ActorAdminID, grant, snap)
	})
	if err != nil {
		return nil, err
	}

	r.log.Info("permission granted", grantFields(grant)...)
	return grant, nil
}

// RemoveUserPermission deletes a grant and records a REVOKE entry carrying the
// names as they were before the delete. The removed grant is returned.
func (r *RBAC) RemoveUserPermission(ctx context.Context, grantID, actorAdminID string) (*Grant, error) {
	if grantID == "" || actorAdminID == "" {
		return nil, ErrInvalidInput
	}

	var removed *Grant
	err := r.store.WithinTx(ctx, func(tx Tx) error {
		g, err := tx.GetGrant(ctx, grantID)
		if err != nil {
			return err
		}
		if err := tx.LockGrantee(ctx, g.GranteeUserID, g.CompanyID); err != nil {
			return err
		}
		snap, err := r.snapshotForGrant(ctx, g)
		if err != nil {
			return err
		}
		if err := r.deleteGrantTx(ctx, tx, actorAdminID, g, snap); err != nil {
			return err
		}
		removed = g
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.log.Info("permission revoked", grantFields(removed)...)
	return removed, nil
}

// UpdatePermissionEmployees replaces the employee list of a CUSTOM_LIST grant and
// records one RETARGET entry with the new list.
func (r *RBAC) UpdatePermissionEmployees(ctx context.Context, grantID, actorAdminID string, employeeIDs []string) (*Grant, error) {
	if grantID == "" || actorAdminID == "" {
		return nil, ErrInvalidInput
	}

	var updated *Grant
	err := r.store.WithinTx(ctx, func(tx Tx) error {
		g, err := tx.GetGrant(ctx, grantID)
		if err != nil {
			return err
		}
		if g.Scope != ScopeCustomList {
			return fmt.Errorf("%w: only CUSTOM_LIST grants can be retargeted, grant %s has scope %s", ErrValidation, g.ID, g.Scope)
		}
		if err := tx.LockGrantee(ctx, g.GranteeUserID, g.CompanyID); err != nil {
			return err
		}
		snap, err := r.snapshotForGrant(ctx, g)
		if err != nil {
			return err
		}
		if err := r.retargetGrantTx(ctx, tx, actorAdminID, g, normalizeIDs(employeeIDs), snap); err != nil {
			return err
		}
		updated = g
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.log.Info("permission retargeted", append(grantFields(updated), zap.Int("employees", len(updated.AssignedEmployeeIDs)))...)
	return updated, nil
}

// GetGrant retrieves a grant by ID.
func (r *RBAC) GetGrant(ctx context.Context, id string) (*Grant, error) {
	if id == "" {
		return nil, ErrInvalidInput
	}
	return r.store.GetGrant(ctx, id)
}

// GetUserPermissions lists the grantee's grants in companyID joined with their
// catalog definitions. Permission is nil for codes no longer in the catalog.
func (r *RBAC) GetUserPermissions(ctx context.Context, granteeID, companyID string) ([]UserPermission, error) {
	if granteeID == "" || companyID == "" {
		return nil, ErrInvalidInput
	}

	grants, err := r.store.ListGrants(ctx, GrantFilter{GranteeUserID: granteeID, CompanyID: companyID})
	if err != nil {
		return nil, err
	}
	perms, err := r.catalog.ListPermissions(ctx)
	if err != nil {
		return nil, err
	}
	byCode := make(map[string]*Permission, len(perms))
	for i := range perms {
		byCode[perms[i].Code] = &perms[i]
	}

	sortGrants(grants)
	out := make([]UserPermission, 0, len(grants))
	for _, g := range grants {
		out = append(out, UserPermission{Grant: g, Permission: byCode[g.PermissionCode]})
	}
	return out, nil
}

// prepareGrant validates a requested grant against the catalog and the scope
// rules and builds the row to insert. Nothing is written.
func (r *RBAC) prepareGrant(ctx context.Context, granteeID, companyID string, spec GrantSpec) (*Grant, *Permission, error) {
	if spec.PermissionCode == "" {
		return nil, nil, fmt.Errorf("%w: permission code is required", ErrValidation)
	}
	perm, err := r.catalog.GetPermissionByCode(ctx, spec.PermissionCode)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil, fmt.Errorf("%w: permission %q", ErrNotFound, spec.PermissionCode)
		}
		return nil, nil, err
	}

	scope, err := NewScope(spec.Scope, spec.ScopeTarget, spec.AssignedEmployeeIDs)
	if err != nil {
		return nil, nil, err
	}
	target, employees := scopeParts(scope)

	now := r.now()
	return &Grant{
		ID:                  uuid.NewString(),
		GranteeUserID:       granteeID,
		CompanyID:           companyID,
		PermissionCode:      perm.Code,
		Scope:               scope.Kind(),
		ScopeTarget:         target,
		AssignedEmployeeIDs: employees,
		CreatedAt:           now,
		UpdatedAt:           now,
	}, perm, nil
}

// snapshotForGrant captures names for an existing grant. A permission removed
// from the catalog is recorded under its code.
func (r *RBAC) snapshotForGrant(ctx context.Context, g *Grant) (auditSnapshot, error) {
	perm, err := r.catalog.GetPermissionByCode(ctx, g.PermissionCode)
	if errors.Is(err, ErrNotFound) {
		perm, err = &Permission{Code: g.PermissionCode}, nil
	}
	if err != nil {
		return auditSnapshot{}, err
	}
	return r.snapshot(ctx, g.GranteeUserID, perm)
}

func (r *RBAC) createGrantTx(ctx context.Context, tx Tx, actorID string, g *Grant, snap auditSnapshot) error {
	if err := tx.CreateGrant(ctx, g); err != nil {
		return err
	}
	entry, err := r.newAuditEntry(AuditActionGrant, actorID, g, snap)
	if err != nil {
		return err
	}
	return tx.AppendAudit(ctx, entry)
}

func (r *RBAC) deleteGrantTx(ctx context.Context, tx Tx, actorID string, g *Grant, snap auditSnapshot) error {
	entry, err := r.newAuditEntry(AuditActionRevoke, actorID, g, snap)
	if err != nil {
		return err
	}
	if err := tx.AppendAudit(ctx, entry); err != nil {
		return err
	}
	return tx.DeleteGrant(ctx, g.ID)
}

func (r *RBAC) retargetGrantTx(ctx context.Context, tx Tx, actorID string, g *Grant, employeeIDs []string, snap auditSnapshot) error {
	if err := tx.UpdateGrantEmployees(ctx, g.ID, employeeIDs); err != nil {
		return err
	}
	g.AssignedEmployeeIDs = employeeIDs
	g.UpdatedAt = r.now()
	entry, err := r.newAuditEntry(AuditActionRetarget, actorID, g, snap)
	if err != nil {
		return err
	}
	return tx.AppendAudit(ctx, entry)
}

func grantFields(g *Grant) []zap.Field {
	return []zap.Field{
		zap.String("grant_id", g.ID),
		zap.String("grantee_id", g.GranteeUserID),
		zap.String("company_id", g.CompanyID),
		zap.String("permission", g.PermissionCode),
		zap.String("scope", string(g.Scope)),
	}
}

func sortGrants(grants []Grant) {
	sort.Slice(grants, func(i, j int) bool { return grants[i].Key().less(grants[j].Key()) })
}
