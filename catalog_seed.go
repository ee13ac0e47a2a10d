package rbac

import (
	"context"
	"errors"
)

// Permission codes used by the HR modules.
const (
	PermAttendanceView    = "ATTENDANCE_VIEW"
	PermAttendanceApprove = "ATTENDANCE_APPROVE"
	PermLeaveView         = "LEAVE_VIEW"
	PermLeaveApprove      = "LEAVE_APPROVE"
	PermPayrollView       = "PAYROLL_VIEW"
	PermPayrollProcess    = "PAYROLL_PROCESS"
	PermLocationView      = "LOCATION_TRACKING_VIEW"
	PermEmployeeView      = "EMPLOYEE_VIEW"
	PermEmployeeEdit      = "EMPLOYEE_EDIT"
	PermOrgChartView      = "ORG_CHART_VIEW"
	PermPermissionsManage = "PERMISSIONS_MANAGE"
	PermAuditView         = "AUDIT_VIEW"
)

func requires(code string) *string { return &code }

// DefaultPermissions is the catalog a fresh deployment starts with.
var DefaultPermissions = []Permission{
	{Code: PermAttendanceView, Name: "View attendance", Category: "attendance"},
	{Code: PermAttendanceApprove, Name: "Approve attendance", Category: "attendance", RequiresPermission: requires(PermAttendanceView)},
	{Code: PermLeaveView, Name: "View leave", Category: "leave"},
	{Code: PermLeaveApprove, Name: "Approve leave", Category: "leave", RequiresPermission: requires(PermLeaveView)},
	{Code: PermPayrollView, Name: "View payroll", Category: "payroll"},
	{Code: PermPayrollProcess, Name: "Process payroll", Category: "payroll", RequiresPermission: requires(PermPayrollView)},
	{Code: PermLocationView, Name: "View location tracking", Category: "location"},
	{Code: PermEmployeeView, Name: "View employees", Category: "employees"},
	{Code: PermEmployeeEdit, Name: "Edit employees", Category: "employees", RequiresPermission: requires(PermEmployeeView)},
	{Code: PermOrgChartView, Name: "View org chart", Category: "employees"},
	{Code: PermPermissionsManage, Name: "Manage permissions", Category: "administration"},
	{Code: PermAuditView, Name: "View permission audit log", Category: "administration"},
}

// SeedPermissions creates missing definitions and refreshes existing ones.
func SeedPermissions(ctx context.Context, w PermissionWriter, perms []Permission) error {
	for i := range perms {
		perm := perms[i]
		err := w.CreatePermission(ctx, &perm)
		if errors.Is(err, ErrConflict) {
			err = w.UpdatePermission(ctx, &perm)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
