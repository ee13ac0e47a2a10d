package routes

import (
	"time"

	rbac "github.com/bohemiyan/scopedrbac"
	"github.com/gofiber/fiber/v2"
)

type handler struct {
	engine *rbac.RBAC
}

type grantRequest struct {
	PermissionCode string   `json:"permissionCode"`
	Scope          string   `json:"scope"`
	ScopeTarget    string   `json:"scopeTarget"`
	EmployeeIDs    []string `json:"employeeIds"`
}

func (g grantRequest) spec() rbac.GrantSpec {
	return rbac.GrantSpec{
		PermissionCode:      g.PermissionCode,
		Scope:               rbac.ScopeKind(g.Scope),
		ScopeTarget:         g.ScopeTarget,
		AssignedEmployeeIDs: g.EmployeeIDs,
	}
}

type grantResponse struct {
	ID             string    `json:"id"`
	GranteeUserID  string    `json:"granteeUserId"`
	CompanyID      string    `json:"companyId"`
	PermissionCode string    `json:"permissionCode"`
	PermissionName string    `json:"permissionName,omitempty"`
	Category       string    `json:"category,omitempty"`
	Scope          string    `json:"scope"`
	ScopeTarget    string    `json:"scopeTarget,omitempty"`
	EmployeeIDs    []string  `json:"employeeIds,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

func toGrantResponse(g *rbac.Grant, perm *rbac.Permission) grantResponse {
	resp := grantResponse{
		ID:             g.ID,
		GranteeUserID:  g.GranteeUserID,
		CompanyID:      g.CompanyID,
		PermissionCode: g.PermissionCode,
		Scope:          string(g.Scope),
		ScopeTarget:    g.ScopeTarget,
		EmployeeIDs:    g.AssignedEmployeeIDs,
		CreatedAt:      g.CreatedAt,
	}
	if perm != nil {
		resp.PermissionName = perm.Name
		resp.Category = perm.Category
	}
	return resp
}

func toGrantResponses(grants []rbac.Grant) []grantResponse {
	out := make([]grantResponse, 0, len(grants))
	for i := range grants {
		out = append(out, toGrantResponse(&grants[i], nil))
	}
	return out
}

type decisionResponse struct {
	HasAccess bool   `json:"hasAccess"`
	Reason    string `json:"reason,omitempty"`
	Scope     string `json:"scope,omitempty"`
	GrantID   string `json:"grantId,omitempty"`
}

func toDecisionResponse(d rbac.Decision) decisionResponse {
	return decisionResponse{HasAccess: d.HasAccess, Reason: d.Reason, Scope: string(d.Scope), GrantID: d.GrantID}
}

func actor(c *fiber.Ctx) (string, string) {
	actorID, _ := c.Locals(rbac.LocalActorID).(string)
	companyID, _ := c.Locals(rbac.LocalCompanyID).(string)
	return actorID, companyID
}

func (h *handler) listPermissions(c *fiber.Ctx) error {
	byCategory, err := h.engine.Catalog().ListPermissionsByCategory(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"categories": byCategory})
}

func (h *handler) hasPermission(c *fiber.Ctx) error {
	actorID, companyID := actor(c)
	ok, err := h.engine.HasPermission(c.UserContext(), actorID, companyID, c.Params("code"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"hasPermission": ok})
}

func (h *handler) accessibleEmployees(c *fiber.Ctx) error {
	actorID, companyID := actor(c)
	ids, err := h.engine.GetAccessibleEmployeeIDs(c.UserContext(), actorID, companyID, c.Params("code"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"employeeIds": ids})
}

func (h *handler) canAccessEmployee(c *fiber.Ctx) error {
	actorID, companyID := actor(c)
	d, err := h.engine.CanAccessEmployee(c.UserContext(), actorID, companyID, c.Params("code"), c.Params("employeeId"))
	if err != nil {
		return err
	}
	return c.JSON(toDecisionResponse(d))
}

// employee returns a directory entry the actor may view.
func (h *handler) employee(c *fiber.Ctx) error {
	_, companyID := actor(c)
	emp, err := h.engine.Directory().GetEmployee(c.UserContext(), c.Params("employeeId"))
	if err != nil {
		return err
	}
	// Custom lists are not checked against the directory and may name anyone.
	if emp.CompanyID != companyID {
		return fiber.NewError(fiber.StatusNotFound, rbac.ErrNotFound.Error())
	}
	d, _ := c.Locals(rbac.LocalDecision).(rbac.Decision)
	return c.JSON(fiber.Map{
		"employee": fiber.Map{
			"id":           emp.ID,
			"name":         emp.Name,
			"managerId":    emp.ManagerID,
			"branchId":     emp.BranchID,
			"departmentId": emp.DepartmentID,
		},
		"access": toDecisionResponse(d),
	})
}

func (h *handler) reports(c *fiber.Ctx) error {
	_, companyID := actor(c)
	ids, err := h.engine.Hierarchy().DirectReports(c.UserContext(), c.Params("employeeId"), companyID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"employeeIds": ids})
}

type bulkCheckRequest struct {
	Checks []struct {
		PermissionCode string `json:"permissionCode"`
		EmployeeID     string `json:"employeeId"`
	} `json:"checks"`
}

func (h *handler) checkBulk(c *fiber.Ctx) error {
	var req bulkCheckRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	actorID, companyID := actor(c)
	checks := make([]rbac.AccessCheck, 0, len(req.Checks))
	for _, ch := range req.Checks {
		checks = append(checks, rbac.AccessCheck{
			ActorID:        actorID,
			CompanyID:      companyID,
			PermissionCode: ch.PermissionCode,
			TargetID:       ch.EmployeeID,
		})
	}

	results := h.engine.CheckAccessBulk(c.UserContext(), checks)
	out := make([]fiber.Map, 0, len(results))
	for _, res := range results {
		entry := fiber.Map{
			"permissionCode": res.Check.PermissionCode,
			"employeeId":     res.Check.TargetID,
			"decision":       toDecisionResponse(res.Decision),
		}
		if res.Error != nil {
			entry["error"] = res.Error.Error()
		}
		out = append(out, entry)
	}
	return c.JSON(fiber.Map{"results": out})
}

func (h *handler) userPermissions(c *fiber.Ctx) error {
	_, companyID := actor(c)
	perms, err := h.engine.GetUserPermissions(c.UserContext(), c.Params("userId"), companyID)
	if err != nil {
		return err
	}
	out := make([]grantResponse, 0, len(perms))
	for i := range perms {
		out = append(out, toGrantResponse(&perms[i].Grant, perms[i].Permission))
	}
	return c.JSON(fiber.Map{"permissions": out})
}

func (h *handler) addPermission(c *fiber.Ctx) error {
	var req grantRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	actorID, companyID := actor(c)
	g, err := h.engine.AddUserPermission(c.UserContext(), rbac.AddGrantInput{
		ActorAdminID:        actorID,
		GranteeID:           c.Params("userId"),
		CompanyID:           companyID,
		PermissionCode:      req.PermissionCode,
		Scope:               rbac.ScopeKind(req.Scope),
		ScopeTarget:         req.ScopeTarget,
		AssignedEmployeeIDs: req.EmployeeIDs,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(toGrantResponse(g, nil))
}

func (h *handler) replacePermissions(c *fiber.Ctx) error {
	var req struct {
		Permissions []grantRequest `json:"permissions"`
	}
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	specs := make([]rbac.GrantSpec, 0, len(req.Permissions))
	for _, p := range req.Permissions {
		specs = append(specs, p.spec())
	}

	actorID, companyID := actor(c)
	res, err := h.engine.UpdateUserPermissionsBulk(c.UserContext(), rbac.BulkReplaceInput{
		ActorAdminID: actorID,
		GranteeID:    c.Params("userId"),
		CompanyID:    companyID,
		Grants:       specs,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"added":      toGrantResponses(res.Added),
		"removed":    toGrantResponses(res.Removed),
		"retargeted": toGrantResponses(res.Retargeted),
		"unchanged":  res.Unchanged,
	})
}

// ownGrant fails with 404 unless the grant belongs to the actor's company.
func (h *handler) ownGrant(c *fiber.Ctx, companyID string) error {
	g, err := h.engine.GetGrant(c.UserContext(), c.Params("grantId"))
	if err != nil {
		return err
	}
	if g.CompanyID != companyID {
		return fiber.NewError(fiber.StatusNotFound, rbac.ErrNotFound.Error())
	}
	return nil
}

func (h *handler) removePermission(c *fiber.Ctx) error {
	actorID, companyID := actor(c)
	if err := h.ownGrant(c, companyID); err != nil {
		return err
	}
	g, err := h.engine.RemoveUserPermission(c.UserContext(), c.Params("grantId"), actorID)
	if err != nil {
		return err
	}
	return c.JSON(toGrantResponse(g, nil))
}

func (h *handler) retarget(c *fiber.Ctx) error {
	var req struct {
		EmployeeIDs []string `json:"employeeIds"`
	}
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	actorID, companyID := actor(c)
	if err := h.ownGrant(c, companyID); err != nil {
		return err
	}
	g, err := h.engine.UpdatePermissionEmployees(c.UserContext(), c.Params("grantId"), actorID, req.EmployeeIDs)
	if err != nil {
		return err
	}
	return c.JSON(toGrantResponse(g, nil))
}

func (h *handler) auditLog(c *fiber.Ctx) error {
	_, companyID := actor(c)
	entries, err := h.engine.GetAuditLog(c.UserContext(), companyID, rbac.AuditQuery{
		Limit:        c.QueryInt("limit", 0),
		Offset:       c.QueryInt("offset", 0),
		Action:       c.Query("action"),
		TargetUserID: c.Query("targetUserId"),
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"entries": entries})
}
