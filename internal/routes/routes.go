package routes

import (
	"errors"
	"strings"
	"time"

	rbac "github.com/bohemiyan/scopedrbac"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

// Claims identify the actor of a request.
type Claims struct {
	EmployeeID string `json:"employee_id"`
	CompanyID  string `json:"company_id"`
	jwt.RegisteredClaims
}

// SignToken issues an HS256 token for an actor.
func SignToken(secret []byte, employeeID, companyID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		EmployeeID: employeeID,
		CompanyID:  companyID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   employeeID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// ActorMiddleware validates the bearer token and stores the actor in locals.
func ActorMiddleware(secret []byte) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || raw == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "missing bearer token")
		}

		claims := &Claims{}
		token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
			return secret, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil || !token.Valid || claims.EmployeeID == "" || claims.CompanyID == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid token")
		}

		c.Locals(rbac.LocalActorID, claims.EmployeeID)
		c.Locals(rbac.LocalCompanyID, claims.CompanyID)
		return c.Next()
	}
}

// Setup registers the permission API on app.
func Setup(app *fiber.App, engine *rbac.RBAC, jwtSecret []byte) {
	h := &handler{engine: engine}

	api := app.Group("/api/v1", ActorMiddleware(jwtSecret))

	api.Get("/permissions", h.listPermissions)

	access := api.Group("/access")
	access.Get("/:code", h.hasPermission)
	access.Get("/:code/employees", h.accessibleEmployees)
	access.Get("/:code/employees/:employeeId", h.canAccessEmployee)
	access.Post("/check", h.checkBulk)

	employees := api.Group("/employees")
	employees.Get("/:employeeId", engine.RequireEmployeeAccess(rbac.PermEmployeeView, "employeeId"), h.employee)
	employees.Get("/:employeeId/reports", engine.RequireEmployeeAccess(rbac.PermOrgChartView, "employeeId"), h.reports)

	manage := engine.RequirePermission(rbac.PermPermissionsManage)
	api.Get("/users/:userId/permissions", manage, h.userPermissions)
	api.Post("/users/:userId/permissions", manage, h.addPermission)
	api.Put("/users/:userId/permissions", manage, h.replacePermissions)
	api.Delete("/grants/:grantId", manage, h.removePermission)
	api.Put("/grants/:grantId/employees", manage, h.retarget)

	api.Get("/audit", engine.RequirePermission(rbac.PermAuditView), h.auditLog)
}

// ErrorHandler renders fiber and engine errors as JSON.
func ErrorHandler(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		status = fe.Code
	case errors.Is(err, rbac.ErrNotFound):
		status = fiber.StatusNotFound
	case errors.Is(err, rbac.ErrValidation), errors.Is(err, rbac.ErrInvalidInput):
		status = fiber.StatusBadRequest
	case errors.Is(err, rbac.ErrConflict):
		status = fiber.StatusConflict
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}
