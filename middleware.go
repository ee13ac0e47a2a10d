package rbac

import (
	"github.com/gofiber/fiber/v2"
)

// Fiber locals set by the authentication layer in front of these handlers.
const (
	LocalActorID   = "actor_id"
	LocalCompanyID = "company_id"
	LocalDecision  = "rbac_decision"
)

// RequirePermission rejects requests whose actor holds no grant for code.
func (r *RBAC) RequirePermission(code string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actorID, companyID, ok := actorFromLocals(c)
		if !ok {
			return fiber.NewError(fiber.StatusUnauthorized, "actor not found in context")
		}

		allowed, err := r.HasPermission(c.UserContext(), actorID, companyID, code)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		if !allowed {
			return fiber.NewError(fiber.StatusForbidden, ReasonNoGrant)
		}
		return c.Next()
	}
}

// RequireEmployeeAccess rejects requests whose actor cannot act on the employee
// named by the route parameter targetParam under code. The decision is stored
// in c.Locals(LocalDecision) for the next handler.
func (r *RBAC) RequireEmployeeAccess(code, targetParam string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actorID, companyID, ok := actorFromLocals(c)
		if !ok {
			return fiber.NewError(fiber.StatusUnauthorized, "actor not found in context")
		}
		targetID := c.Params(targetParam)
		if targetID == "" {
			return fiber.NewError(fiber.StatusBadRequest, "missing "+targetParam)
		}

		decision, err := r.CanAccessEmployee(c.UserContext(), actorID, companyID, code, targetID)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		if !decision.HasAccess {
			return fiber.NewError(fiber.StatusForbidden, decision.Reason)
		}
		c.Locals(LocalDecision, decision)
		return c.Next()
	}
}

func actorFromLocals(c *fiber.Ctx) (string, string, bool) {
	actorID, _ := c.Locals(LocalActorID).(string)
	companyID, _ := c.Locals(LocalCompanyID).(string)
	return actorID, companyID, actorID != "" && companyID != ""
}
