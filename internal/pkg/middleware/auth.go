package middleware

import (
	"strconv"

	"github.com/ManuelReschke/MetaTask/internal/pkg/usercontext"
	"github.com/gofiber/fiber/v2"
)

// RequireProfile rejects anonymous API requests with JSON 401.
func RequireProfile(c *fiber.Ctx) error {
	if !usercontext.IsLoggedIn(c) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error":   "unauthorized",
			"message": "profile required",
		})
	}
	return c.Next()
}

// RequireOrganization ensures the actor belongs to the organization named
// by the :org route parameter. Staff pass for every organization.
func RequireOrganization(c *fiber.Ctx) error {
	orgID, err := strconv.ParseUint(c.Params("org"), 10, 64)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "invalid organization id"})
	}
	if !usercontext.CanAccessOrganization(c, uint(orgID)) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "forbidden", "message": "no access to organization"})
	}
	return c.Next()
}

// RequireOrganizationAdmin lets organization admins and staff through.
// It runs after RequireOrganization.
func RequireOrganizationAdmin(c *fiber.Ctx) error {
	if !usercontext.IsAdmin(c) && !usercontext.GetUserContext(c).IsStaff {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "forbidden", "message": "organization admin only"})
	}
	return c.Next()
}

// RequireStaff ensures the actor is a support staff member.
func RequireStaff(c *fiber.Ctx) error {
	if !usercontext.GetUserContext(c).IsStaff {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "forbidden", "message": "staff only"})
	}
	return c.Next()
}
