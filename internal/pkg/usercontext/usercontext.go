package usercontext

import "github.com/gofiber/fiber/v2"

// UserContext represents the acting profile of a request
type UserContext struct {
	UserID         uint   `json:"user_id"`
	ProfileID      uint   `json:"profile_id"`
	OrganizationID uint   `json:"organization_id"`
	Username       string `json:"username"`
	IsLoggedIn     bool   `json:"is_logged_in"`
	IsAdmin        bool   `json:"is_admin"`
	IsStaff        bool   `json:"is_staff"`
}

// GetUserContext retrieves the user context from fiber context
// Returns a default anonymous context if none is set
func GetUserContext(c *fiber.Ctx) UserContext {
	if ctx, ok := c.Locals(KeyUserContext).(UserContext); ok {
		return ctx
	}
	return UserContext{}
}

// IsLoggedIn checks if a profile is acting on this request
func IsLoggedIn(c *fiber.Ctx) bool {
	return GetUserContext(c).IsLoggedIn
}

// IsAdmin checks if the acting profile administers its organization
func IsAdmin(c *fiber.Ctx) bool {
	return GetUserContext(c).IsAdmin
}

// ActorID returns the acting profile ID for audit fields, nil if anonymous.
func ActorID(c *fiber.Ctx) *uint {
	ctx := GetUserContext(c)
	if !ctx.IsLoggedIn {
		return nil
	}
	id := ctx.ProfileID
	return &id
}

// CanAccessOrganization reports whether the actor may act inside orgID.
// Staff may act in every organization.
func CanAccessOrganization(c *fiber.Ctx, orgID uint) bool {
	ctx := GetUserContext(c)
	return ctx.IsLoggedIn && (ctx.IsStaff || ctx.OrganizationID == orgID)
}
