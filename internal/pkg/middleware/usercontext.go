package middleware

import (
	"errors"
	"strconv"
	"strings"

	"github.com/ManuelReschke/MetaTask/app/repository"
	"github.com/ManuelReschke/MetaTask/internal/pkg/usercontext"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"
)

// UserContextMiddleware resolves the acting profile from the profile header.
// Requests without a usable header continue anonymously.
func UserContextMiddleware(users repository.UserRepository) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Locals(usercontext.KeyUserContext, usercontext.UserContext{})

		raw := strings.TrimSpace(c.Get(usercontext.HeaderProfileID))
		if raw == "" {
			return c.Next()
		}
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil || id == 0 {
			return c.Next()
		}

		profile, err := users.GetProfile(uint(id))
		if err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				log.Errorf("profile lookup failed for %d: %v", id, err)
				return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Profile lookup failed"})
			}
			return c.Next()
		}
		if !profile.IsActive || (profile.User != nil && !profile.User.IsActive()) {
			return c.Next()
		}

		userCtx := usercontext.UserContext{
			UserID:         profile.UserID,
			ProfileID:      profile.ID,
			OrganizationID: profile.OrganizationID,
			IsLoggedIn:     true,
			IsAdmin:        profile.IsOrganizationAdmin,
		}
		if profile.User != nil {
			userCtx.Username = profile.User.Username
			userCtx.IsStaff = profile.User.IsStaff
		}
		c.Locals(usercontext.KeyUserContext, userCtx)
		return c.Next()
	}
}
