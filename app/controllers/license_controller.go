package controllers

import (
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/ManuelReschke/MetaTask/app/models"
	"github.com/ManuelReschke/MetaTask/app/repository"
	"github.com/ManuelReschke/MetaTask/internal/pkg/licensing"
	"github.com/ManuelReschke/MetaTask/internal/pkg/usercontext"
)

// LicenseController exposes seat management and license usage as JSON.
type LicenseController struct {
	licenses *licensing.Service
	orgs     repository.OrganizationRepository
}

// NewLicenseController creates a new license controller
func NewLicenseController(licenses *licensing.Service, orgs repository.OrganizationRepository) *LicenseController {
	return &LicenseController{licenses: licenses, orgs: orgs}
}

// loadLicense fetches a license and checks the actor may see it.
func (lc *LicenseController) loadLicense(c *fiber.Ctx, id uint) (*models.License, error) {
	l, err := lc.licenses.GetLicense(c.UserContext(), id)
	if err != nil {
		return nil, err
	}
	if !usercontext.CanAccessOrganization(c, l.OrganizationID) {
		return nil, errForbidden
	}
	return l, nil
}

// HandleLicenseSummary returns seat totals over an organization's licenses.
func (lc *LicenseController) HandleLicenseSummary(c *fiber.Ctx) error {
	orgID, err := paramID(c, "org")
	if err != nil {
		return badRequest(c, err.Error())
	}
	if _, err := lc.orgs.GetByID(orgID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return notFound(c, "Organization not found")
		}
		return respondError(c, err)
	}

	summary, err := lc.licenses.GetOrganizationLicenseSummary(c.UserContext(), orgID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(summary)
}

// HandleAvailableLicenses lists the organization's licenses with free seats.
func (lc *LicenseController) HandleAvailableLicenses(c *fiber.Ctx) error {
	orgID, err := paramID(c, "org")
	if err != nil {
		return badRequest(c, err.Error())
	}
	var serviceID *uint
	if raw := c.Query("service_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return badRequest(c, "invalid service_id")
		}
		sid := uint(id)
		serviceID = &sid
	}

	available, err := lc.licenses.GetAvailableLicensesForUser(c.UserContext(), orgID, serviceID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"licenses": available})
}

// HandleAssignSeat binds a profile to a seat of the license.
func (lc *LicenseController) HandleAssignSeat(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}
	var req assignSeatRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return badRequest(c, err.Error())
	}
	if _, err := lc.loadLicense(c, id); err != nil {
		return respondError(c, err)
	}

	assignment, reason, err := lc.licenses.AssignUserToLicense(c.UserContext(), id, req.ProfileID, usercontext.ActorID(c))
	if err != nil {
		return respondError(c, err)
	}
	if assignment == nil {
		return rejected(c, reason)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"assignment": assignment,
		"message":    reason,
	})
}

// HandleRevokeSeat deactivates an assignment. The body may carry a reason.
func (lc *LicenseController) HandleRevokeSeat(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}
	var req reasonRequest
	if err := parseBody(c, &req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return badRequest(c, err.Error())
	}

	assignment, err := lc.licenses.GetAssignment(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	if _, err := lc.loadLicense(c, assignment.LicenseID); err != nil {
		return respondError(c, err)
	}

	ok, message, err := lc.licenses.RevokeUserLicense(c.UserContext(), id, usercontext.ActorID(c), req.Reason)
	if err != nil {
		return respondError(c, err)
	}
	if !ok {
		return rejected(c, message)
	}
	return c.JSON(fiber.Map{"success": true, "message": message})
}

// HandleLicenseUsage reports the usage percentage of one resource kind.
func (lc *LicenseController) HandleLicenseUsage(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}
	kind, ok := parseResourceKind(c.Params("kind"))
	if !ok {
		return badRequest(c, "unknown resource kind")
	}
	l, err := lc.loadLicense(c, id)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"license_id":       l.ID,
		"kind":             kind,
		"usage_percentage": l.UsagePercentage(kind),
		"at_limit":         l.IsAtLimit(kind),
		"valid":            l.IsValid(time.Now()),
	})
}

// HandleMyServices lists the services the acting profile can use.
func (lc *LicenseController) HandleMyServices(c *fiber.Ctx) error {
	profileID := usercontext.GetUserContext(c).ProfileID
	services, err := lc.licenses.GetUserServices(c.UserContext(), profileID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"services": services})
}

func parseResourceKind(raw string) (models.ResourceKind, bool) {
	for _, k := range models.ResourceKinds {
		if string(k) == raw {
			return k, true
		}
	}
	return "", false
}
