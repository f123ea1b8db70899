package controllers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/MetaTask/app/models"
	"github.com/ManuelReschke/MetaTask/internal/pkg/licensing"
	"github.com/ManuelReschke/MetaTask/internal/pkg/usercontext"
)

const (
	defaultAuditLimit = 100
	maxAuditLimit     = 1000
)

// AdminController holds the support-staff operations on custom licenses
// and the license audit trail.
type AdminController struct {
	licenses *licensing.Service
}

func NewAdminController(licenses *licensing.Service) *AdminController {
	return &AdminController{licenses: licenses}
}

func (ac *AdminController) HandleActivateCustomLicense(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}
	license, err := ac.licenses.ActivateCustomLicense(c.UserContext(), id, usercontext.ActorID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(license)
}

func (ac *AdminController) HandleExtendCustomLicense(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}
	var req extendLicenseRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return badRequest(c, err.Error())
	}
	custom, err := ac.licenses.ExtendCustomLicense(c.UserContext(), id, req.Days, usercontext.ActorID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(custom)
}

func (ac *AdminController) HandleSuspendCustomLicense(c *fiber.Ctx) error {
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
	custom, err := ac.licenses.SuspendCustomLicense(c.UserContext(), id, usercontext.ActorID(c), req.Reason)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(custom)
}

func (ac *AdminController) HandleReactivateCustomLicense(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}
	custom, err := ac.licenses.ReactivateCustomLicense(c.UserContext(), id, usercontext.ActorID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(custom)
}

// HandleAuditLogs lists audit entries, newest first.
// Query: license_id, custom_license_id, performed_by, action, limit.
func (ac *AdminController) HandleAuditLogs(c *fiber.Ctx) error {
	filter, err := auditFilter(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	entries, err := ac.licenses.ListAuditLogs(c.UserContext(), filter)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"entries": entries})
}

// HandleUsageSnapshot records the license's current counters.
func (ac *AdminController) HandleUsageSnapshot(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}
	var req usageSnapshotRequest
	if err := parseBody(c, &req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.ActiveSessions < 0 {
		return badRequest(c, "active_sessions must not be negative")
	}
	entry, err := ac.licenses.RecordUsageSnapshot(c.UserContext(), id, req.ActiveSessions)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(entry)
}

func auditFilter(c *fiber.Ctx) (licensing.AuditFilter, error) {
	filter := licensing.AuditFilter{Limit: defaultAuditLimit}
	for key, dst := range map[string]**uint{
		"license_id":        &filter.LicenseID,
		"custom_license_id": &filter.CustomLicenseID,
		"performed_by":      &filter.PerformedByID,
	} {
		raw := c.Query(key)
		if raw == "" {
			continue
		}
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil || id == 0 {
			return filter, errInvalidQuery(key)
		}
		v := uint(id)
		*dst = &v
	}
	if action := c.Query("action"); action != "" {
		if !knownAuditAction(action) {
			return filter, errInvalidQuery("action")
		}
		filter.Action = action
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > maxAuditLimit {
			return filter, errInvalidQuery("limit")
		}
		filter.Limit = limit
	}
	return filter, nil
}

func knownAuditAction(action string) bool {
	switch action {
	case models.AuditActionCreate, models.AuditActionAssign, models.AuditActionRevoke,
		models.AuditActionModify, models.AuditActionExpire, models.AuditActionExtend,
		models.AuditActionSuspend, models.AuditActionReactivate:
		return true
	}
	return false
}
