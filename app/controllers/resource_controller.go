package controllers

import (
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/ManuelReschke/MetaTask/app/models"
	"github.com/ManuelReschke/MetaTask/app/repository"
	"github.com/ManuelReschke/MetaTask/internal/pkg/scheduling"
	"github.com/ManuelReschke/MetaTask/internal/pkg/usercontext"
)

const (
	defaultAvailabilityDays = 7
	defaultSuggestions      = 5
	maxSuggestions          = 20
)

// ResourceController exposes resource availability and slot suggestions.
type ResourceController struct {
	scheduling *scheduling.Service
	teams      repository.TeamRepository
}

// NewResourceController creates a new resource controller
func NewResourceController(svc *scheduling.Service, teams repository.TeamRepository) *ResourceController {
	return &ResourceController{scheduling: svc, teams: teams}
}

func (rc *ResourceController) loadResource(c *fiber.Ctx) (*models.SchedulableResource, error) {
	id, err := paramID(c, "id")
	if err != nil {
		return nil, err
	}
	r, err := rc.scheduling.GetResource(c.UserContext(), id)
	if err != nil {
		return nil, err
	}
	if !usercontext.CanAccessOrganization(c, r.OrganizationID) {
		return nil, errForbidden
	}
	return r, nil
}

// dateRange reads from/to query dates. The range defaults to one week
// starting today.
func dateRange(c *fiber.Ctx) (time.Time, time.Time, error) {
	today := models.DateOf(time.Now())
	from, err := queryDate(c, "from", today)
	if err != nil {
		return time.Time{}, time.Time{}, errors.New("invalid from date")
	}
	to, err := queryDate(c, "to", from.AddDate(0, 0, defaultAvailabilityDays-1))
	if err != nil {
		return time.Time{}, time.Time{}, errors.New("invalid to date")
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, errors.New("to date before from date")
	}
	return from, to, nil
}

// HandleResourceAvailability returns per-day booked hours and utilization.
func (rc *ResourceController) HandleResourceAvailability(c *fiber.Ctx) error {
	from, to, err := dateRange(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	r, err := rc.loadResource(c)
	if err != nil {
		return respondError(c, err)
	}
	days, err := rc.scheduling.GetResourceAvailability(c.UserContext(), r.ID, from, to)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"resource_id": r.ID, "days": days})
}

// HandleResourceUtilization returns aggregate booking statistics.
func (rc *ResourceController) HandleResourceUtilization(c *fiber.Ctx) error {
	from, to, err := dateRange(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	r, err := rc.loadResource(c)
	if err != nil {
		return respondError(c, err)
	}
	stats, err := rc.scheduling.GetResourceUtilizationStats(c.UserContext(), r.ID, from, to)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(stats)
}

// HandleResourceSuggestions proposes open slots near a preferred start.
// Query: start (RFC3339, required), duration_minutes, max.
func (rc *ResourceController) HandleResourceSuggestions(c *fiber.Ctx) error {
	start, err := time.Parse(time.RFC3339, c.Query("start"))
	if err != nil {
		return badRequest(c, "start must be an RFC3339 timestamp")
	}
	limit, err := strconv.Atoi(c.Query("max", strconv.Itoa(defaultSuggestions)))
	if err != nil || limit < 1 || limit > maxSuggestions {
		return badRequest(c, "invalid max")
	}
	r, err := rc.loadResource(c)
	if err != nil {
		return respondError(c, err)
	}

	duration := r.DefaultBookingDuration
	if raw := c.Query("duration_minutes"); raw != "" {
		minutes, err := strconv.Atoi(raw)
		if err != nil || minutes < 1 {
			return badRequest(c, "invalid duration_minutes")
		}
		duration = time.Duration(minutes) * time.Minute
	}
	if duration <= 0 {
		duration = models.DefaultBookingDuration
	}

	alternatives, err := rc.scheduling.SuggestAlternativeTimes(c.UserContext(), r.ID, start, duration, limit)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"resource_id": r.ID, "alternatives": alternatives})
}

// HandleCreateTeamResource makes a team bookable, returning the existing
// resource when the team already has one.
func (rc *ResourceController) HandleCreateTeamResource(c *fiber.Ctx) error {
	orgID, err := paramID(c, "org")
	if err != nil {
		return badRequest(c, err.Error())
	}
	teamID, err := paramID(c, "team")
	if err != nil {
		return badRequest(c, err.Error())
	}
	team, err := rc.teams.GetByID(teamID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return notFound(c, "Team not found")
		}
		return respondError(c, err)
	}
	if team.OrganizationID != orgID {
		return notFound(c, "Team not found")
	}

	resource, created, err := rc.scheduling.CreateResourceFromTeam(c.UserContext(), team)
	if err != nil {
		return respondError(c, err)
	}
	status := fiber.StatusOK
	if created {
		status = fiber.StatusCreated
	}
	return c.Status(status).JSON(resource)
}

// HandleCreateResource registers a new resource for the organization.
func (rc *ResourceController) HandleCreateResource(c *fiber.Ctx) error {
	orgID, err := paramID(c, "org")
	if err != nil {
		return badRequest(c, err.Error())
	}
	var req createResourceRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return badRequest(c, err.Error())
	}

	resource, err := rc.scheduling.CreateResource(c.UserContext(), scheduling.CreateResourceInput{
		OrganizationID:    orgID,
		Name:              req.Name,
		ResourceType:      req.ResourceType,
		Description:       req.Description,
		Capacity:          req.Capacity,
		BookingDuration:   time.Duration(req.BookingDurationMinutes) * time.Minute,
		AvailabilityRules: req.AvailabilityRules,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(resource)
}

func (rc *ResourceController) HandleUpdateResource(c *fiber.Ctx) error {
	orgID, err := paramID(c, "org")
	if err != nil {
		return badRequest(c, err.Error())
	}
	id, err := paramID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}
	var req updateResourceRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return badRequest(c, err.Error())
	}

	resource, err := rc.scheduling.UpdateResource(c.UserContext(), orgID, id, scheduling.ResourceUpdate{
		Name:                  req.Name,
		Description:           req.Description,
		MaxConcurrentBookings: req.MaxConcurrentBookings,
		AvailabilityRules:     req.AvailabilityRules,
		IsActive:              req.IsActive,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(resource)
}

// HandleDeactivateResource switches a resource off. Future pending or
// confirmed bookings block it with 409.
func (rc *ResourceController) HandleDeactivateResource(c *fiber.Ctx) error {
	orgID, err := paramID(c, "org")
	if err != nil {
		return badRequest(c, err.Error())
	}
	id, err := paramID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}
	ok, err := rc.scheduling.DeactivateResource(c.UserContext(), orgID, id)
	if err != nil {
		return respondError(c, err)
	}
	if !ok {
		return rejected(c, "Resource has upcoming bookings")
	}
	return c.JSON(fiber.Map{"success": true})
}

// HandleAvailableResources lists resources free at a point in time.
// Query: at (RFC3339, required), duration_minutes.
func (rc *ResourceController) HandleAvailableResources(c *fiber.Ctx) error {
	orgID, err := paramID(c, "org")
	if err != nil {
		return badRequest(c, err.Error())
	}
	at, err := time.Parse(time.RFC3339, c.Query("at"))
	if err != nil {
		return badRequest(c, "at must be an RFC3339 timestamp")
	}
	minutes, err := strconv.Atoi(c.Query("duration_minutes", "60"))
	if err != nil || minutes < 1 {
		return badRequest(c, "invalid duration_minutes")
	}

	resources, err := rc.scheduling.GetAvailableResources(c.UserContext(), orgID, at, time.Duration(minutes)*time.Minute)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"resources": resources})
}

// HandleResourceSchedule lists the bookings of a resource between two dates.
func (rc *ResourceController) HandleResourceSchedule(c *fiber.Ctx) error {
	from, to, err := dateRange(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	r, err := rc.loadResource(c)
	if err != nil {
		return respondError(c, err)
	}
	items, err := rc.scheduling.GetResourceSchedule(c.UserContext(), r.ID, from, to.AddDate(0, 0, 1))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"resource_id": r.ID, "bookings": items})
}
