package controllers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/MetaTask/app/models"
	"github.com/ManuelReschke/MetaTask/internal/pkg/cflows"
	"github.com/ManuelReschke/MetaTask/internal/pkg/scheduling"
	"github.com/ManuelReschke/MetaTask/internal/pkg/usercontext"
)

// WorkflowController exposes team bookings and booking completion with a
// work item update.
type WorkflowController struct {
	flows      *cflows.Integration
	scheduling *scheduling.Service
}

func NewWorkflowController(flows *cflows.Integration, svc *scheduling.Service) *WorkflowController {
	return &WorkflowController{flows: flows, scheduling: svc}
}

// HandleCreateTeamBooking books a team of the organization and mirrors the
// booking into scheduling.
func (wc *WorkflowController) HandleCreateTeamBooking(c *fiber.Ctx) error {
	orgID, err := paramID(c, "org")
	if err != nil {
		return badRequest(c, err.Error())
	}
	var req createTeamBookingRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return badRequest(c, err.Error())
	}

	tb, err := wc.flows.CreateTeamBooking(c.UserContext(), &models.TeamBooking{
		OrganizationID:  orgID,
		TeamID:          req.TeamID,
		WorkItemID:      req.WorkItemID,
		WorkflowStepID:  req.WorkflowStepID,
		JobID:           req.JobID,
		Title:           req.Title,
		Description:     req.Description,
		StartTime:       req.StartTime,
		EndTime:         req.EndTime,
		RequiredMembers: req.RequiredMembers,
		BookedByID:      usercontext.ActorID(c),
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(tb)
}

func (wc *WorkflowController) HandleUpdateTeamBooking(c *fiber.Ctx) error {
	orgID, err := paramID(c, "org")
	if err != nil {
		return badRequest(c, err.Error())
	}
	id, err := paramID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}
	var req updateTeamBookingRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return badRequest(c, err.Error())
	}

	tb, err := wc.flows.UpdateTeamBooking(c.UserContext(), orgID, id, cflows.TeamBookingUpdate{
		Title:           req.Title,
		Description:     req.Description,
		StartTime:       req.StartTime,
		EndTime:         req.EndTime,
		RequiredMembers: req.RequiredMembers,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(tb)
}

// HandleDeleteTeamBooking removes a team booking together with its mirror.
func (wc *WorkflowController) HandleDeleteTeamBooking(c *fiber.Ctx) error {
	orgID, err := paramID(c, "org")
	if err != nil {
		return badRequest(c, err.Error())
	}
	id, err := paramID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}
	if err := wc.flows.DeleteTeamBooking(c.UserContext(), orgID, id); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// accessibleBooking returns the :id booking id once the actor is known to
// act in its organization.
func (wc *WorkflowController) accessibleBooking(c *fiber.Ctx) (uint, error) {
	id, err := paramID(c, "id")
	if err != nil {
		return 0, err
	}
	b, err := wc.scheduling.GetBooking(c.UserContext(), id)
	if err != nil {
		return 0, err
	}
	if !usercontext.CanAccessOrganization(c, b.OrganizationID) {
		return 0, errForbidden
	}
	return b.ID, nil
}

// HandleCompleteWithWorkflow completes a booking and moves or completes the
// work item it belongs to.
func (wc *WorkflowController) HandleCompleteWithWorkflow(c *fiber.Ctx) error {
	var req workflowCompletionRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return badRequest(c, err.Error())
	}
	id, err := wc.accessibleBooking(c)
	if err != nil {
		return respondError(c, err)
	}

	res, reason, err := wc.flows.CompleteBookingWithWorkflowUpdate(c.UserContext(), cflows.WorkflowCompletion{
		BookingID:     id,
		CompletedByID: usercontext.ActorID(c),
		Action:        req.Action,
		TargetStepID:  req.TargetStepID,
		Notes:         req.Notes,
		MarkComplete:  req.MarkComplete,
	})
	if err != nil {
		return respondError(c, err)
	}
	if reason != "" {
		return rejected(c, reason)
	}
	return c.JSON(res)
}

// HandleCompletionOptions lists where the booking's work item can go once
// the booking is completed.
func (wc *WorkflowController) HandleCompletionOptions(c *fiber.Ctx) error {
	id, err := wc.accessibleBooking(c)
	if err != nil {
		return respondError(c, err)
	}
	opts, err := wc.flows.GetCompletionOptions(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(opts)
}
