package controllers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/MetaTask/app/models"
	"github.com/ManuelReschke/MetaTask/internal/pkg/scheduling"
	"github.com/ManuelReschke/MetaTask/internal/pkg/usercontext"
)

// BookingController drives the booking lifecycle over JSON.
type BookingController struct {
	scheduling *scheduling.Service
}

// NewBookingController creates a new booking controller
func NewBookingController(svc *scheduling.Service) *BookingController {
	return &BookingController{scheduling: svc}
}

// loadBooking fetches a booking and checks the actor may act on it.
func (bc *BookingController) loadBooking(c *fiber.Ctx) (*models.BookingRequest, error) {
	id, err := paramID(c, "id")
	if err != nil {
		return nil, err
	}
	b, err := bc.scheduling.GetBooking(c.UserContext(), id)
	if err != nil {
		return nil, err
	}
	if !usercontext.CanAccessOrganization(c, b.OrganizationID) {
		return nil, errForbidden
	}
	return b, nil
}

// transitionResult writes the outcome of a lifecycle call.
func transitionResult(c *fiber.Ctx, b *models.BookingRequest, reason string, err error) error {
	if err != nil {
		return respondError(c, err)
	}
	if reason != "" {
		return rejected(c, reason)
	}
	return c.JSON(b)
}

// HandleCreateBooking books a slot on a resource of the organization.
func (bc *BookingController) HandleCreateBooking(c *fiber.Ctx) error {
	orgID, err := paramID(c, "org")
	if err != nil {
		return badRequest(c, err.Error())
	}
	var req createBookingRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return badRequest(c, err.Error())
	}

	booking, err := bc.scheduling.CreateBooking(c.UserContext(), scheduling.CreateBookingInput{
		OrganizationID:   orgID,
		ResourceID:       req.ResourceID,
		Start:            req.Start,
		End:              req.End,
		Title:            req.Title,
		Description:      req.Description,
		Priority:         req.Priority,
		RequiredCapacity: req.RequiredCapacity,
		RequestedByID:    usercontext.ActorID(c),
		CustomData:       req.CustomData,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(booking)
}

// HandleUpcomingBookings lists the organization's bookings in the next days.
func (bc *BookingController) HandleUpcomingBookings(c *fiber.Ctx) error {
	orgID, err := paramID(c, "org")
	if err != nil {
		return badRequest(c, err.Error())
	}
	days, err := strconv.Atoi(c.Query("days", "7"))
	if err != nil || days < 1 {
		return badRequest(c, "invalid days")
	}
	bookings, err := bc.scheduling.GetUpcomingBookings(c.UserContext(), orgID, days)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"bookings": bookings})
}

func (bc *BookingController) HandleConfirmBooking(c *fiber.Ctx) error {
	b, err := bc.loadBooking(c)
	if err != nil {
		return respondError(c, err)
	}
	booking, reason, err := bc.scheduling.ConfirmBooking(c.UserContext(), b.ID)
	return transitionResult(c, booking, reason, err)
}

func (bc *BookingController) HandleStartBooking(c *fiber.Ctx) error {
	b, err := bc.loadBooking(c)
	if err != nil {
		return respondError(c, err)
	}
	booking, reason, err := bc.scheduling.StartBooking(c.UserContext(), b.ID)
	return transitionResult(c, booking, reason, err)
}

func (bc *BookingController) HandleCompleteBooking(c *fiber.Ctx) error {
	b, err := bc.loadBooking(c)
	if err != nil {
		return respondError(c, err)
	}
	booking, reason, err := bc.scheduling.CompleteBooking(c.UserContext(), b.ID, usercontext.ActorID(c))
	return transitionResult(c, booking, reason, err)
}

// HandleCancelBooking cancels a booking; the optional body carries a reason.
func (bc *BookingController) HandleCancelBooking(c *fiber.Ctx) error {
	var req reasonRequest
	if err := parseBody(c, &req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return badRequest(c, err.Error())
	}
	b, err := bc.loadBooking(c)
	if err != nil {
		return respondError(c, err)
	}
	booking, reason, err := bc.scheduling.CancelBookingByID(c.UserContext(), b.OrganizationID, b.ID, usercontext.ActorID(c), req.Reason)
	return transitionResult(c, booking, reason, err)
}

// HandleRescheduleBooking moves a booking to a new window.
func (bc *BookingController) HandleRescheduleBooking(c *fiber.Ctx) error {
	var req rescheduleRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return badRequest(c, err.Error())
	}
	b, err := bc.loadBooking(c)
	if err != nil {
		return respondError(c, err)
	}
	booking, reason, err := bc.scheduling.RescheduleBooking(c.UserContext(), b.ID, req.Start, req.End, usercontext.ActorID(c))
	return transitionResult(c, booking, reason, err)
}

// HandleApproveBooking confirms a pending booking on behalf of an approver.
func (bc *BookingController) HandleApproveBooking(c *fiber.Ctx) error {
	orgID, err := paramID(c, "org")
	if err != nil {
		return badRequest(c, err.Error())
	}
	id, err := paramID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}
	booking, reason, err := bc.scheduling.ApproveBooking(c.UserContext(), orgID, id, usercontext.ActorID(c))
	return transitionResult(c, booking, reason, err)
}
