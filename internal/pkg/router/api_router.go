package router

import (
	"github.com/ManuelReschke/MetaTask/app/controllers"
	"github.com/ManuelReschke/MetaTask/internal/pkg/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

type ApiRouter struct {
	services Services
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	repos := h.services.Repositories
	licenses := controllers.NewLicenseController(h.services.Licensing, repos.Organization)
	bookings := controllers.NewBookingController(h.services.Scheduling)
	resources := controllers.NewResourceController(h.services.Scheduling, repos.Team)
	admin := controllers.NewAdminController(h.services.Licensing)
	workflow := controllers.NewWorkflowController(h.services.Workflow, h.services.Scheduling)

	api := app.Group("/api", limiter.New(), middleware.UserContextMiddleware(repos.User))
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	// API v1 routes
	v1 := api.Group("/v1", middleware.RequireProfile, middleware.CountAPICalls(h.services.Licensing))
	v1.Get("/me/services", licenses.HandleMyServices)

	orgs := v1.Group("/organizations/:org", middleware.RequireOrganization)
	orgs.Get("/licenses/summary", licenses.HandleLicenseSummary)
	orgs.Get("/licenses/available", licenses.HandleAvailableLicenses)
	orgs.Post("/bookings", bookings.HandleCreateBooking)
	orgs.Get("/bookings/upcoming", bookings.HandleUpcomingBookings)
	orgs.Post("/bookings/:id/approve", bookings.HandleApproveBooking)
	orgs.Get("/resources/available", resources.HandleAvailableResources)
	orgs.Post("/resources", middleware.RequireOrganizationAdmin, resources.HandleCreateResource)
	orgs.Patch("/resources/:id", middleware.RequireOrganizationAdmin, resources.HandleUpdateResource)
	orgs.Delete("/resources/:id", middleware.RequireOrganizationAdmin, resources.HandleDeactivateResource)
	orgs.Post("/teams/:team/resource", middleware.RequireOrganizationAdmin, resources.HandleCreateTeamResource)
	orgs.Post("/team-bookings", workflow.HandleCreateTeamBooking)
	orgs.Patch("/team-bookings/:id", workflow.HandleUpdateTeamBooking)
	orgs.Delete("/team-bookings/:id", workflow.HandleDeleteTeamBooking)

	v1.Post("/licenses/:id/assignments", licenses.HandleAssignSeat)
	v1.Get("/licenses/:id/usage/:kind", licenses.HandleLicenseUsage)
	v1.Delete("/assignments/:id", licenses.HandleRevokeSeat)

	v1.Post("/bookings/:id/confirm", bookings.HandleConfirmBooking)
	v1.Post("/bookings/:id/start", bookings.HandleStartBooking)
	v1.Post("/bookings/:id/complete", bookings.HandleCompleteBooking)
	v1.Post("/bookings/:id/cancel", bookings.HandleCancelBooking)
	v1.Post("/bookings/:id/reschedule", bookings.HandleRescheduleBooking)
	v1.Post("/bookings/:id/complete-with-workflow", workflow.HandleCompleteWithWorkflow)
	v1.Get("/bookings/:id/completion-options", workflow.HandleCompletionOptions)

	v1.Get("/resources/:id/availability", resources.HandleResourceAvailability)
	v1.Get("/resources/:id/utilization", resources.HandleResourceUtilization)
	v1.Get("/resources/:id/suggestions", resources.HandleResourceSuggestions)
	v1.Get("/resources/:id/schedule", resources.HandleResourceSchedule)

	// Support staff
	staff := v1.Group("/admin", middleware.RequireStaff)
	staff.Get("/audit-logs", admin.HandleAuditLogs)
	staff.Post("/custom-licenses/:id/activate", admin.HandleActivateCustomLicense)
	staff.Post("/custom-licenses/:id/extend", admin.HandleExtendCustomLicense)
	staff.Post("/custom-licenses/:id/suspend", admin.HandleSuspendCustomLicense)
	staff.Post("/custom-licenses/:id/reactivate", admin.HandleReactivateCustomLicense)
	staff.Post("/licenses/:id/usage-snapshots", admin.HandleUsageSnapshot)
}

func NewApiRouter(services Services) *ApiRouter {
	return &ApiRouter{services: services}
}
