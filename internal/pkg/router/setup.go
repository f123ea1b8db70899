package router

import (
	"github.com/ManuelReschke/MetaTask/app/repository"
	"github.com/ManuelReschke/MetaTask/internal/pkg/cflows"
	"github.com/ManuelReschke/MetaTask/internal/pkg/licensing"
	"github.com/ManuelReschke/MetaTask/internal/pkg/scheduling"
	"github.com/gofiber/fiber/v2"
)

// Router installs one group of routes on the app.
type Router interface {
	InstallRouter(app *fiber.App)
}

// Services are the domain services the HTTP surface delegates to.
type Services struct {
	Licensing    *licensing.Service
	Scheduling   *scheduling.Service
	Workflow     *cflows.Integration
	Repositories *repository.Repositories
}

func InstallRouter(app *fiber.App, services Services) {
	setup(app, NewApiRouter(services))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
