package main

import (
	"fmt"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ManuelReschke/MetaTask/app/repository"
	"github.com/ManuelReschke/MetaTask/internal/pkg/cache"
	"github.com/ManuelReschke/MetaTask/internal/pkg/cflows"
	"github.com/ManuelReschke/MetaTask/internal/pkg/database"
	"github.com/ManuelReschke/MetaTask/internal/pkg/env"
	"github.com/ManuelReschke/MetaTask/internal/pkg/events"
	"github.com/ManuelReschke/MetaTask/internal/pkg/licensing"
	"github.com/ManuelReschke/MetaTask/internal/pkg/router"
	"github.com/ManuelReschke/MetaTask/internal/pkg/scheduling"
)

func main() {
	app, cleanup := NewApplication()
	defer cleanup()

	if err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000"))); err != nil {
		log.Print(err)
	}
}

func NewApplication() (*fiber.App, func()) {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	db := database.GetDB()
	repository.InitializeFactory(db)

	// in-process event bus, mirrored to redis or NATS when configured
	bus := events.NewBus()
	closeTransport, err := events.InstallTransport(bus, events.TransportConfigFromEnv())
	if err != nil {
		log.Fatalf("Failed to set up event transport: %v", err)
	}

	licenses := licensing.NewServiceFromDB(db)
	sched := scheduling.NewServiceFromDB(db, scheduling.WithNotifier(bus))
	sched.RegisterHandlers(bus)
	flows := cflows.NewIntegrationFromDB(db, sched, cflows.WithPublisher(bus))
	flows.RegisterHandlers(bus)

	app := fiber.New(fiber.Config{
		AppName: "MetaTask",
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// fiber metrics
	metricsAuth := basicauth.New(basicauth.Config{
		Users: map[string]string{
			env.GetEnv("METRICS_USER", "admin"): env.GetEnv("METRICS_PASSWORD", "admin"),
		},
	})
	app.Get("/metrics", metricsAuth, monitor.New())
	app.Get("/metrics/prometheus", metricsAuth, adaptor.HTTPHandler(promhttp.Handler()))

	// ROUTER
	router.InstallRouter(app, router.Services{
		Licensing:    licenses,
		Scheduling:   sched,
		Workflow:     flows,
		Repositories: repository.GetGlobalRepositories(),
	})

	return app, closeTransport
}
