package router

import (
	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type HttpRouter struct {
	deps Dependencies
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	// recovery, request ids and logging
	app.Use(recover.New(), requestid.New())
	app.Use(logger.New(logger.Config{
		Format: "${time} ${locals:requestid} ${status} - ${latency} ${method} ${path}\n",
	}))

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
	})

	// prometheus metrics
	gatherer := h.deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	app.Get("/metrics",
		basicauth.New(basicauth.Config{Users: h.deps.AdminUsers}),
		adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})),
	)

	// SWAGGER / OPENAPI
	if h.deps.OpenAPIFile != "" {
		app.Use(swagger.New(swagger.Config{
			BasePath: "/docs/",
			FilePath: h.deps.OpenAPIFile,
			Path:     "api",
			Title:    "Kazka API",
		}))
	}
}

func NewHttpRouter(deps Dependencies) *HttpRouter {
	return &HttpRouter{deps: deps}
}
