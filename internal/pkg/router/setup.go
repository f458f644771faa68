package router

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/kazka-books/kazka/app/controllers"
)

// Router registers a set of routes on the app.
type Router interface {
	InstallRouter(app *fiber.App)
}

// Dependencies carries everything the routes need. Controllers are built in
// cmd/kazka and handed in here.
type Dependencies struct {
	Webhook       *controllers.WebhookController
	Subscriptions *controllers.SubscriptionController
	Payments      *controllers.PaymentController
	Admin         *controllers.AdminController

	// AdminUsers guards /api/admin and /metrics with basic auth.
	AdminUsers map[string]string

	// LimiterStorage backs the subscription rate limiter; nil keeps the
	// counters in memory.
	LimiterStorage    fiber.Storage
	LimiterMax        int
	LimiterExpiration time.Duration
	CORSOrigins       string

	Gatherer prometheus.Gatherer
	// OpenAPIFile is served by the swagger UI when set.
	OpenAPIFile string
}

func InstallRouter(app *fiber.App, deps Dependencies) {
	// HttpRouter installs the global middleware, so it goes first.
	setup(app, NewHttpRouter(deps), NewApiRouter(deps))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
