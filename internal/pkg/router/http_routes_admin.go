package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
)

func (h ApiRouter) registerAdminRoutes(api fiber.Router) {
	adminGroup := api.Group("/admin", basicauth.New(basicauth.Config{Users: h.deps.AdminUsers}))

	// Dashboard + subscription requests
	adminGroup.Get("/statistics", h.deps.Admin.HandleStatistics)
	adminGroup.Get("/subscription-requests", h.deps.Admin.HandleListSubscriptionRequests)
	adminGroup.Patch("/subscription-requests/:id/notes", h.deps.Admin.HandleUpdateNotes)

	// Reconciliation
	adminGroup.Get("/statement", h.deps.Admin.HandleStatement)
	adminGroup.Post("/statement/export", h.deps.Admin.HandleStatementExport)

	// Registration tasks + queue monitor
	adminGroup.Post("/registration-tasks/:id/retry", h.deps.Admin.HandleRetryRegistration)
	adminGroup.Get("/queue", h.deps.Admin.HandleQueueStats)
	adminGroup.Get("/jobs/:id", h.deps.Admin.HandleJob)
}
