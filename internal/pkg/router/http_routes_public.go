package router

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/kazka-books/kazka/app/controllers"
)

func (h ApiRouter) registerPublicRoutes(api fiber.Router) {
	// Payment provider webhook (no rate limit, signature-verified in controller)
	api.Post("/payments/monobank/webhook", h.deps.Webhook.HandleMonobankWebhook)
	api.Get("/payments/monobank/webhook", h.deps.Webhook.HandleMonobankWebhookPing)

	// Storefront endpoints, called from the browser
	corsHandler := cors.New(cors.Config{
		AllowOrigins: h.deps.CORSOrigins,
		AllowMethods: "GET,POST,OPTIONS",
	})
	api.Options("/subscriptions", corsHandler)
	api.Post("/subscriptions", corsHandler, h.subscriptionLimiter(), h.deps.Subscriptions.HandleCreateSubscription)
	api.Options("/payments/:invoiceId/status", corsHandler)
	api.Get("/payments/:invoiceId/status", corsHandler, h.deps.Payments.HandlePaymentStatus)
}

func (h ApiRouter) subscriptionLimiter() fiber.Handler {
	limit := h.deps.LimiterMax
	if limit <= 0 {
		limit = 5
	}
	expiration := h.deps.LimiterExpiration
	if expiration <= 0 {
		expiration = time.Minute
	}
	return limiter.New(limiter.Config{
		Max:        limit,
		Expiration: expiration,
		Storage:    h.deps.LimiterStorage,
		KeyGenerator: func(c *fiber.Ctx) string {
			ipv4, ipv6 := controllers.GetClientIP(c)
			if ipv4 != "" {
				return "subscribe:" + ipv4
			}
			return "subscribe:" + ipv6
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"success": false,
				"error":   "too many requests, please try again later",
			})
		},
	})
}
