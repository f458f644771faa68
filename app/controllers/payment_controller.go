package controllers

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/kazka-books/kazka/internal/pkg/billing"
)

type PaymentStatusReader interface {
	PaymentStatus(ctx context.Context, invoiceID string) (*billing.PaymentStatusView, error)
}

type PaymentController struct {
	payments PaymentStatusReader
}

func NewPaymentController(payments PaymentStatusReader) *PaymentController {
	return &PaymentController{payments: payments}
}

// HandlePaymentStatus processes GET /api/payments/:invoiceId/status.
func (pc *PaymentController) HandlePaymentStatus(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	view, err := pc.payments.PaymentStatus(ctx, c.Params("invoiceId"))
	if err != nil {
		if errors.Is(err, billing.ErrPaymentNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"success": false, "error": "payment not found"})
		}
		log.Errorf("[Payment] status lookup failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "error": "status lookup failed"})
	}
	return c.JSON(fiber.Map{"success": true, "payment": view})
}
