package controllers

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/kazka-books/kazka/internal/pkg/billing"
	"github.com/kazka-books/kazka/internal/pkg/hcaptcha"
)

// SubscriptionCreator stores subscription requests and opens invoices.
type SubscriptionCreator interface {
	CreateSubscription(ctx context.Context, in billing.SubscriptionInput) (*billing.SubscriptionResult, error)
}

// CaptchaVerifier checks the captcha token of the public form.
type CaptchaVerifier interface {
	Verify(ctx context.Context, token, remoteIP string) error
}

type subscriptionForm struct {
	billing.SubscriptionInput
	CaptchaToken string `json:"captchaToken" form:"h-captcha-response"`
}

// SubscriptionController handles the public subscription form.
type SubscriptionController struct {
	subscriptions SubscriptionCreator
	captcha       CaptchaVerifier
}

// NewSubscriptionController creates the controller. captcha may be nil when
// hCaptcha is not configured.
func NewSubscriptionController(subscriptions SubscriptionCreator, captcha CaptchaVerifier) *SubscriptionController {
	return &SubscriptionController{subscriptions: subscriptions, captcha: captcha}
}

// HandleCreateSubscription processes POST /api/subscriptions.
func (sc *SubscriptionController) HandleCreateSubscription(c *fiber.Ctx) error {
	var form subscriptionForm
	if err := c.BodyParser(&form); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": "invalid request body"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if sc.captcha != nil {
		ipv4, ipv6 := GetClientIP(c)
		remoteIP := ipv4
		if remoteIP == "" {
			remoteIP = ipv6
		}
		if err := sc.captcha.Verify(ctx, form.CaptchaToken, remoteIP); err != nil {
			if errors.Is(err, hcaptcha.ErrMissingToken) || errors.Is(err, hcaptcha.ErrRejected) {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": "captcha validation failed"})
			}
			log.Errorf("[Subscription] captcha verification failed: %v", err)
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"success": false, "error": "captcha service unavailable"})
		}
	}

	result, err := sc.subscriptions.CreateSubscription(ctx, form.SubscriptionInput)
	if err != nil {
		switch {
		case errors.Is(err, billing.ErrInvalidSubscription):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": err.Error()})
		case errors.Is(err, billing.ErrGatewayUnavailable):
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"success": false, "error": "payment provider unavailable"})
		default:
			log.Errorf("[Subscription] create failed: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "error": "could not store subscription request"})
		}
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success":               true,
		"subscriptionRequestId": result.SubscriptionRequestID,
		"invoiceId":             result.InvoiceID,
		"pageUrl":               result.PageURL,
		"amount":                result.Amount,
		"currency":              result.Currency,
	})
}
