package controllers

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/kazka-books/kazka/app/models"
	"github.com/kazka-books/kazka/internal/pkg/billing"
	"github.com/kazka-books/kazka/internal/pkg/monobank"
)

const signatureHeader = "X-Sign"

// SignatureVerifier checks the X-Sign header of a delivery.
type SignatureVerifier interface {
	ValidateWebhook(ctx context.Context, rawBody []byte, signature string) bool
}

// NotificationParser turns a raw body into a typed notification.
type NotificationParser interface {
	Parse(raw []byte) (*monobank.InvoicePaymentStatusChanged, error)
}

// NotificationProcessor applies a validated notification.
type NotificationProcessor interface {
	ProcessNotification(ctx context.Context, n *monobank.InvoicePaymentStatusChanged, raw []byte, signatureValid bool) (*billing.Outcome, error)
}

type WebhookOptions struct {
	SkipSignature bool
	Timeout       time.Duration
	BodyLimit     int
	Metrics       billing.Metrics
}

// WebhookController receives monobank payment notifications.
type WebhookController struct {
	processor NotificationProcessor
	parser    NotificationParser
	verifier  SignatureVerifier
	opts      WebhookOptions
}

func NewWebhookController(processor NotificationProcessor, parser NotificationParser, verifier SignatureVerifier, opts WebhookOptions) *WebhookController {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.Metrics == nil {
		opts.Metrics = billing.NoopMetrics{}
	}
	return &WebhookController{processor: processor, parser: parser, verifier: verifier, opts: opts}
}

// HandleMonobankWebhook processes POST /api/payments/monobank/webhook.
func (wc *WebhookController) HandleMonobankWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	if wc.opts.BodyLimit > 0 && len(rawBody) > wc.opts.BodyLimit {
		wc.opts.Metrics.RecordWebhookError(models.PaymentProviderMonobank, "body_too_large")
		return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{"success": false, "error": "payload too large"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), wc.opts.Timeout)
	defer cancel()

	signatureValid := false
	if wc.opts.SkipSignature {
		log.Warn("[Webhook] signature check disabled, accepting unsigned delivery")
	} else {
		signature := strings.TrimSpace(c.Get(signatureHeader))
		if signature == "" || !wc.verifier.ValidateWebhook(ctx, rawBody, signature) {
			wc.opts.Metrics.RecordWebhookError(models.PaymentProviderMonobank, "invalid_signature")
			log.Warnf("[Webhook] rejected delivery from %s: invalid signature", c.IP())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"success": false, "error": "invalid signature"})
		}
		signatureValid = true
	}

	notification, err := wc.parser.Parse(rawBody)
	if err != nil {
		if errors.Is(err, monobank.ErrUnsupportedNotification) {
			log.Infof("[Webhook] ignored: %v", err)
			wc.opts.Metrics.RecordWebhookEvent(models.PaymentProviderMonobank, "unsupported", "ignored")
			return c.Status(fiber.StatusOK).JSON(fiber.Map{"success": true, "ignored": true})
		}
		wc.opts.Metrics.RecordWebhookError(models.PaymentProviderMonobank, "invalid_payload")
		log.Warnf("[Webhook] invalid payload: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": err.Error()})
	}

	outcome, err := wc.processor.ProcessNotification(ctx, notification, rawBody, signatureValid)
	if err != nil {
		log.Errorf("[Webhook] processing invoice %s failed: %v", notification.InvoiceID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "error": err.Error()})
	}

	resp := fiber.Map{"success": true}
	if outcome.Duplicate {
		resp["duplicate"] = true
	}
	if outcome.Ignored {
		resp["ignored"] = true
	}
	return c.Status(fiber.StatusOK).JSON(resp)
}

// HandleMonobankWebhookPing answers provider health checks.
func (wc *WebhookController) HandleMonobankWebhookPing(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"success": true,
		"message": "monobank webhook endpoint is alive",
	})
}
