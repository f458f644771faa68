package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/kazka-books/kazka/app/models"
	"github.com/kazka-books/kazka/app/repository"
	"github.com/kazka-books/kazka/internal/pkg/monobank"
)

// ProcessNotification logs a validated delivery and applies it. A delivery of
// an event that was already processed successfully is reported as Duplicate
// without touching the payment again.
func (s *Service) ProcessNotification(ctx context.Context, n *monobank.InvoicePaymentStatusChanged, raw []byte, signatureValid bool) (*Outcome, error) {
	started := s.now()
	defer func() {
		s.metrics.RecordWebhookProcessingDuration(models.PaymentProviderMonobank, monobank.NotificationInvoicePaymentStatusChanged, s.now().Sub(started))
	}()

	if _, ok := MapInvoiceStatus(n.Status); !ok {
		return s.ApplyInvoiceStatus(ctx, n)
	}

	payload := string(raw)
	if !json.Valid(raw) {
		payload = "{}"
	}
	created, event, err := s.RecordWebhookEvent(ctx, WebhookEventInput{
		Provider:        models.PaymentProviderMonobank,
		ProviderEventID: webhookEventID(n),
		EventType:       monobank.NotificationInvoicePaymentStatusChanged,
		InvoiceID:       n.InvoiceID,
		PayloadJSON:     payload,
		SignatureValid:  signatureValid,
	})
	if err != nil {
		s.metrics.RecordWebhookError(models.PaymentProviderMonobank, "event_log")
		return nil, fmt.Errorf("record webhook event: %w", err)
	}
	if !created && event.ProcessedAt != nil && event.ProcessingError == "" {
		log.Infof("[Billing] duplicate delivery %s ignored", event.ProviderEventID)
		s.metrics.RecordWebhookEvent(models.PaymentProviderMonobank, monobank.NotificationInvoicePaymentStatusChanged, "duplicate")
		return &Outcome{InvoiceID: n.InvoiceID, Duplicate: true}, nil
	}

	outcome, applyErr := s.ApplyInvoiceStatus(ctx, n)
	if err := s.MarkWebhookProcessed(ctx, event.ID, applyErr); err != nil {
		log.Warnf("[Billing] failed to mark webhook event %d processed: %v", event.ID, err)
	}
	if applyErr != nil {
		return nil, applyErr
	}
	return outcome, nil
}

// ApplyInvoiceStatus moves the payment and its subscription request out of
// pending according to the notification. The transition happens at most once:
// both updates are conditional on the pending status and run in one
// transaction together with the insert of the registration task. The
// registration itself runs after the commit; its failure is recorded on the
// task and never undoes the status change.
func (s *Service) ApplyInvoiceStatus(ctx context.Context, n *monobank.InvoicePaymentStatusChanged) (*Outcome, error) {
	outcome := &Outcome{InvoiceID: n.InvoiceID}
	eventType := monobank.NotificationInvoicePaymentStatusChanged

	status, ok := MapInvoiceStatus(n.Status)
	if !ok {
		log.Infof("[Billing] invoice %s reported non-terminal status %q, nothing to do", n.InvoiceID, n.Status)
		s.metrics.RecordWebhookEvent(models.PaymentProviderMonobank, eventType, "ignored")
		outcome.Ignored = true
		return outcome, nil
	}
	outcome.Status = status

	payment, err := s.store.Repositories().Payment.GetByInvoiceID(ctx, n.InvoiceID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.metrics.RecordWebhookError(models.PaymentProviderMonobank, "payment_not_found")
			return nil, fmt.Errorf("%w: %s", ErrPaymentNotFound, n.InvoiceID)
		}
		s.metrics.RecordWebhookError(models.PaymentProviderMonobank, "persistence")
		return nil, fmt.Errorf("load payment %s: %w", n.InvoiceID, err)
	}
	if !payment.IsPending() {
		s.metrics.RecordWebhookEvent(models.PaymentProviderMonobank, eventType, "duplicate")
		outcome.Duplicate = true
		return outcome, nil
	}

	update := repository.PaymentStatusUpdate{
		Status:         status,
		ProviderStatus: n.Status,
		Amount:         n.Amount,
		Currency:       n.Currency(),
	}
	if !n.ModifiedDate.IsZero() {
		modified := n.ModifiedDate.UTC()
		update.ProviderModifiedAt = &modified
	}
	if status == models.STATUS_COMPLETED {
		paidAt := s.now().UTC()
		if update.ProviderModifiedAt != nil {
			paidAt = *update.ProviderModifiedAt
		}
		update.PaidAt = &paidAt
	}

	var task *models.RegistrationTask
	err = s.store.Transaction(ctx, func(repos *repository.Repositories) error {
		updated, err := repos.Payment.UpdateStatusIfPending(ctx, n.InvoiceID, update)
		if err != nil {
			return fmt.Errorf("update payment %s: %w", n.InvoiceID, err)
		}
		if !updated {
			return errAlreadyApplied
		}

		reqUpdated, err := repos.SubscriptionRequest.UpdateStatusIfPending(ctx, payment.SubscriptionRequestID, status)
		if err != nil {
			return fmt.Errorf("update subscription request %s: %w", payment.SubscriptionRequestID, err)
		}
		if !reqUpdated {
			log.Warnf("[Billing] subscription request %s was not pending while applying invoice %s", payment.SubscriptionRequestID, n.InvoiceID)
		}

		if status != models.STATUS_COMPLETED {
			return nil
		}
		existing, err := repos.RegistrationTask.GetBySubscriptionRequestID(ctx, payment.SubscriptionRequestID)
		if err == nil {
			task = existing
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("load registration task: %w", err)
		}
		task = &models.RegistrationTask{
			SubscriptionRequestID: payment.SubscriptionRequestID,
			PaymentID:             payment.ID,
			Status:                models.TASK_STATUS_PENDING,
		}
		if err := repos.RegistrationTask.Create(ctx, task); err != nil {
			return fmt.Errorf("create registration task: %w", err)
		}
		return nil
	})
	if errors.Is(err, errAlreadyApplied) {
		s.metrics.RecordWebhookEvent(models.PaymentProviderMonobank, eventType, "duplicate")
		outcome.Duplicate = true
		return outcome, nil
	}
	if err != nil {
		s.metrics.RecordWebhookError(models.PaymentProviderMonobank, "persistence")
		return nil, err
	}

	log.Infof("[Billing] invoice %s: payment %s -> %s", n.InvoiceID, payment.ID, status)
	s.metrics.RecordStatusTransition(models.PaymentProviderMonobank, models.STATUS_PENDING, status)
	s.metrics.RecordWebhookEvent(models.PaymentProviderMonobank, eventType, "processed")

	if task == nil {
		return outcome, nil
	}
	outcome.RegistrationTaskID = task.ID
	if task.Status == models.TASK_STATUS_DONE || task.Status == models.TASK_STATUS_DUPLICATE {
		return outcome, nil
	}

	outcome.RegistrationAttempted = true
	userID, regErr := s.runRegistration(ctx, task.ID, true)
	if regErr != nil {
		outcome.RegistrationErr = regErr
		log.Errorf("[Billing] auto-registration for subscription request %s failed: %v", task.SubscriptionRequestID, regErr)
	}
	outcome.UserID = userID
	return outcome, nil
}

