package billing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/kazka-books/kazka/app/models"
	"github.com/kazka-books/kazka/app/repository"
	"github.com/kazka-books/kazka/internal/pkg/accounts"
	"github.com/kazka-books/kazka/internal/pkg/monobank"
	"github.com/kazka-books/kazka/internal/pkg/plans"
)

// Gateway is the subset of the monobank client used by the service.
type Gateway interface {
	CreatePayment(ctx context.Context, amount int64, description, reference, redirectURL, webhookURL string, opts *monobank.InvoiceOptions) (*monobank.Invoice, error)
	InvoiceStatus(ctx context.Context, invoiceID string) (*monobank.InvoiceStatus, error)
	GetStatement(ctx context.Context, accountID string, from, to time.Time) ([]monobank.Transaction, error)
}

// Registrar provisions the account of a paid subscription request.
type Registrar interface {
	RegisterWithTemporaryPassword(ctx context.Context, in accounts.Registration) (*accounts.RegistrationResult, error)
}

// Enqueuer schedules a background retry of a registration task.
type Enqueuer interface {
	EnqueueRegistration(ctx context.Context, taskID uint) error
}

// Notifier sends the transactional mails of the checkout.
type Notifier interface {
	// NotifySubscriptionRequest tells the shop owner about a new request.
	NotifySubscriptionRequest(ctx context.Context, req *models.SubscriptionRequest, payment *models.Payment) error
	// NotifyAccountCreated sends the subscriber the login and temporary password.
	NotifyAccountCreated(ctx context.Context, user *models.User, temporaryPassword string) error
}

// Options configures a Service. Store, Gateway and Registrar are required.
type Options struct {
	Store     repository.Store
	Gateway   Gateway
	Registrar Registrar
	Enqueuer  Enqueuer
	Notifier  Notifier
	Archiver  Archiver
	Metrics   Metrics

	RedirectURL      string
	WebhookURL       string
	InvoiceValidity  time.Duration
	StatementAccount string
}

// Service implements the subscription checkout and the payment status flow.
type Service struct {
	store     repository.Store
	gateway   Gateway
	registrar Registrar
	enqueuer  Enqueuer
	notifier  Notifier
	archiver  Archiver
	metrics   Metrics

	redirectURL      string
	webhookURL       string
	invoiceValidity  time.Duration
	statementAccount string

	now func() time.Time
}

// NewService creates a billing service from injected collaborators.
func NewService(opts Options) *Service {
	m := opts.Metrics
	if m == nil {
		m = NoopMetrics{}
	}
	return &Service{
		store:            opts.Store,
		gateway:          opts.Gateway,
		registrar:        opts.Registrar,
		enqueuer:         opts.Enqueuer,
		notifier:         opts.Notifier,
		archiver:         opts.Archiver,
		metrics:          m,
		redirectURL:      opts.RedirectURL,
		webhookURL:       opts.WebhookURL,
		invoiceValidity:  opts.InvoiceValidity,
		statementAccount: opts.StatementAccount,
		now:              time.Now,
	}
}

// CreateSubscription stores a subscription request. For monobank payments it
// creates the provider invoice first and stores the request together with a
// pending payment, so a failed invoice leaves nothing behind.
func (s *Service) CreateSubscription(ctx context.Context, in SubscriptionInput) (*SubscriptionResult, error) {
	plan, ok := plans.Parse(in.Plan)
	if !ok {
		return nil, fmt.Errorf("%w: unknown plan %q", ErrInvalidSubscription, in.Plan)
	}
	method := strings.ToLower(strings.TrimSpace(in.PaymentMethod))
	if method == "" {
		method = models.PAYMENT_METHOD_MONOBANK
	}

	req := &models.SubscriptionRequest{
		ID:            uuid.New().String(),
		Name:          strings.TrimSpace(in.Name),
		Email:         strings.ToLower(strings.TrimSpace(in.Email)),
		Phone:         strings.TrimSpace(in.Phone),
		Plan:          string(plan),
		PaymentMethod: method,
		Status:        models.STATUS_PENDING,
	}
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSubscription, err)
	}

	amount := plans.Price(plan)
	result := &SubscriptionResult{
		SubscriptionRequestID: req.ID,
		Amount:                amount,
		Currency:              monobank.CurrencyCode(monobank.CcyUAH),
	}

	var payment *models.Payment
	if method == models.PAYMENT_METHOD_MONOBANK {
		reference := "sub_" + req.ID
		started := s.now()
		invoice, err := s.gateway.CreatePayment(ctx, amount, plans.Title(plan), reference, s.redirectURL, s.webhookURL,
			&monobank.InvoiceOptions{
				Ccy:            monobank.CcyUAH,
				Validity:       s.invoiceValidity,
				Comment:        fmt.Sprintf("%s, %d books per month", plans.Title(plan), plans.BooksPerMonth(plan)),
				CustomerEmails: []string{req.Email},
			})
		s.metrics.RecordAPICallDuration(models.PaymentProviderMonobank, "invoice_create", s.now().Sub(started))
		if err != nil {
			s.metrics.RecordAPICall(models.PaymentProviderMonobank, "invoice_create", "error")
			log.Errorf("[Billing] invoice creation failed for %s: %v", req.Email, err)
			return nil, fmt.Errorf("%w: %w", ErrGatewayUnavailable, err)
		}
		s.metrics.RecordAPICall(models.PaymentProviderMonobank, "invoice_create", "ok")

		payment = &models.Payment{
			SubscriptionRequestID: req.ID,
			Provider:              models.PaymentProviderMonobank,
			InvoiceID:             invoice.InvoiceID,
			Reference:             reference,
			Amount:                amount,
			Currency:              result.Currency,
			Status:                models.STATUS_PENDING,
			PageURL:               invoice.PageURL,
		}
		result.InvoiceID = invoice.InvoiceID
		result.PageURL = invoice.PageURL
	}

	err := s.store.Transaction(ctx, func(repos *repository.Repositories) error {
		if err := repos.SubscriptionRequest.Create(ctx, req); err != nil {
			return fmt.Errorf("create subscription request: %w", err)
		}
		if payment != nil {
			if err := repos.Payment.Create(ctx, payment); err != nil {
				return fmt.Errorf("create payment: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Infof("[Billing] subscription request %s created (plan=%s, method=%s)", req.ID, req.Plan, req.PaymentMethod)
	if s.notifier != nil {
		if err := s.notifier.NotifySubscriptionRequest(ctx, req, payment); err != nil {
			log.Warnf("[Billing] admin notification for %s failed: %v", req.ID, err)
		}
	}
	return result, nil
}

// PaymentStatus returns the local payment state together with the status the
// provider reports right now. Provider errors only leave LiveStatus empty.
func (s *Service) PaymentStatus(ctx context.Context, invoiceID string) (*PaymentStatusView, error) {
	id := strings.TrimSpace(invoiceID)
	if id == "" {
		return nil, ErrPaymentNotFound
	}
	payment, err := s.store.Repositories().Payment.GetByInvoiceID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}

	view := newPaymentStatusView(payment)
	live, err := s.gateway.InvoiceStatus(ctx, id)
	if err != nil {
		s.metrics.RecordAPICall(models.PaymentProviderMonobank, "invoice_status", "error")
		log.Warnf("[Billing] live status lookup for %s failed: %v", id, err)
		return view, nil
	}
	s.metrics.RecordAPICall(models.PaymentProviderMonobank, "invoice_status", "ok")
	view.LiveStatus = live.Status
	return view, nil
}

// Statement returns the reconciliation statement of the configured account.
func (s *Service) Statement(ctx context.Context, from, to time.Time) ([]monobank.Transaction, error) {
	txs, err := s.gateway.GetStatement(ctx, s.statementAccount, from, to)
	if err != nil {
		s.metrics.RecordAPICall(models.PaymentProviderMonobank, "statement", "error")
		return nil, err
	}
	s.metrics.RecordAPICall(models.PaymentProviderMonobank, "statement", "ok")
	return txs, nil
}

// ListSubscriptionRequests returns one page of subscription requests and the
// total matching the filter.
func (s *Service) ListSubscriptionRequests(ctx context.Context, filter repository.SubscriptionRequestFilter) ([]models.SubscriptionRequest, int64, error) {
	repos := s.store.Repositories()
	total, err := repos.SubscriptionRequest.Count(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	items, err := repos.SubscriptionRequest.List(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// UpdateAdminNotes replaces the admin notes of a subscription request.
func (s *Service) UpdateAdminNotes(ctx context.Context, id, notes string) error {
	if len(notes) > 5000 {
		return fmt.Errorf("%w: notes longer than 5000 characters", ErrInvalidSubscription)
	}
	err := s.store.Repositories().SubscriptionRequest.UpdateNotes(ctx, strings.TrimSpace(id), notes)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrSubscriptionRequestNotFound
	}
	return err
}

// RecordWebhookEvent persists webhook payloads idempotently.
func (s *Service) RecordWebhookEvent(ctx context.Context, in WebhookEventInput) (bool, *models.PaymentWebhookEvent, error) {
	provider := strings.ToLower(strings.TrimSpace(in.Provider))
	if provider == "" {
		return false, nil, errors.New("provider is required")
	}
	eventID := strings.TrimSpace(in.ProviderEventID)
	if eventID == "" {
		sum := sha256.Sum256([]byte(in.PayloadJSON))
		eventID = "hash:" + hex.EncodeToString(sum[:])
	}

	event := &models.PaymentWebhookEvent{
		Provider:        provider,
		ProviderEventID: eventID,
		EventType:       strings.TrimSpace(in.EventType),
		InvoiceID:       strings.TrimSpace(in.InvoiceID),
		PayloadJSON:     in.PayloadJSON,
		SignatureValid:  in.SignatureValid,
	}
	return s.store.Repositories().WebhookEvent.CreateIfNotExists(ctx, event)
}

// MarkWebhookProcessed marks an event as processed and stores an optional error.
func (s *Service) MarkWebhookProcessed(ctx context.Context, webhookEventID uint, processingErr error) error {
	if webhookEventID == 0 {
		return errors.New("webhook_event_id is required")
	}
	errMsg := ""
	if processingErr != nil {
		errMsg = processingErr.Error()
	}
	return s.store.Repositories().WebhookEvent.MarkProcessed(ctx, webhookEventID, errMsg)
}
