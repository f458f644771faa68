package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/kazka-books/kazka/app/models"
)

// SubscriptionRequestRepository defines the database operations on subscription requests
type SubscriptionRequestRepository interface {
	Create(ctx context.Context, req *models.SubscriptionRequest) error
	GetByID(ctx context.Context, id string) (*models.SubscriptionRequest, error)
	// UpdateStatusIfPending moves a pending request to status. It reports false
	// when the request was not pending anymore.
	UpdateStatusIfPending(ctx context.Context, id, status string) (bool, error)
	UpdateNotes(ctx context.Context, id, notes string) error
	List(ctx context.Context, filter SubscriptionRequestFilter) ([]models.SubscriptionRequest, error)
	Count(ctx context.Context, filter SubscriptionRequestFilter) (int64, error)
}

// PaymentRepository defines the database operations on payments
type PaymentRepository interface {
	Create(ctx context.Context, payment *models.Payment) error
	GetByID(ctx context.Context, id string) (*models.Payment, error)
	GetByInvoiceID(ctx context.Context, invoiceID string) (*models.Payment, error)
	GetBySubscriptionRequestID(ctx context.Context, requestID string) (*models.Payment, error)
	// UpdateStatusIfPending applies update to a pending payment. It reports
	// false when the payment was not pending anymore.
	UpdateStatusIfPending(ctx context.Context, invoiceID string, update PaymentStatusUpdate) (bool, error)
}

// UserRepository defines the database operations on users and profiles
type UserRepository interface {
	GetByID(ctx context.Context, id uint) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	// CreateWithProfile inserts the user and its profile atomically.
	CreateWithProfile(ctx context.Context, user *models.User) error
}

// RegistrationTaskRepository defines the database operations on registration tasks
type RegistrationTaskRepository interface {
	Create(ctx context.Context, task *models.RegistrationTask) error
	GetByID(ctx context.Context, id uint) (*models.RegistrationTask, error)
	GetBySubscriptionRequestID(ctx context.Context, requestID string) (*models.RegistrationTask, error)
	// Claim marks a retryable task as processing and counts the attempt. It
	// reports false when another worker holds the task or it is finished.
	Claim(ctx context.Context, id uint) (bool, error)
	MarkDone(ctx context.Context, id uint, status string, userID *uint) error
	MarkFailed(ctx context.Context, id uint, lastError string) error
	// ListRetryable returns tasks that should be attempted again: pending or
	// failed tasks with attempts left, and processing tasks abandoned before
	// staleBefore regardless of their attempts.
	ListRetryable(ctx context.Context, staleBefore time.Time, limit int) ([]models.RegistrationTask, error)
}

// WebhookEventRepository defines the database operations on the webhook delivery log
type WebhookEventRepository interface {
	CreateIfNotExists(ctx context.Context, event *models.PaymentWebhookEvent) (bool, *models.PaymentWebhookEvent, error)
	MarkProcessed(ctx context.Context, id uint, processingError string) error
}

// PaymentStatusUpdate carries the fields written when a provider reports a
// terminal invoice status.
type PaymentStatusUpdate struct {
	Status             string
	ProviderStatus     string
	Amount             int64
	Currency           string
	PaidAt             *time.Time
	ProviderModifiedAt *time.Time
}

// SubscriptionRequestFilter narrows admin listings.
type SubscriptionRequestFilter struct {
	Status string
	Email  string
	Offset int
	Limit  int
}

// Repositories struct holds all repository instances
type Repositories struct {
	SubscriptionRequest SubscriptionRequestRepository
	Payment             PaymentRepository
	User                UserRepository
	RegistrationTask    RegistrationTaskRepository
	WebhookEvent        WebhookEventRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		SubscriptionRequest: NewSubscriptionRequestRepository(db),
		Payment:             NewPaymentRepository(db),
		User:                NewUserRepository(db),
		RegistrationTask:    NewRegistrationTaskRepository(db),
		WebhookEvent:        NewWebhookEventRepository(db),
	}
}
