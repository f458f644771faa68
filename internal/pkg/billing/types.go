package billing

import (
	"time"

	"github.com/kazka-books/kazka/app/models"
)

// SubscriptionInput is the public subscription form.
type SubscriptionInput struct {
	Name          string `json:"name"`
	Email         string `json:"email"`
	Phone         string `json:"phone"`
	Plan          string `json:"plan"`
	PaymentMethod string `json:"paymentMethod"`
}

// SubscriptionResult is returned after a subscription request was stored. The
// invoice fields are empty for bank transfers.
type SubscriptionResult struct {
	SubscriptionRequestID string `json:"subscriptionRequestId"`
	InvoiceID             string `json:"invoiceId,omitempty"`
	PageURL               string `json:"pageUrl,omitempty"`
	Amount                int64  `json:"amount"`
	Currency              string `json:"currency"`
}

// WebhookEventInput is the normalized input for webhook event persistence.
type WebhookEventInput struct {
	Provider        string
	ProviderEventID string
	EventType       string
	InvoiceID       string
	PayloadJSON     string
	SignatureValid  bool
}

// Outcome describes what applying a notification did.
type Outcome struct {
	InvoiceID string
	// Status is the mapped local status; empty when Ignored.
	Status string
	// Ignored is set for non-terminal provider statuses.
	Ignored bool
	// Duplicate is set when the payment had already left pending.
	Duplicate bool

	RegistrationTaskID    uint
	RegistrationAttempted bool
	RegistrationErr       error
	UserID                uint
}

// PaymentStatusView combines the local payment with the provider view.
type PaymentStatusView struct {
	InvoiceID      string     `json:"invoiceId"`
	Status         string     `json:"status"`
	ProviderStatus string     `json:"providerStatus"`
	Amount         int64      `json:"amount"`
	Currency       string     `json:"currency"`
	PaidAt         *time.Time `json:"paidAt,omitempty"`
	// LiveStatus is the status reported by the provider right now, empty when
	// the provider could not be reached.
	LiveStatus string `json:"liveStatus,omitempty"`
}

func newPaymentStatusView(p *models.Payment) *PaymentStatusView {
	return &PaymentStatusView{
		InvoiceID:      p.InvoiceID,
		Status:         p.Status,
		ProviderStatus: p.ProviderStatus,
		Amount:         p.Amount,
		Currency:       p.Currency,
		PaidAt:         p.PaidAt,
	}
}
