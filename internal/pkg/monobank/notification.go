package monobank

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
)

// NotificationInvoicePaymentStatusChanged is the only notification type processed.
const NotificationInvoicePaymentStatusChanged = "InvoicePaymentStatusChanged"

// webhookSchemaName is the component schema a notification must satisfy.
const webhookSchemaName = "MonobankWebhook"

// Invoice statuses reported by the provider.
const (
	InvoiceStatusCreated    = "created"
	InvoiceStatusProcessing = "processing"
	InvoiceStatusHold       = "hold"
	InvoiceStatusSuccess    = "success"
	InvoiceStatusFailure    = "failure"
	InvoiceStatusReversed   = "reversed"
	InvoiceStatusExpired    = "expired"
)

// Notification is the tagged envelope of every webhook delivery.
type Notification struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// InvoicePaymentStatusChanged is the payload of a status change notification.
type InvoicePaymentStatusChanged struct {
	InvoiceID     string    `json:"invoiceId"`
	Status        string    `json:"status"`
	Amount        int64     `json:"amount"`
	Ccy           int       `json:"ccy"`
	FinalAmount   int64     `json:"finalAmount,omitempty"`
	FailureReason string    `json:"failureReason,omitempty"`
	CreatedDate   time.Time `json:"createdDate"`
	ModifiedDate  time.Time `json:"modifiedDate"`
	Reference     string    `json:"reference"`
}

// Currency returns the ISO 4217 alpha code of the notification amount.
func (n *InvoicePaymentStatusChanged) Currency() string {
	return CurrencyCode(n.Ccy)
}

// NotificationParser decodes webhook bodies after checking them against the
// MonobankWebhook schema of an OpenAPI document.
type NotificationParser struct {
	schema *openapi3.Schema
}

// NewNotificationParser loads the OpenAPI document and resolves the webhook schema.
func NewNotificationParser(document []byte) (*NotificationParser, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(document)
	if err != nil {
		return nil, fmt.Errorf("load openapi document: %w", err)
	}
	if doc.Components == nil {
		return nil, fmt.Errorf("schema %s not found", webhookSchemaName)
	}
	ref, ok := doc.Components.Schemas[webhookSchemaName]
	if !ok || ref == nil || ref.Value == nil {
		return nil, fmt.Errorf("schema %s not found", webhookSchemaName)
	}
	return &NotificationParser{schema: ref.Value}, nil
}

// Parse decodes a webhook body. Bodies of any other type than
// InvoicePaymentStatusChanged return ErrUnsupportedNotification; bodies that do
// not satisfy the schema return ErrInvalidNotification.
func (p *NotificationParser) Parse(raw []byte) (*InvoicePaymentStatusChanged, error) {
	var envelope Notification
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidNotification, err)
	}
	if envelope.Type != NotificationInvoicePaymentStatusChanged {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedNotification, envelope.Type)
	}

	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidNotification, err)
	}
	if err := p.schema.VisitJSON(generic); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidNotification, schemaErrorMessage(err))
	}

	var out InvoicePaymentStatusChanged
	if err := json.Unmarshal(envelope.Data, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidNotification, err)
	}
	out.InvoiceID = strings.TrimSpace(out.InvoiceID)
	if out.InvoiceID == "" {
		return nil, fmt.Errorf("%w: data.invoiceId is required", ErrInvalidNotification)
	}
	return &out, nil
}

func schemaErrorMessage(err error) string {
	var schemaErr *openapi3.SchemaError
	if errors.As(err, &schemaErr) {
		path := strings.Join(schemaErr.JSONPointer(), ".")
		if path == "" {
			return schemaErr.Reason
		}
		return path + ": " + schemaErr.Reason
	}
	return err.Error()
}
