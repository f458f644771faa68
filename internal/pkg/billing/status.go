package billing

import (
	"strings"

	"github.com/kazka-books/kazka/app/models"
	"github.com/kazka-books/kazka/internal/pkg/monobank"
)

// MapInvoiceStatus maps a provider invoice status to the local payment and
// subscription request status. ok is false for non-terminal statuses, which
// are acknowledged without any write.
func MapInvoiceStatus(providerStatus string) (status string, ok bool) {
	switch strings.ToLower(strings.TrimSpace(providerStatus)) {
	case monobank.InvoiceStatusSuccess:
		return models.STATUS_COMPLETED, true
	case monobank.InvoiceStatusFailure:
		return models.STATUS_FAILED, true
	case monobank.InvoiceStatusCreated, monobank.InvoiceStatusProcessing, monobank.InvoiceStatusHold:
		return "", false
	default:
		// expired, reversed and anything newer the provider introduces
		return models.STATUS_EXPIRED, true
	}
}

// webhookEventID derives the dedupe key of a delivery. The provider sends no
// event id; one status change of one invoice is one event.
func webhookEventID(n *monobank.InvoicePaymentStatusChanged) string {
	id := n.InvoiceID + ":" + strings.ToLower(n.Status)
	if !n.ModifiedDate.IsZero() {
		id += ":" + n.ModifiedDate.UTC().Format("20060102T150405.000Z")
	}
	return id
}
