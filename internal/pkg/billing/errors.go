package billing

import "errors"

var (
	// ErrPaymentNotFound is returned when a notification references an invoice
	// without a local payment. The webhook answers 500 so the provider redelivers.
	ErrPaymentNotFound = errors.New("payment not found for invoice")

	// ErrSubscriptionRequestNotFound is returned for unknown subscription request ids.
	ErrSubscriptionRequestNotFound = errors.New("subscription request not found")

	// ErrRegistrationTaskNotFound is returned for unknown registration task ids.
	ErrRegistrationTaskNotFound = errors.New("registration task not found")

	// ErrTaskNotRetryable is returned when a registration task is finished, out
	// of attempts or currently held by another worker.
	ErrTaskNotRetryable = errors.New("registration task is not retryable")

	// ErrInvalidSubscription wraps validation failures of the subscription form.
	ErrInvalidSubscription = errors.New("invalid subscription request")

	// ErrGatewayUnavailable is returned when the payment provider rejected or
	// failed an invoice creation.
	ErrGatewayUnavailable = errors.New("payment provider unavailable")

	// ErrArchiveDisabled is returned by exports when no archive is configured.
	ErrArchiveDisabled = errors.New("statement archive is not configured")

	// errAlreadyApplied aborts the status transaction when a concurrent delivery
	// moved the payment out of pending first.
	errAlreadyApplied = errors.New("invoice status already applied")
)
