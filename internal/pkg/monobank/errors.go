package monobank

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConfigured is returned when the merchant or personal token is missing.
	ErrNotConfigured = errors.New("monobank client not configured")

	// ErrProviderAPI is the sentinel wrapped by every *ProviderError.
	ErrProviderAPI = errors.New("monobank API error")

	// ErrInvalidNotification is returned when a webhook body does not match the
	// expected shape for its type.
	ErrInvalidNotification = errors.New("invalid monobank notification")

	// ErrUnsupportedNotification is returned for well formed notifications of a
	// type this service does not process.
	ErrUnsupportedNotification = errors.New("unsupported monobank notification type")

	// ErrInvalidStatementRange is returned when a statement window is empty or
	// longer than the provider allows.
	ErrInvalidStatementRange = errors.New("invalid statement range")
)

// ProviderError carries the raw error returned by the monobank API.
type ProviderError struct {
	Endpoint   string
	StatusCode int
	Code       string
	Text       string
}

func (e *ProviderError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("monobank %s failed: status=%d code=%s text=%s", e.Endpoint, e.StatusCode, e.Code, e.Text)
	}
	return fmt.Sprintf("monobank %s failed: status=%d body=%s", e.Endpoint, e.StatusCode, e.Text)
}

func (e *ProviderError) Unwrap() error {
	return ErrProviderAPI
}
