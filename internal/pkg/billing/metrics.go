package billing

import "time"

// Metrics records billing activity. A nil Metrics passed to NewService is
// replaced by NoopMetrics.
type Metrics interface {
	// status: "processed", "ignored", "duplicate" or "error"
	RecordWebhookEvent(provider, eventType, status string)
	RecordWebhookProcessingDuration(provider, eventType string, duration time.Duration)
	// errorType: e.g. "invalid_signature", "invalid_payload", "payment_not_found"
	RecordWebhookError(provider, errorType string)
	RecordStatusTransition(provider, from, to string)
	// status: "done", "duplicate", "failed" or "skipped"
	RecordRegistration(status string)
	RecordAPICall(provider, endpoint, status string)
	RecordAPICallDuration(provider, endpoint string, duration time.Duration)
}

// NoopMetrics is a no-op implementation of the Metrics interface.
type NoopMetrics struct{}

func (NoopMetrics) RecordWebhookEvent(_, _, _ string)                            {}
func (NoopMetrics) RecordWebhookProcessingDuration(_, _ string, _ time.Duration) {}
func (NoopMetrics) RecordWebhookError(_, _ string)                               {}
func (NoopMetrics) RecordStatusTransition(_, _, _ string)                        {}
func (NoopMetrics) RecordRegistration(_ string)                                  {}
func (NoopMetrics) RecordAPICall(_, _, _ string)                                 {}
func (NoopMetrics) RecordAPICallDuration(_, _ string, _ time.Duration)           {}
