package models

import "time"

const (
	TASK_STATUS_PENDING    = "pending"
	TASK_STATUS_PROCESSING = "processing"
	TASK_STATUS_DONE       = "done"
	TASK_STATUS_FAILED     = "failed"
	TASK_STATUS_DUPLICATE  = "duplicate"
)

// MaxRegistrationAttempts bounds automatic retries of a registration task.
const MaxRegistrationAttempts = 5

// RegistrationTask records that an account has to be provisioned for a
// completed subscription request. It is written in the same transaction as
// the status change and stays until provisioning succeeds.
type RegistrationTask struct {
	ID                    uint       `gorm:"primaryKey" json:"id"`
	SubscriptionRequestID string     `gorm:"type:varchar(36);not null;uniqueIndex" json:"subscription_request_id"`
	PaymentID             string     `gorm:"type:varchar(36);not null;index" json:"payment_id"`
	Status                string     `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	Attempts              int        `gorm:"not null;default:0" json:"attempts"`
	LastError             string     `gorm:"type:text" json:"last_error"`
	UserID                *uint      `gorm:"default:null" json:"user_id,omitempty"`
	LastAttemptAt         *time.Time `gorm:"type:timestamp;default:null" json:"last_attempt_at,omitempty"`
	CompletedAt           *time.Time `gorm:"type:timestamp;default:null" json:"completed_at,omitempty"`
	CreatedAt             time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt             time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsRetryable reports whether a failed or pending task may be attempted again.
func (t *RegistrationTask) IsRetryable() bool {
	switch t.Status {
	case TASK_STATUS_PENDING, TASK_STATUS_FAILED:
		return t.Attempts < MaxRegistrationAttempts
	default:
		return false
	}
}
