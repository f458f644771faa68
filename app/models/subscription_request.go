package models

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	PLAN_MINI    = "mini"
	PLAN_MAXI    = "maxi"
	PLAN_PREMIUM = "premium"
)

const (
	PAYMENT_METHOD_MONOBANK      = "monobank"
	PAYMENT_METHOD_BANK_TRANSFER = "bank_transfer"
)

// Request and payment status values. A record only ever moves from pending
// to one of the terminal values.
const (
	STATUS_PENDING   = "pending"
	STATUS_COMPLETED = "completed"
	STATUS_FAILED    = "failed"
	STATUS_EXPIRED   = "expired"
)

// SubscriptionRequest is an application for a book rental plan submitted through
// the public subscription form.
type SubscriptionRequest struct {
	ID            string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Name          string    `gorm:"type:varchar(150);not null" json:"name" validate:"required,min=2,max=150"`
	Email         string    `gorm:"type:varchar(200);not null;index" json:"email" validate:"required,email,max=200"`
	Phone         string    `gorm:"type:varchar(32);not null" json:"phone" validate:"required,min=7,max=32"`
	Plan          string    `gorm:"type:varchar(20);not null" json:"plan" validate:"required,oneof=mini maxi premium"`
	PaymentMethod string    `gorm:"type:varchar(32);not null;default:'monobank'" json:"payment_method" validate:"required,oneof=monobank bank_transfer"`
	Status        string    `gorm:"type:varchar(20);not null;default:'pending';index" json:"status" validate:"oneof=pending completed failed expired"`
	AdminNotes    string    `gorm:"type:text" json:"admin_notes" validate:"max=5000"`
	CreatedAt     time.Time `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// BeforeCreate assigns a uuid when the caller did not set one.
func (r *SubscriptionRequest) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	return nil
}

func (r *SubscriptionRequest) Validate() error {
	v := validator.New()

	return v.Struct(r)
}

// IsTerminal reports whether the request left the pending state.
func (r *SubscriptionRequest) IsTerminal() bool {
	return IsTerminalStatus(r.Status)
}

// IsTerminalStatus reports whether status is one of completed, failed or expired.
func IsTerminalStatus(status string) bool {
	switch status {
	case STATUS_COMPLETED, STATUS_FAILED, STATUS_EXPIRED:
		return true
	default:
		return false
	}
}
