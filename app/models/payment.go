package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const PaymentProviderMonobank = "monobank"

// Payment mirrors a provider invoice created for a subscription request.
type Payment struct {
	ID                    string     `gorm:"primaryKey;type:varchar(36)" json:"id"`
	SubscriptionRequestID string     `gorm:"type:varchar(36);not null;index" json:"subscription_request_id"`
	Provider              string     `gorm:"type:varchar(20);not null;default:'monobank'" json:"provider"`
	InvoiceID             string     `gorm:"type:varchar(191);not null;uniqueIndex" json:"invoice_id"`
	Reference             string     `gorm:"type:varchar(191);not null;uniqueIndex" json:"reference"`
	Amount                int64      `gorm:"not null" json:"amount"`
	Currency              string     `gorm:"type:varchar(3);not null;default:'UAH'" json:"currency"`
	Status                string     `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	ProviderStatus        string     `gorm:"type:varchar(32);default:''" json:"provider_status"`
	PageURL               string     `gorm:"type:varchar(500);default:''" json:"page_url"`
	PaidAt                *time.Time `gorm:"type:timestamp;default:null" json:"paid_at,omitempty"`
	ProviderModifiedAt    *time.Time `gorm:"type:timestamp;default:null" json:"provider_modified_at,omitempty"`
	CreatedAt             time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt             time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (p *Payment) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	return nil
}

// IsPending reports whether the payment still waits for a terminal provider status.
func (p *Payment) IsPending() bool {
	return p.Status == STATUS_PENDING
}
