package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/kazka-books/kazka/app/models"
)

// paymentRepository implements the PaymentRepository interface
type paymentRepository struct {
	db *gorm.DB
}

// NewPaymentRepository creates a new payment repository instance
func NewPaymentRepository(db *gorm.DB) PaymentRepository {
	return &paymentRepository{db: db}
}

func (r *paymentRepository) Create(ctx context.Context, payment *models.Payment) error {
	return r.db.WithContext(ctx).Create(payment).Error
}

func (r *paymentRepository) GetByID(ctx context.Context, id string) (*models.Payment, error) {
	var payment models.Payment
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&payment).Error
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *paymentRepository) GetByInvoiceID(ctx context.Context, invoiceID string) (*models.Payment, error) {
	var payment models.Payment
	err := r.db.WithContext(ctx).Where("invoice_id = ?", invoiceID).First(&payment).Error
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *paymentRepository) GetBySubscriptionRequestID(ctx context.Context, requestID string) (*models.Payment, error) {
	var payment models.Payment
	err := r.db.WithContext(ctx).
		Where("subscription_request_id = ?", requestID).
		Order("created_at DESC").
		First(&payment).Error
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *paymentRepository) UpdateStatusIfPending(ctx context.Context, invoiceID string, update PaymentStatusUpdate) (bool, error) {
	updates := map[string]interface{}{
		"status":          update.Status,
		"provider_status": update.ProviderStatus,
	}
	if update.Amount > 0 {
		updates["amount"] = update.Amount
	}
	if update.Currency != "" {
		updates["currency"] = update.Currency
	}
	if update.PaidAt != nil {
		updates["paid_at"] = update.PaidAt
	}
	if update.ProviderModifiedAt != nil {
		updates["provider_modified_at"] = update.ProviderModifiedAt
	}

	tx := r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("invoice_id = ? AND status = ?", invoiceID, models.STATUS_PENDING).
		Updates(updates)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}
