package repository

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/kazka-books/kazka/app/models"
)

// subscriptionRequestRepository implements the SubscriptionRequestRepository interface
type subscriptionRequestRepository struct {
	db *gorm.DB
}

// NewSubscriptionRequestRepository creates a new subscription request repository instance
func NewSubscriptionRequestRepository(db *gorm.DB) SubscriptionRequestRepository {
	return &subscriptionRequestRepository{db: db}
}

func (r *subscriptionRequestRepository) Create(ctx context.Context, req *models.SubscriptionRequest) error {
	return r.db.WithContext(ctx).Create(req).Error
}

func (r *subscriptionRequestRepository) GetByID(ctx context.Context, id string) (*models.SubscriptionRequest, error) {
	var req models.SubscriptionRequest
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&req).Error
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *subscriptionRequestRepository) UpdateStatusIfPending(ctx context.Context, id, status string) (bool, error) {
	tx := r.db.WithContext(ctx).
		Model(&models.SubscriptionRequest{}).
		Where("id = ? AND status = ?", id, models.STATUS_PENDING).
		Update("status", status)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func (r *subscriptionRequestRepository) UpdateNotes(ctx context.Context, id, notes string) error {
	tx := r.db.WithContext(ctx).
		Model(&models.SubscriptionRequest{}).
		Where("id = ?", id).
		Update("admin_notes", notes)
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *subscriptionRequestRepository) List(ctx context.Context, filter SubscriptionRequestFilter) ([]models.SubscriptionRequest, error) {
	var reqs []models.SubscriptionRequest
	query := r.filtered(ctx, filter).Order("created_at DESC")
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}
	err := query.Find(&reqs).Error
	return reqs, err
}

func (r *subscriptionRequestRepository) Count(ctx context.Context, filter SubscriptionRequestFilter) (int64, error) {
	var count int64
	err := r.filtered(ctx, filter).Count(&count).Error
	return count, err
}

func (r *subscriptionRequestRepository) filtered(ctx context.Context, filter SubscriptionRequestFilter) *gorm.DB {
	query := r.db.WithContext(ctx).Model(&models.SubscriptionRequest{})
	if status := strings.TrimSpace(filter.Status); status != "" {
		query = query.Where("status = ?", status)
	}
	if email := strings.TrimSpace(filter.Email); email != "" {
		query = query.Where("LOWER(email) = ?", strings.ToLower(email))
	}
	return query
}
