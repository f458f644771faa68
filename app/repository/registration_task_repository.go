package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/kazka-books/kazka/app/models"
)

// registrationTaskRepository implements the RegistrationTaskRepository interface
type registrationTaskRepository struct {
	db *gorm.DB
}

// NewRegistrationTaskRepository creates a new registration task repository instance
func NewRegistrationTaskRepository(db *gorm.DB) RegistrationTaskRepository {
	return &registrationTaskRepository{db: db}
}

func (r *registrationTaskRepository) Create(ctx context.Context, task *models.RegistrationTask) error {
	return r.db.WithContext(ctx).Create(task).Error
}

func (r *registrationTaskRepository) GetByID(ctx context.Context, id uint) (*models.RegistrationTask, error) {
	var task models.RegistrationTask
	err := r.db.WithContext(ctx).First(&task, id).Error
	if err != nil {
		return nil, err
	}
	return &task, nil
}

func (r *registrationTaskRepository) GetBySubscriptionRequestID(ctx context.Context, requestID string) (*models.RegistrationTask, error) {
	var task models.RegistrationTask
	err := r.db.WithContext(ctx).Where("subscription_request_id = ?", requestID).First(&task).Error
	if err != nil {
		return nil, err
	}
	return &task, nil
}

func (r *registrationTaskRepository) Claim(ctx context.Context, id uint) (bool, error) {
	now := time.Now()
	tx := r.db.WithContext(ctx).
		Model(&models.RegistrationTask{}).
		Where("id = ? AND status IN ? AND attempts < ?", id,
			[]string{models.TASK_STATUS_PENDING, models.TASK_STATUS_FAILED}, models.MaxRegistrationAttempts).
		Updates(map[string]interface{}{
			"status":          models.TASK_STATUS_PROCESSING,
			"attempts":        gorm.Expr("attempts + 1"),
			"last_attempt_at": &now,
		})
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func (r *registrationTaskRepository) MarkDone(ctx context.Context, id uint, status string, userID *uint) error {
	now := time.Now()
	updates := map[string]interface{}{
		"status":       status,
		"completed_at": &now,
		"last_error":   "",
	}
	if userID != nil {
		updates["user_id"] = *userID
	}
	return r.db.WithContext(ctx).Model(&models.RegistrationTask{}).Where("id = ?", id).Updates(updates).Error
}

func (r *registrationTaskRepository) MarkFailed(ctx context.Context, id uint, lastError string) error {
	return r.db.WithContext(ctx).
		Model(&models.RegistrationTask{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     models.TASK_STATUS_FAILED,
			"last_error": lastError,
		}).Error
}

func (r *registrationTaskRepository) ListRetryable(ctx context.Context, staleBefore time.Time, limit int) ([]models.RegistrationTask, error) {
	var tasks []models.RegistrationTask
	// abandoned processing rows are returned whatever their attempt count
	query := r.db.WithContext(ctx).
		Where(
			r.db.Where("status IN ? AND attempts < ? AND (last_attempt_at IS NULL OR last_attempt_at < ?)",
				[]string{models.TASK_STATUS_PENDING, models.TASK_STATUS_FAILED}, models.MaxRegistrationAttempts, staleBefore).
				Or("status = ? AND last_attempt_at < ?", models.TASK_STATUS_PROCESSING, staleBefore),
		).
		Order("id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&tasks).Error
	return tasks, err
}
