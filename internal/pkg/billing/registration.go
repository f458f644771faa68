package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/kazka-books/kazka/app/models"
	"github.com/kazka-books/kazka/internal/pkg/accounts"
)

// RetryRegistration attempts the registration of a task again. It is called
// by the job queue worker and the admin retry endpoint, which own any further
// retry. The returned task reflects the state after the attempt.
func (s *Service) RetryRegistration(ctx context.Context, taskID uint) (*models.RegistrationTask, error) {
	tasks := s.store.Repositories().RegistrationTask
	task, err := tasks.GetByID(ctx, taskID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRegistrationTaskNotFound
		}
		return nil, err
	}
	if !task.IsRetryable() {
		return task, ErrTaskNotRetryable
	}

	_, regErr := s.runRegistration(ctx, taskID, false)

	refreshed, err := tasks.GetByID(ctx, taskID)
	if err != nil {
		return task, err
	}
	return refreshed, regErr
}

// runRegistration claims the task and provisions the account. A duplicate
// account finishes the task as duplicate; any other failure marks it failed
// and, with scheduleRetry, enqueues a retry while attempts remain.
func (s *Service) runRegistration(ctx context.Context, taskID uint, scheduleRetry bool) (uint, error) {
	repos := s.store.Repositories()

	claimed, err := repos.RegistrationTask.Claim(ctx, taskID)
	if err != nil {
		return 0, fmt.Errorf("claim registration task %d: %w", taskID, err)
	}
	if !claimed {
		s.metrics.RecordRegistration("skipped")
		return 0, ErrTaskNotRetryable
	}

	task, err := repos.RegistrationTask.GetByID(ctx, taskID)
	if err != nil {
		return 0, s.failRegistration(ctx, taskID, scheduleRetry, fmt.Errorf("load registration task: %w", err))
	}
	req, err := repos.SubscriptionRequest.GetByID(ctx, task.SubscriptionRequestID)
	if err != nil {
		return 0, s.failRegistration(ctx, taskID, scheduleRetry, fmt.Errorf("load subscription request %s: %w", task.SubscriptionRequestID, err))
	}

	res, err := s.registrar.RegisterWithTemporaryPassword(ctx, accounts.Registration{
		Email:                 req.Email,
		Name:                  req.Name,
		Phone:                 req.Phone,
		Plan:                  req.Plan,
		PaymentMethod:         req.PaymentMethod,
		SubscriptionRequestID: req.ID,
	})
	if err != nil {
		if errors.Is(err, accounts.ErrDuplicateAccount) {
			log.Warnf("[Billing] subscription request %s: account for %s already exists", req.ID, req.Email)
			if markErr := repos.RegistrationTask.MarkDone(ctx, taskID, models.TASK_STATUS_DUPLICATE, nil); markErr != nil {
				log.Errorf("[Billing] failed to finish registration task %d: %v", taskID, markErr)
			}
			s.metrics.RecordRegistration("duplicate")
			return 0, err
		}
		return 0, s.failRegistration(ctx, taskID, scheduleRetry, err)
	}

	userID := res.User.ID
	if err := repos.RegistrationTask.MarkDone(ctx, taskID, models.TASK_STATUS_DONE, &userID); err != nil {
		log.Errorf("[Billing] account %d created but task %d not finished: %v", userID, taskID, err)
	}
	s.metrics.RecordRegistration("done")
	if s.notifier != nil {
		if err := s.notifier.NotifyAccountCreated(ctx, res.User, res.TemporaryPassword); err != nil {
			log.Warnf("[Billing] welcome mail for %s failed: %v", res.User.Email, err)
		}
	}
	return userID, nil
}

func (s *Service) failRegistration(ctx context.Context, taskID uint, scheduleRetry bool, cause error) error {
	s.metrics.RecordRegistration("failed")
	repos := s.store.Repositories()
	if err := repos.RegistrationTask.MarkFailed(ctx, taskID, cause.Error()); err != nil {
		log.Errorf("[Billing] failed to record registration failure for task %d: %v", taskID, err)
		return cause
	}

	task, err := repos.RegistrationTask.GetByID(ctx, taskID)
	if err != nil || !task.IsRetryable() {
		log.Errorf("[Billing] registration task %d gave up: %v", taskID, cause)
		return cause
	}
	if scheduleRetry && s.enqueuer != nil {
		if err := s.enqueuer.EnqueueRegistration(ctx, taskID); err != nil {
			// the queue sweeper picks the task up from the database later
			log.Warnf("[Billing] could not enqueue retry for task %d: %v", taskID, err)
		}
	}
	return cause
}

// DueRegistrationTasks returns the ids of tasks that should be attempted
// again: unfinished tasks not attempted since staleBefore. Tasks abandoned in
// processing are released to failed first; those out of attempts stay failed
// for an operator and are not returned.
func (s *Service) DueRegistrationTasks(ctx context.Context, staleBefore time.Time, limit int) ([]uint, error) {
	repo := s.store.Repositories().RegistrationTask
	tasks, err := repo.ListRetryable(ctx, staleBefore, limit)
	if err != nil {
		return nil, err
	}
	ids := make([]uint, 0, len(tasks))
	for _, t := range tasks {
		if t.Status == models.TASK_STATUS_PROCESSING {
			log.Warnf("[Billing] registration task %d abandoned while processing, releasing", t.ID)
			if err := repo.MarkFailed(ctx, t.ID, "abandoned while processing"); err != nil {
				return ids, err
			}
			t.Status = models.TASK_STATUS_FAILED
		}
		if !t.IsRetryable() {
			log.Errorf("[Billing] registration task %d out of attempts after %d tries", t.ID, t.Attempts)
			continue
		}
		ids = append(ids, t.ID)
	}
	return ids, nil
}
