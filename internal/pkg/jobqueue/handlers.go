package jobqueue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/kazka-books/kazka/app/models"
	"github.com/kazka-books/kazka/internal/pkg/accounts"
	"github.com/kazka-books/kazka/internal/pkg/billing"
)

// RegistrationRetrier attempts a registration task.
type RegistrationRetrier interface {
	RetryRegistration(ctx context.Context, taskID uint) (*models.RegistrationTask, error)
}

// StatementExporter uploads a statement range.
type StatementExporter interface {
	ExportStatement(ctx context.Context, from, to time.Time) (*billing.StatementExport, error)
}

// RegistrationHandler runs registration jobs. Tasks that are finished, held
// by another worker or gone complete the job; other failures are retried by
// the queue.
func RegistrationHandler(r RegistrationRetrier) Handler {
	return func(ctx context.Context, job *Job) error {
		payload, err := RegistrationJobPayloadFromMap(job.Payload)
		if err != nil || payload.TaskID == 0 {
			return fmt.Errorf("%w: invalid registration payload", ErrDiscard)
		}

		task, err := r.RetryRegistration(ctx, payload.TaskID)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, billing.ErrTaskNotRetryable),
			errors.Is(err, billing.ErrRegistrationTaskNotFound),
			errors.Is(err, accounts.ErrDuplicateAccount):
			log.Infof("[JobQueue] Registration task %d needs no further attempt: %v", payload.TaskID, err)
			return nil
		}
		if task != nil && !task.IsRetryable() {
			return fmt.Errorf("%w: registration task %d out of attempts: %v", ErrDiscard, payload.TaskID, err)
		}
		return err
	}
}

// StatementExportHandler runs statement export jobs.
func StatementExportHandler(e StatementExporter) Handler {
	return func(ctx context.Context, job *Job) error {
		payload, err := StatementExportJobPayloadFromMap(job.Payload)
		if err != nil {
			return fmt.Errorf("%w: invalid statement payload", ErrDiscard)
		}
		export, err := e.ExportStatement(ctx, payload.From, payload.To)
		if errors.Is(err, billing.ErrArchiveDisabled) {
			return fmt.Errorf("%w: %v", ErrDiscard, err)
		}
		if err != nil {
			return err
		}
		job.Payload["location"] = export.Location
		return nil
	}
}
