package controllers

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"

	"github.com/kazka-books/kazka/app/models"
	"github.com/kazka-books/kazka/app/repository"
	"github.com/kazka-books/kazka/internal/pkg/billing"
	"github.com/kazka-books/kazka/internal/pkg/jobqueue"
	"github.com/kazka-books/kazka/internal/pkg/monobank"
	"github.com/kazka-books/kazka/internal/pkg/statistics"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// AdminService is the part of the billing service used by the admin API.
type AdminService interface {
	ListSubscriptionRequests(ctx context.Context, filter repository.SubscriptionRequestFilter) ([]models.SubscriptionRequest, int64, error)
	UpdateAdminNotes(ctx context.Context, id, notes string) error
	Statement(ctx context.Context, from, to time.Time) ([]monobank.Transaction, error)
	RetryRegistration(ctx context.Context, taskID uint) (*models.RegistrationTask, error)
}

// AdminJobQueue is the part of the job queue used by the admin API.
type AdminJobQueue interface {
	EnqueueStatementExport(ctx context.Context, from, to time.Time) (*jobqueue.Job, error)
	GetJob(ctx context.Context, jobID string) (*jobqueue.Job, error)
	GetJobStats(ctx context.Context) (map[jobqueue.JobStatus]int64, error)
	GetQueueSize(ctx context.Context) (int64, error)
	GetProcessingSize(ctx context.Context) (int64, error)
}

// StatisticsReader serves the dashboard counters.
type StatisticsReader interface {
	Get(ctx context.Context) (*statistics.Statistics, error)
	Invalidate(ctx context.Context) error
}

// AdminController handles the back office API behind basic auth
type AdminController struct {
	service AdminService
	queue   AdminJobQueue
	stats   StatisticsReader
}

// NewAdminController creates a new admin controller with its dependencies
func NewAdminController(service AdminService, queue AdminJobQueue, stats StatisticsReader) *AdminController {
	return &AdminController{
		service: service,
		queue:   queue,
		stats:   stats,
	}
}

// HandleStatistics returns the subscription counters; refresh=true bypasses
// the cache
func (ac *AdminController) HandleStatistics(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if c.QueryBool("refresh") {
		if err := ac.stats.Invalidate(ctx); err != nil {
			log.Warnf("[Admin] statistics cache invalidation failed: %v", err)
		}
	}
	stats, err := ac.stats.Get(ctx)
	if err != nil {
		return ac.handleError(c, "Failed to load statistics", err)
	}
	return c.JSON(fiber.Map{"success": true, "statistics": stats})
}

// HandleListSubscriptionRequests lists subscription requests, newest first
func (ac *AdminController) HandleListSubscriptionRequests(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	filter := repository.SubscriptionRequestFilter{
		Status: strings.TrimSpace(c.Query("status")),
		Email:  strings.TrimSpace(c.Query("email")),
		Offset: c.QueryInt("offset", 0),
		Limit:  c.QueryInt("limit", defaultPageSize),
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	if filter.Limit <= 0 || filter.Limit > maxPageSize {
		filter.Limit = defaultPageSize
	}
	switch filter.Status {
	case "", models.STATUS_PENDING, models.STATUS_COMPLETED, models.STATUS_FAILED, models.STATUS_EXPIRED:
	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": "unknown status filter"})
	}

	items, total, err := ac.service.ListSubscriptionRequests(ctx, filter)
	if err != nil {
		return ac.handleError(c, "Failed to list subscription requests", err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"items":   items,
		"total":   total,
		"offset":  filter.Offset,
		"limit":   filter.Limit,
	})
}

// HandleUpdateNotes replaces the admin notes of a subscription request
func (ac *AdminController) HandleUpdateNotes(c *fiber.Ctx) error {
	var body struct {
		Notes string `json:"notes"`
	}
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": "invalid request body"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	err := ac.service.UpdateAdminNotes(ctx, c.Params("id"), body.Notes)
	switch {
	case err == nil:
		return c.JSON(fiber.Map{"success": true})
	case errors.Is(err, billing.ErrSubscriptionRequestNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"success": false, "error": "subscription request not found"})
	case errors.Is(err, billing.ErrInvalidSubscription):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": err.Error()})
	default:
		return ac.handleError(c, "Failed to update notes", err)
	}
}

// HandleStatement returns the account statement for a time window
func (ac *AdminController) HandleStatement(c *fiber.Ctx) error {
	from, to, err := parseStatementRange(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": err.Error()})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	txs, err := ac.service.Statement(ctx, from, to)
	switch {
	case err == nil:
		return c.JSON(fiber.Map{"success": true, "transactions": txs})
	case errors.Is(err, monobank.ErrInvalidStatementRange):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": err.Error()})
	case errors.Is(err, monobank.ErrNotConfigured):
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"success": false, "error": "statement access is not configured"})
	default:
		log.Errorf("[Admin] statement request failed: %v", err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"success": false, "error": "statement request failed"})
	}
}

// HandleStatementExport schedules a CSV export of the statement to S3
func (ac *AdminController) HandleStatementExport(c *fiber.Ctx) error {
	from, to, err := parseStatementRange(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": err.Error()})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	job, err := ac.queue.EnqueueStatementExport(ctx, from, to)
	if err != nil {
		return ac.handleError(c, "Failed to enqueue statement export", err)
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"success": true, "jobId": job.ID})
}

// HandleRetryRegistration runs a registration task again
func (ac *AdminController) HandleRetryRegistration(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil || id == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": "invalid task id"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	task, err := ac.service.RetryRegistration(ctx, uint(id))
	switch {
	case err == nil:
		return c.JSON(fiber.Map{"success": true, "task": task})
	case errors.Is(err, billing.ErrRegistrationTaskNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"success": false, "error": "registration task not found"})
	case errors.Is(err, billing.ErrTaskNotRetryable):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"success": false, "error": err.Error(), "task": task})
	case task != nil:
		log.Warnf("[Admin] registration retry of task %d failed: %v", id, err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"success": false, "error": err.Error(), "task": task})
	default:
		return ac.handleError(c, "Failed to retry registration", err)
	}
}

// HandleQueueStats reports the job queue backlog
func (ac *AdminController) HandleQueueStats(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stats, err := ac.queue.GetJobStats(ctx)
	if err != nil {
		return ac.handleError(c, "Failed to get job stats", err)
	}
	queued, err := ac.queue.GetQueueSize(ctx)
	if err != nil {
		return ac.handleError(c, "Failed to get queue size", err)
	}
	processing, err := ac.queue.GetProcessingSize(ctx)
	if err != nil {
		return ac.handleError(c, "Failed to get processing size", err)
	}
	return c.JSON(fiber.Map{
		"success":    true,
		"stats":      stats,
		"queued":     queued,
		"processing": processing,
	})
}

// HandleJob returns a single job, e.g. to poll a statement export
func (ac *AdminController) HandleJob(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	job, err := ac.queue.GetJob(ctx, c.Params("id"))
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"success": false, "error": "job not found"})
		}
		return ac.handleError(c, "Failed to get job", err)
	}
	return c.JSON(fiber.Map{"success": true, "job": job})
}

func (ac *AdminController) handleError(c *fiber.Ctx, message string, err error) error {
	log.Errorf("[Admin] %s: %v", message, err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "error": message})
}

// parseStatementRange reads from and to as RFC3339 timestamps or dates. A
// missing to means now.
func parseStatementRange(c *fiber.Ctx) (time.Time, time.Time, error) {
	from, err := parseTimeParam(c.Query("from"))
	if err != nil {
		return time.Time{}, time.Time{}, errors.New("from: " + err.Error())
	}
	if from.IsZero() {
		return time.Time{}, time.Time{}, errors.New("from is required")
	}
	to, err := parseTimeParam(c.Query("to"))
	if err != nil {
		return time.Time{}, time.Time{}, errors.New("to: " + err.Error())
	}
	return from, to, nil
}

func parseTimeParam(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.DateOnly, value); err == nil {
		return t, nil
	}
	if unix, err := strconv.ParseInt(value, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC(), nil
	}
	return time.Time{}, errors.New("expected RFC3339, YYYY-MM-DD or unix seconds")
}
