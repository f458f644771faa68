// Package statistics serves the subscription counters of the admin dashboard
// from the cache, falling back to the database.
package statistics

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/kazka-books/kazka/app/models"
	"github.com/kazka-books/kazka/app/repository"
	"github.com/kazka-books/kazka/internal/pkg/cache"
)

const (
	CacheKeyRequestsByStatus = "statistics:requests:%s" // Format with status
	CacheKeyRequestsTotal    = "statistics:requests:total"
	CacheExpiration          = 5 * time.Minute
)

// Statuses are the request statuses reported on the dashboard.
var Statuses = []string{
	models.STATUS_PENDING,
	models.STATUS_COMPLETED,
	models.STATUS_FAILED,
	models.STATUS_EXPIRED,
}

// Counter counts subscription requests.
type Counter interface {
	Count(ctx context.Context, filter repository.SubscriptionRequestFilter) (int64, error)
}

// Store is the cache the counters are kept in.
type Store interface {
	GetInt(ctx context.Context, key string) (int, error)
	Set(ctx context.Context, key string, value string, expiration time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Statistics is the dashboard summary.
type Statistics struct {
	Total    int64            `json:"total"`
	ByStatus map[string]int64 `json:"byStatus"`
}

type Service struct {
	counter Counter
	store   Store
}

func NewService(counter Counter, store Store) *Service {
	return &Service{counter: counter, store: store}
}

// Get returns the request counters, reading each one from the cache first.
func (s *Service) Get(ctx context.Context) (*Statistics, error) {
	out := &Statistics{ByStatus: make(map[string]int64, len(Statuses))}

	total, err := s.count(ctx, CacheKeyRequestsTotal, repository.SubscriptionRequestFilter{})
	if err != nil {
		return nil, err
	}
	out.Total = total

	for _, status := range Statuses {
		n, err := s.count(ctx, fmt.Sprintf(CacheKeyRequestsByStatus, status), repository.SubscriptionRequestFilter{Status: status})
		if err != nil {
			return nil, err
		}
		out.ByStatus[status] = n
	}
	return out, nil
}

// Invalidate drops the cached counters so the next Get reads the database.
func (s *Service) Invalidate(ctx context.Context) error {
	var errs []error
	errs = append(errs, s.store.Delete(ctx, CacheKeyRequestsTotal))
	for _, status := range Statuses {
		errs = append(errs, s.store.Delete(ctx, fmt.Sprintf(CacheKeyRequestsByStatus, status)))
	}
	return errors.Join(errs...)
}

func (s *Service) count(ctx context.Context, key string, filter repository.SubscriptionRequestFilter) (int64, error) {
	if val, err := s.store.GetInt(ctx, key); err == nil {
		return int64(val), nil
	} else if !errors.Is(err, cache.ErrMiss) {
		log.Warnf("[Statistics] cache read %s failed: %v", key, err)
	}

	n, err := s.counter.Count(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("count subscription requests: %w", err)
	}
	if err := s.store.Set(ctx, key, strconv.FormatInt(n, 10), CacheExpiration); err != nil {
		log.Warnf("[Statistics] cache write %s failed: %v", key, err)
	}
	return n, nil
}
