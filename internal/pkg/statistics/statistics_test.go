package statistics

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazka-books/kazka/app/repository"
	"github.com/kazka-books/kazka/internal/pkg/cache"
)

type countingCounter struct {
	counts map[string]int64
	calls  int
	err    error
}

func (c *countingCounter) Count(_ context.Context, filter repository.SubscriptionRequestFilter) (int64, error) {
	c.calls++
	if c.err != nil {
		return 0, c.err
	}
	if filter.Status == "" {
		var total int64
		for _, n := range c.counts {
			total += n
		}
		return total, nil
	}
	return c.counts[filter.Status], nil
}

type mapStore struct {
	values map[string]string
}

func (m *mapStore) GetInt(_ context.Context, key string) (int, error) {
	v, ok := m.values[key]
	if !ok {
		return 0, cache.ErrMiss
	}
	return strconv.Atoi(v)
}

func (m *mapStore) Set(_ context.Context, key string, value string, _ time.Duration) error {
	m.values[key] = value
	return nil
}

func (m *mapStore) Delete(_ context.Context, key string) error {
	delete(m.values, key)
	return nil
}

func TestGet_CountsAndCaches(t *testing.T) {
	counter := &countingCounter{counts: map[string]int64{"pending": 3, "completed": 5, "failed": 1}}
	store := &mapStore{values: map[string]string{}}
	svc := NewService(counter, store)

	stats, err := svc.Get(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 9, stats.Total)
	assert.EqualValues(t, 5, stats.ByStatus["completed"])
	assert.EqualValues(t, 0, stats.ByStatus["expired"])
	assert.Equal(t, 5, counter.calls)
	assert.Equal(t, "9", store.values[CacheKeyRequestsTotal])

	// second read is served from the cache
	counter.counts["completed"] = 6
	stats, err = svc.Get(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 5, stats.ByStatus["completed"])
	assert.Equal(t, 5, counter.calls)

	require.NoError(t, svc.Invalidate(context.Background()))
	assert.Empty(t, store.values)

	stats, err = svc.Get(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 6, stats.ByStatus["completed"])
	assert.EqualValues(t, 10, stats.Total)
}

func TestGet_CounterError(t *testing.T) {
	svc := NewService(&countingCounter{err: errors.New("db down")}, &mapStore{values: map[string]string{}})

	_, err := svc.Get(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
}
