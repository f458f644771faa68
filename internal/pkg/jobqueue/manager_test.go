package jobqueue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sourceFunc func(ctx context.Context, staleBefore time.Time, limit int) ([]uint, error)

func (f sourceFunc) DueRegistrationTasks(ctx context.Context, staleBefore time.Time, limit int) ([]uint, error) {
	return f(ctx, staleBefore, limit)
}

func TestNewManager_DefaultInterval(t *testing.T) {
	m := NewManager(NewQueue(nil, 1), nil, 0)
	assert.Equal(t, time.Minute, m.interval)
	assert.False(t, m.IsRunning())
}

func TestManager_SweepRegistrations(t *testing.T) {
	client := newIsolatedRedisClient(t, isolatedJobQueueTestRedisDB)
	q := NewQueue(client, 1)

	var gotStale time.Time
	m := NewManager(q, sourceFunc(func(_ context.Context, staleBefore time.Time, limit int) ([]uint, error) {
		gotStale = staleBefore
		assert.Equal(t, sweepBatch, limit)
		return []uint{4, 5}, nil
	}), 2*time.Minute)

	n, err := m.SweepRegistrations(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.WithinDuration(t, time.Now().Add(-2*time.Minute), gotStale, 5*time.Second)

	size, err := q.GetQueueSize(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, size)
}

func TestManager_StartStop(t *testing.T) {
	client := newIsolatedRedisClient(t, isolatedJobQueueTestRedisDB)
	m := NewManager(NewQueue(client, 1), nil, time.Minute)

	m.Start()
	assert.True(t, m.IsRunning())
	m.Start()
	m.Stop()
	assert.False(t, m.IsRunning())
	m.Stop()
}
