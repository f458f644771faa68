package jobqueue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewQueue(t *testing.T) {
	tests := []struct {
		name            string
		workers         int
		expectedWorkers int
	}{
		{"Valid worker count", 5, 5},
		{"Zero workers", 0, 3},
		{"Negative workers", -1, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			queue := NewQueue(nil, tt.workers)

			assert.NotNil(t, queue)
			assert.Equal(t, tt.expectedWorkers, queue.workers)
			assert.Equal(t, tt.expectedWorkers, cap(queue.workerPool))
			assert.NotNil(t, queue.handlers)
			assert.False(t, queue.running)
		})
	}
}

type jobCounter struct {
	mu     sync.Mutex
	counts map[string]int
}

func (c *jobCounter) RecordJob(jobType, status string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counts == nil {
		c.counts = map[string]int{}
	}
	c.counts[jobType+"/"+status]++
}

func (c *jobCounter) get(key string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[key]
}

func TestQueue_ProcessesRegistrationJobs(t *testing.T) {
	client := newIsolatedRedisClient(t, isolatedJobQueueTestRedisDB)
	q := NewQueue(client, 2)
	counter := &jobCounter{}
	q.SetMetrics(counter)

	var seen sync.Map
	q.Handle(JobTypeRegistration, func(_ context.Context, job *Job) error {
		p, err := RegistrationJobPayloadFromMap(job.Payload)
		if err != nil {
			return err
		}
		seen.Store(p.TaskID, true)
		return nil
	})

	q.Start()
	defer q.Stop()

	ctx := context.Background()
	require.NoError(t, q.EnqueueRegistration(ctx, 1))
	require.NoError(t, q.EnqueueRegistration(ctx, 2))

	require.True(t, waitForCondition(func() bool {
		return counter.get("registration/completed") == 2
	}, 5*time.Second))
	_, ok := seen.Load(uint(1))
	assert.True(t, ok)

	size, err := q.GetQueueSize(ctx)
	require.NoError(t, err)
	assert.Zero(t, size)
	stats, err := q.GetJobStats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, stats[JobStatusCompleted])
}

func TestQueue_RetriesFailedJobs(t *testing.T) {
	client := newIsolatedRedisClient(t, isolatedJobQueueTestRedisDB)
	q := NewQueue(client, 1)
	q.retryDelay = 10 * time.Millisecond
	counter := &jobCounter{}
	q.SetMetrics(counter)

	var calls int32
	q.Handle(JobTypeRegistration, func(context.Context, *Job) error {
		if atomic.AddInt32(&calls, 1) < 3 {
			return errors.New("not yet")
		}
		return nil
	})
	q.Start()
	defer q.Stop()

	require.NoError(t, q.EnqueueRegistration(context.Background(), 9))
	require.True(t, waitForCondition(func() bool {
		return counter.get("registration/completed") == 1
	}, 5*time.Second))
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
	assert.Equal(t, 2, counter.get("registration/retrying"))
}

func TestQueue_DiscardedJobIsNotRetried(t *testing.T) {
	client := newIsolatedRedisClient(t, isolatedJobQueueTestRedisDB)
	q := NewQueue(client, 1)
	q.retryDelay = 10 * time.Millisecond
	counter := &jobCounter{}
	q.SetMetrics(counter)
	q.Start()
	defer q.Stop()

	// no handler registered for statement exports
	job, err := q.EnqueueStatementExport(context.Background(), time.Now().Add(-time.Hour), time.Now())
	require.NoError(t, err)

	require.True(t, waitForCondition(func() bool {
		return counter.get("statement_export/failed") == 1
	}, 5*time.Second))
	stored, err := q.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusFailed, stored.Status)
	assert.Zero(t, counter.get("statement_export/retrying"))
}

func TestQueue_RecoverStuckJobs(t *testing.T) {
	client := newIsolatedRedisClient(t, isolatedJobQueueTestRedisDB)
	q := NewQueue(client, 1)
	ctx := context.Background()

	require.NoError(t, q.EnqueueRegistration(ctx, 3))
	id, err := client.RPopLPush(ctx, JobQueueKey, JobProcessingKey).Result()
	require.NoError(t, err)

	stuck, err := q.GetJob(ctx, id)
	require.NoError(t, err)
	stuck.MarkAsProcessing()
	past := time.Now().Add(-time.Hour)
	stuck.ProcessedAt = &past
	q.updateJob(ctx, stuck)

	q.recoverStuckJobs(ctx, 10*time.Minute)

	processing, err := q.GetProcessingSize(ctx)
	require.NoError(t, err)
	assert.Zero(t, processing)
	pending, err := q.GetQueueSize(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, pending)
}

func TestQueue_KeepsCompletedStatementExport(t *testing.T) {
	client := newIsolatedRedisClient(t, isolatedJobQueueTestRedisDB)
	q := NewQueue(client, 1)
	counter := &jobCounter{}
	q.SetMetrics(counter)
	q.Handle(JobTypeStatementExport, func(_ context.Context, job *Job) error {
		job.Payload["location"] = "s3://statements/a.csv"
		return nil
	})
	q.Start()
	defer q.Stop()

	job, err := q.EnqueueStatementExport(context.Background(), time.Now().Add(-time.Hour), time.Now())
	require.NoError(t, err)

	require.True(t, waitForCondition(func() bool {
		return counter.get("statement_export/completed") == 1
	}, 5*time.Second))
	stored, err := q.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusCompleted, stored.Status)
	assert.Equal(t, "s3://statements/a.csv", stored.Payload["location"])
}
