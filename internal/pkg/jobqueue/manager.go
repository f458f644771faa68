package jobqueue

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
)

// RegistrationSource lists registration tasks that are due for another attempt.
type RegistrationSource interface {
	DueRegistrationTasks(ctx context.Context, staleBefore time.Time, limit int) ([]uint, error)
}

// sweepBatch bounds the tasks re-enqueued per sweep
const sweepBatch = 100

// Manager runs the queue together with the registration sweeper, which puts
// tasks recorded in the database back onto the queue.
type Manager struct {
	queue    *Queue
	source   RegistrationSource
	interval time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex
	running  bool
}

// NewManager creates a manager sweeping source every interval.
func NewManager(queue *Queue, source RegistrationSource, interval time.Duration) *Manager {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Manager{
		queue:    queue,
		source:   source,
		interval: interval,
	}
}

// GetQueue returns the managed job queue
func (m *Manager) GetQueue() *Queue {
	return m.queue
}

// Start starts the job queue and the sweeper
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	m.stopCh = make(chan struct{})
	m.running = true
	log.Info("[JobQueue Manager] Starting job queue and registration sweeper")

	m.queue.Start()

	if m.source != nil {
		m.wg.Add(1)
		go m.sweepWorker()
	}
}

// Stop stops the sweeper and the job queue
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	log.Info("[JobQueue Manager] Stopping...")
	close(m.stopCh)
	m.running = false
	m.wg.Wait()

	m.queue.Stop()
	log.Info("[JobQueue Manager] Stopped successfully")
}

// IsRunning returns whether the manager is currently running
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *Manager) sweepWorker() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	log.Infof("[JobQueue Manager] Registration sweeper running (interval: %s)", m.interval)

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			if _, err := m.SweepRegistrations(context.Background()); err != nil {
				log.Errorf("[JobQueue Manager] Registration sweep error: %v", err)
			}
		}
	}
}

// SweepRegistrations enqueues every due registration task once. Tasks
// attempted within the last interval are left to their pending retry.
func (m *Manager) SweepRegistrations(ctx context.Context) (int, error) {
	ids, err := m.source.DueRegistrationTasks(ctx, time.Now().Add(-m.interval), sweepBatch)
	if err != nil {
		return 0, err
	}
	enqueued := 0
	for _, id := range ids {
		if err := m.queue.EnqueueRegistration(ctx, id); err != nil {
			return enqueued, err
		}
		enqueued++
	}
	if enqueued > 0 {
		log.Infof("[JobQueue Manager] Re-enqueued %d registration tasks", enqueued)
	}
	return enqueued, nil
}
