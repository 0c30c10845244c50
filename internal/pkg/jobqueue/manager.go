package jobqueue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/robfig/cron/v3"

	"github.com/ManuelReschke/MarketFox/internal/pkg/billing"
)

const sweepJobTimeout = 10 * time.Minute

// Sweeper lapses expired plans.
type Sweeper interface {
	Sweep(ctx context.Context, now time.Time) (*billing.SweepReport, error)
}

// Manager runs the job queue workers and the scheduled expiration sweep. The
// queue may be nil when no Redis is configured.
type Manager struct {
	queue    *Queue
	sweeper  Sweeper
	schedule string
	clock    billing.Clock

	cron    *cron.Cron
	mu      sync.Mutex
	running bool
}

// NewManager creates a manager. An empty schedule disables the in-process
// sweep; the sweep is then triggered through the cron endpoint only.
func NewManager(queue *Queue, sweeper Sweeper, schedule string) *Manager {
	return &Manager{
		queue:    queue,
		sweeper:  sweeper,
		schedule: schedule,
		clock:    billing.SystemClock(),
	}
}

// GetQueue returns the managed job queue
func (m *Manager) GetQueue() *Queue {
	return m.queue
}

// Start starts the job queue and the sweep schedule
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return nil
	}

	c := cron.New()
	if m.schedule != "" && m.sweeper != nil {
		if _, err := c.AddFunc(m.schedule, m.runScheduledSweep); err != nil {
			return fmt.Errorf("invalid CRON_SCHEDULE %q: %w", m.schedule, err)
		}
		log.Infof("[JobQueue Manager] Expiration sweep scheduled (%s)", m.schedule)
	}

	m.cron = c
	m.running = true
	if m.queue != nil {
		m.queue.Start()
	}
	c.Start()
	log.Info("[JobQueue Manager] Started successfully")
	return nil
}

// Stop stops the schedule, waits for a running sweep and stops the workers
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	log.Info("[JobQueue Manager] Stopping job queue and background tasks...")
	<-m.cron.Stop().Done()
	if m.queue != nil {
		m.queue.Stop()
	}
	m.running = false
	log.Info("[JobQueue Manager] Stopped successfully")
}

// IsRunning returns whether the manager is currently running
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// RunSweepOnce runs one expiration sweep at the current time.
func (m *Manager) RunSweepOnce(ctx context.Context) (*billing.SweepReport, error) {
	if m.sweeper == nil {
		return nil, fmt.Errorf("no sweeper configured")
	}
	return m.sweeper.Sweep(ctx, m.clock.Now())
}

func (m *Manager) runScheduledSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepJobTimeout)
	defer cancel()

	log.Info("[JobQueue Manager] Running scheduled expiration sweep")
	if _, err := m.RunSweepOnce(ctx); err != nil {
		log.Errorf("[JobQueue Manager] Scheduled sweep failed: %v", err)
	}
}
