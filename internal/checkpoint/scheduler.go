// Package checkpoint runs the periodic buffer-pool flush that keeps the
// amount of work lost on an ungraceful shutdown bounded, since this
// storage core has no write-ahead log or crash recovery (spec §1
// Non-goals). Grounded on the teacher's internal/storage/scheduler.go,
// trimmed to the one job this core actually needs: a recurring
// BufferPool.FlushAll().
package checkpoint

import (
	"fmt"
	"log"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/dbcore/erdb/internal/storage/buffer"
)

// Scheduler runs pool.FlushAll() on a cron schedule, skipping an overlapping
// tick if the previous flush is still running.
type Scheduler struct {
	pool   *buffer.Pool
	logger *log.Logger
	cron   *cron.Cron

	mu      sync.Mutex
	running bool
}

// New builds a Scheduler. A nil logger falls back to log.Default().
func New(pool *buffer.Pool, logger *log.Logger) *Scheduler {
	if logger == nil {
		logger = log.Default()
	}
	return &Scheduler{
		pool:   pool,
		logger: logger,
		cron:   cron.New(cron.WithSeconds()),
	}
}

// Start registers the flush job on cronExpr (a robfig/cron standard-plus-
// seconds expression, e.g. "*/30 * * * * *" for every 30 seconds) and
// starts the scheduler loop.
func (s *Scheduler) Start(cronExpr string) error {
	if _, err := s.cron.AddFunc(cronExpr, s.runFlush); err != nil {
		return fmt.Errorf("scheduling checkpoint flush %q: %w", cronExpr, err)
	}
	s.cron.Start()
	s.logger.Printf("checkpoint: scheduler started (%s)", cronExpr)
	return nil
}

// Stop halts the scheduler and waits for any cron jobs in flight to
// return.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Printf("checkpoint: scheduler stopped")
}

func (s *Scheduler) runFlush() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.logger.Printf("checkpoint: previous flush still running, skipping this tick")
		return
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	if err := s.pool.FlushAll(); err != nil {
		s.logger.Printf("checkpoint: flush failed: %v", err)
		return
	}
	s.logger.Printf("checkpoint: flush completed")
}
