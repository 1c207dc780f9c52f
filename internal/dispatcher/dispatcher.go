// Package dispatcher manages worker fan-out over the research queue and
// the stale-job sweeper.
package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rivalscope/research/internal/research"
	"github.com/rivalscope/research/internal/worker"
)

// Config controls sweeper behavior.
type Config struct {
	// StaleAfter is how long a job may sit in processing before the
	// sweeper fails it. The zero value disables the sweeper.
	StaleAfter time.Duration
	// SweepInterval is how often the sweeper runs.
	SweepInterval time.Duration
}

// Dispatcher fans out queue work to a pool of workers and periodically
// reaps jobs orphaned by a crashed or restarted worker.
type Dispatcher struct {
	queue   research.Queue
	jobs    research.JobStore
	clock   research.Clock
	workers []*worker.Worker
	cfg     Config
	logger  *zap.Logger
}

// New creates a Dispatcher.
func New(queue research.Queue, jobs research.JobStore, clock research.Clock, workers []*worker.Worker, cfg Config, logger *zap.Logger) *Dispatcher {
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Minute
	}
	return &Dispatcher{
		queue:   queue,
		jobs:    jobs,
		clock:   clock,
		workers: workers,
		cfg:     cfg,
		logger:  logger,
	}
}

// Run starts all workers and the sweeper, and blocks until the context
// finishes.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, w := range d.workers {
		wg.Add(1)
		go func(wk *worker.Worker) {
			defer wg.Done()
			wk.Run(ctx)
		}(w)
	}
	if d.cfg.StaleAfter > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.sweep(ctx)
		}()
	}
	<-ctx.Done()
	wg.Wait()
}

// Enqueue proxies to the underlying queue.
func (d *Dispatcher) Enqueue(ctx context.Context, item research.QueueItem) error {
	if err := d.queue.Enqueue(ctx, item); err != nil {
		return fmt.Errorf("queue enqueue: %w", err)
	}
	return nil
}

func (d *Dispatcher) sweep(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := d.clock.Now()
			n, err := d.jobs.ReapStale(ctx, now.Add(-d.cfg.StaleAfter), now)
			if err != nil {
				d.logger.Error("reap stale jobs failed", zap.Error(err))
				continue
			}
			if n > 0 {
				d.logger.Warn("reaped stale research jobs", zap.Int("count", n))
			}
		}
	}
}
