// Package scheduler runs every task periodically and serves one-off run
// requests through a shared worker pool.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"a11ywatch/internal/models"
	"a11ywatch/internal/urlutil"
)

var (
	// ErrUnknownTask is returned by Enqueue for ids that do not resolve.
	ErrUnknownTask = errors.New("unknown task")
	// ErrQueueFull is returned by Enqueue when the run could not be queued.
	ErrQueueFull = errors.New("run queue full")
)

// TaskSource lists and loads tasks.
type TaskSource interface {
	GetAll(ctx context.Context) ([]models.TaskOutput, error)
	GetByID(ctx context.Context, id string) (*models.TaskOutput, error)
}

// Config controls the scheduler. A zero Interval disables periodic runs;
// Enqueue still works.
type Config struct {
	Interval    time.Duration
	Workers     int
	QueueSize   int
	StopTimeout time.Duration
}

// Scheduler dispatches task runs to a WorkerPool.
type Scheduler struct {
	tasks    TaskSource
	pool     *WorkerPool
	logger   *slog.Logger
	interval time.Duration
	stopWait time.Duration
	stopChan chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New creates a Scheduler and starts its workers.
func New(tasks TaskSource, runner TaskRunner, logger *slog.Logger, cfg Config) *Scheduler {
	return &Scheduler{
		tasks:    tasks,
		pool:     NewWorkerPool(runner, logger, cfg.Workers, cfg.QueueSize),
		logger:   logger,
		interval: cfg.Interval,
		stopWait: cfg.StopTimeout,
		stopChan: make(chan struct{}),
	}
}

// Start begins the periodic loop with an initial pass. It does nothing when
// the interval is zero.
func (s *Scheduler) Start() {
	if s.interval <= 0 {
		s.logger.Info("periodic task runs disabled")
		return
	}
	s.logger.Info("starting task scheduler", "interval", s.interval.String())
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.scheduleAll()
		for {
			select {
			case <-ticker.C:
				s.scheduleAll()
			case <-s.stopChan:
				return
			}
		}
	}()
}

// Stop ends the loop and drains the worker pool.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
		s.wg.Wait()

		ctx := context.Background()
		if s.stopWait > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.stopWait)
			defer cancel()
		}
		s.pool.Stop(ctx)
		s.logger.Info("task scheduler stopped")
	})
}

// Enqueue queues a one-off run of taskID.
func (s *Scheduler) Enqueue(ctx context.Context, taskID string) error {
	task, err := s.tasks.GetByID(ctx, taskID)
	if err != nil {
		return err
	}
	if task == nil {
		return ErrUnknownTask
	}
	if !s.pool.Submit(task.ID, urlutil.HostKey(task.URL)) {
		return ErrQueueFull
	}
	return nil
}

func (s *Scheduler) scheduleAll() {
	tasks, err := s.tasks.GetAll(context.Background())
	if err != nil {
		s.logger.Error("loading tasks for scheduled run failed", "err", err)
		return
	}
	if len(tasks) == 0 {
		s.logger.Debug("no tasks to run")
		return
	}
	queued := 0
	for _, t := range tasks {
		if s.pool.Submit(t.ID, urlutil.HostKey(t.URL)) {
			queued++
		}
	}
	s.logger.Info("scheduled task runs", "queued", queued, "total", len(tasks))
}
