package scheduler

import (
	"context"
	"log/slog"
	"sync"

	"a11ywatch/internal/models"
)

// TaskRunner executes one task run.
type TaskRunner interface {
	RunByID(ctx context.Context, id string) (*models.ResultOutput, error)
}

type job struct {
	taskID string
	host   string
}

// WorkerPool runs queued task audits on a fixed number of goroutines.
type WorkerPool struct {
	runner   TaskRunner
	logger   *slog.Logger
	jobs     chan job
	limiter  *HostLimiter
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	mu       sync.RWMutex
	closed   bool
	stopOnce sync.Once
}

// NewWorkerPool starts workers goroutines reading from a queue of queueSize.
func NewWorkerPool(runner TaskRunner, logger *slog.Logger, workers, queueSize int) *WorkerPool {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = workers * 2
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &WorkerPool{
		runner:  runner,
		logger:  logger,
		jobs:    make(chan job, queueSize),
		limiter: NewHostLimiter(),
		ctx:     ctx,
		cancel:  cancel,
	}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer p.wg.Done()
			for j := range p.jobs {
				p.run(j)
			}
		}()
	}
	return p
}

// Submit queues a run. It returns false when the queue is full or the pool
// is stopped.
func (p *WorkerPool) Submit(taskID, host string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}
	select {
	case p.jobs <- job{taskID: taskID, host: host}:
		return true
	default:
		p.logger.Warn("run queue full, skipping task", "task", taskID)
		return false
	}
}

// Stop closes the queue and waits for the workers. When ctx ends first the
// in-flight runs are cancelled and Stop keeps waiting for them to return.
func (p *WorkerPool) Stop(ctx context.Context) {
	p.stopOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.jobs)
		p.mu.Unlock()

		done := make(chan struct{})
		go func() {
			p.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			p.logger.Warn("cancelling in-flight task runs")
			p.cancel()
			<-done
		}
		p.cancel()
	})
}

// run audits j, or queues it behind the task holding its host. The worker
// that holds a host keeps running the host's queued tasks until none remain.
func (p *WorkerPool) run(j job) {
	if !p.limiter.Acquire(j.host, j.taskID) {
		holder, _ := p.limiter.Holder(j.host)
		p.logger.Info("host busy, run queued", "task", j.taskID, "host", j.host, "busy_with", holder)
		return
	}
	taskID := j.taskID
	for {
		p.runOne(taskID)
		next, ok := p.limiter.Release(j.host)
		if !ok {
			return
		}
		taskID = next
	}
}

func (p *WorkerPool) runOne(taskID string) {
	// failures are logged by the pipeline with their stage
	if _, err := p.runner.RunByID(p.ctx, taskID); err != nil {
		p.logger.Debug("queued run failed", "task", taskID, "err", err)
	}
}
