// Package dispatch runs notification jobs off the request path on a fixed
// set of workers and re-feeds jobs that are due for another attempt.
package dispatch

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"pulse-server/internal/common/logger"
	"pulse-server/internal/common/metrics"
	"pulse-server/internal/models"
)

var (
	ErrQueueFull  = stderrors.New("dispatch queue full")
	ErrPoolClosed = stderrors.New("dispatch pool closed")
)

// Task is one job execution. Variant is nil when the job is re-attempted and
// the variant has to be resolved again.
type Task struct {
	Job     models.NotificationJob
	Variant *models.ResolvedVariant
}

type Handler func(ctx context.Context, task Task)

type Pool struct {
	tasks          chan Task
	handler        Handler
	workers        int
	enqueueTimeout time.Duration
	log            logger.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

func NewPool(workers, queueSize int, enqueueTimeout time.Duration, handler Handler, log logger.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		tasks:          make(chan Task, queueSize),
		handler:        handler,
		workers:        workers,
		enqueueTimeout: enqueueTimeout,
		log:            log.WithFields(map[string]interface{}{"component": "dispatch"}),
		ctx:            ctx,
		cancel:         cancel,
	}
}

func (p *Pool) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.work(i)
	}
	p.log.Info("Dispatch pool started", map[string]interface{}{"workers": p.workers, "queueSize": cap(p.tasks)})
}

func (p *Pool) work(id int) {
	defer p.wg.Done()
	for task := range p.tasks {
		metrics.DispatchQueueDepth.Set(float64(len(p.tasks)))
		p.run(id, task)
	}
}

func (p *Pool) run(id int, task Task) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("Job execution panicked", map[string]interface{}{
				"worker": id, "jobId": task.Job.ID, "panic": r,
			})
		}
	}()
	p.handler(p.ctx, task)
}

// Submit queues a task, waiting at most the enqueue timeout for room. The
// caller's context only bounds the wait; execution is detached from it.
func (p *Pool) Submit(ctx context.Context, task Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}

	select {
	case p.tasks <- task:
		metrics.DispatchQueueDepth.Set(float64(len(p.tasks)))
		return nil
	default:
	}

	timer := time.NewTimer(p.enqueueTimeout)
	defer timer.Stop()
	select {
	case p.tasks <- task:
		metrics.DispatchQueueDepth.Set(float64(len(p.tasks)))
		return nil
	case <-timer.C:
		return ErrQueueFull
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops accepting tasks and waits for queued ones to finish. When
// ctx ends first, in-flight executions are cancelled.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.tasks)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		p.log.Info("Dispatch pool drained", nil)
		return nil
	case <-ctx.Done():
		p.cancel()
		p.log.Warn("Dispatch pool shutdown timed out", map[string]interface{}{"pending": len(p.tasks)})
		return ctx.Err()
	}
}
