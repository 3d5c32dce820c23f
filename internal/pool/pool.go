// Package pool implements the bounded worker pool executing pipeline jobs.
// Both the request coordinator and the change monitor submit work here, so
// the pool is the single point of backpressure against the render and
// extraction collaborators.
package pool

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

// ErrQueueFull is returned by Submit when the queue is at capacity. Callers
// surface it as a capacity error rather than waiting.
var ErrQueueFull = errors.New("worker pool queue full")

// ErrClosed is returned by Submit after shutdown has begun.
var ErrClosed = errors.New("worker pool closed")

// Task is one unit of work. The context passed in is the pool's run context.
type Task func(ctx context.Context)

// Pool runs tasks on a fixed number of workers over a bounded queue.
type Pool struct {
	tasks   chan Task
	workers int
	logger  *zap.Logger

	closeMu sync.Mutex
	closed  bool
}

// New constructs a Pool with the given worker count and queue depth.
func New(workers, queueDepth int, logger *zap.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queueDepth <= 0 {
		queueDepth = workers
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{
		tasks:   make(chan Task, queueDepth),
		workers: workers,
		logger:  logger,
	}
}

// Run starts the workers and blocks until the context finishes and queued
// tasks drain.
func (p *Pool) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func(index int) {
			defer wg.Done()
			p.work(ctx, index)
		}(i)
	}
	<-ctx.Done()
	p.Close()
	wg.Wait()
}

func (p *Pool) work(ctx context.Context, index int) {
	logger := p.logger.With(zap.Int("worker", index))
	for task := range p.tasks {
		if ctx.Err() != nil {
			// Drain remaining tasks so their waiters still resolve; the
			// task sees the canceled context and fails fast.
			task(ctx)
			continue
		}
		logger.Debug("task dequeued")
		task(ctx)
	}
}

// Submit enqueues a task without blocking. A full queue rejects immediately
// with ErrQueueFull.
func (p *Pool) Submit(task Task) error {
	p.closeMu.Lock()
	if p.closed {
		p.closeMu.Unlock()
		return ErrClosed
	}
	select {
	case p.tasks <- task:
		p.closeMu.Unlock()
		return nil
	default:
		p.closeMu.Unlock()
		return ErrQueueFull
	}
}

// Close stops intake; queued tasks still run. Safe to call multiple times.
func (p *Pool) Close() {
	p.closeMu.Lock()
	defer p.closeMu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	close(p.tasks)
}
