package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// A small bounded pool for fire-and-forget work that must not run on the
// request path (operator notifications).

type Task = func(ctx context.Context) error

var (
	ErrQueueFull = errors.New("worker queue full")
	ErrStopped   = errors.New("worker pool stopped")
)

type Pool struct {
	wg      sync.WaitGroup
	jobs    chan Task
	quit    chan struct{}
	n       int
	timeout time.Duration
	log     *zerolog.Logger

	mu      sync.RWMutex
	stopped bool
	base    context.Context
}

// NewPool creates a pool with workers goroutines and a queue of the given size.
// Non-positive values fall back to NumCPU and workers*4.
func NewPool(workers, queue int, taskTimeout time.Duration, logger *zerolog.Logger) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if queue <= 0 {
		queue = workers * 4
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Pool{
		jobs:    make(chan Task, queue),
		quit:    make(chan struct{}),
		n:       workers,
		timeout: taskTimeout,
		log:     logger,
	}
}

// Start launches the workers. Cancelling ctx stops them once the queue is
// empty. Tasks run detached from ctx, bounded by the task timeout, so queued
// work still completes during shutdown.
func (p *Pool) Start(ctx context.Context) {
	base := context.WithoutCancel(ctx)
	p.mu.Lock()
	p.base = base
	p.mu.Unlock()
	for i := 0; i < p.n; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			for {
				select {
				case <-ctx.Done():
					p.drain(base, id)
					return
				case <-p.quit:
					p.drain(base, id)
					return
				case task := <-p.jobs:
					p.run(base, id, task)
				}
			}
		}(i)
	}
}

// drain runs whatever is still queued.
func (p *Pool) drain(ctx context.Context, id int) {
	for {
		select {
		case task := <-p.jobs:
			p.run(ctx, id, task)
		default:
			return
		}
	}
}

func (p *Pool) run(ctx context.Context, id int, task Task) {
	if task == nil {
		return
	}
	tctx := ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		tctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	defer func() {
		if rec := recover(); rec != nil {
			p.log.Error().Int("worker", id).Str("panic", fmt.Sprint(rec)).Msg("worker task panicked")
		}
	}()
	if err := task(tctx); err != nil {
		p.log.Warn().Err(err).Int("worker", id).Msg("worker task failed")
	}
}

// Stop stops accepting tasks, drains the queue and waits for workers.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.quit)
	base := p.base
	p.mu.Unlock()
	p.wg.Wait()

	// workers may have exited on ctx before later submissions landed
	if base == nil {
		base = context.Background()
	}
	p.drain(base, -1)
}

// Submit enqueues task without blocking. A saturated queue drops the task.
func (p *Pool) Submit(task Task) error {
	if task == nil {
		return errors.New("nil task")
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrStopped
	}
	select {
	case p.jobs <- task:
		return nil
	default:
		return ErrQueueFull
	}
}
