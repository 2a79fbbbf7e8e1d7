package turn

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/harunnryd/callagent/pkg/errorsx"
)

// Job is one unit of offloaded work. The context carries the per-job timeout.
type Job func(ctx context.Context)

type DispatcherOptions struct {
	Concurrency int
	QueueSize   int
	// Timeout bounds each job; zero means no limit.
	Timeout time.Duration
}

// ErrQueueFull is returned by Submit when every worker is busy and the queue
// has no room left.
var ErrQueueFull = errorsx.Wrap(errors.New("turn queue full"), errorsx.ReasonWorkerQueueFull)

var ErrDispatcherClosed = errors.New("dispatcher closed")

// Dispatcher runs jobs on a fixed set of workers over a bounded queue.
type Dispatcher struct {
	opts   DispatcherOptions
	jobs   chan Job
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func NewDispatcher(opts DispatcherOptions) *Dispatcher {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 64
	}
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		opts:   opts,
		jobs:   make(chan Job, opts.QueueSize),
		ctx:    ctx,
		cancel: cancel,
	}
	for i := 0; i < opts.Concurrency; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

// Submit queues job without blocking.
func (d *Dispatcher) Submit(job Job) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrDispatcherClosed
	}
	select {
	case d.jobs <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops accepting jobs and waits for queued ones to finish.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.jobs)
	d.mu.Unlock()
	d.wg.Wait()
	d.cancel()
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for job := range d.jobs {
		d.exec(job)
	}
}

func (d *Dispatcher) exec(job Job) {
	ctx := d.ctx
	if d.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.opts.Timeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			slog.Error("turn_job_panic", slog.Any("panic", r))
		}
	}()
	job(ctx)
}
