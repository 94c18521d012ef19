package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrPoolClosed is returned when work is submitted after Shutdown.
var ErrPoolClosed = errors.New("job pool closed")

// Func is a unit of work executed by a pool worker.
type Func func(ctx context.Context) error

// Config controls the concurrency characteristics of a pool.
type Config struct {
	Name      string
	QueueSize int
	Workers   int
	// JobTimeout bounds fire-and-forget jobs, which do not inherit the
	// submitter's context.
	JobTimeout time.Duration
}

// Pool runs submitted jobs on a fixed set of worker goroutines.
type Pool struct {
	name       string
	jobTimeout time.Duration
	logger     *slog.Logger

	jobs   chan job
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

type job struct {
	name   string
	ctx    context.Context
	fn     Func
	result chan error
}

// NewPool starts cfg.Workers workers draining a queue of cfg.QueueSize jobs.
func NewPool(cfg Config, logger *slog.Logger) *Pool {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 16
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	p := &Pool{
		name:       cfg.Name,
		jobTimeout: cfg.JobTimeout,
		logger:     logger.With(slog.String("pool", cfg.Name)),
		jobs:       make(chan job, cfg.QueueSize),
		ctx:        ctx,
		cancel:     cancel,
	}

	p.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go p.worker()
	}

	return p
}

// Enqueue schedules fn without waiting for it. Failures are logged.
func (p *Pool) Enqueue(ctx context.Context, name string, fn Func) error {
	jobCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.jobTimeout)
	err := p.submit(ctx, job{
		name: name,
		ctx:  jobCtx,
		fn: func(ctx context.Context) error {
			defer cancel()
			return fn(ctx)
		},
	})
	if err != nil {
		cancel()
	}
	return err
}

// Do runs fn on a worker and waits for its result. The caller's context bounds
// both the wait for a free worker and the job itself.
func (p *Pool) Do(ctx context.Context, fn Func) error {
	result := make(chan error, 1)
	if err := p.submit(ctx, job{ctx: ctx, fn: fn, result: result}); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-result:
		return err
	}
}

func (p *Pool) submit(ctx context.Context, j job) (err error) {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.ctx.Done():
		return ErrPoolClosed
	default:
	}

	// Shutdown closes the channel; a racing send must not panic the caller.
	defer func() {
		if recover() != nil {
			err = ErrPoolClosed
		}
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.ctx.Done():
		return ErrPoolClosed
	case p.jobs <- j:
		return nil
	}
}

// Shutdown stops accepting work and waits for queued jobs to drain.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.once.Do(func() {
		p.cancel()
		close(p.jobs)
	})

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()

	for j := range p.jobs {
		p.run(j)
	}
}

func (p *Pool) run(j job) {
	var err error
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("job panicked: %v", rec)
		}
		if j.result != nil {
			j.result <- err
			return
		}
		if err != nil {
			p.logger.Error("background job failed", "job", j.name, "error", err)
		}
	}()

	if ctxErr := j.ctx.Err(); ctxErr != nil {
		err = ctxErr
		return
	}
	err = j.fn(j.ctx)
}
