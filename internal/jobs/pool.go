package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/inkwellhq/inkwell/internal/domain"
	"github.com/inkwellhq/inkwell/internal/obs"
	"github.com/inkwellhq/inkwell/internal/store"
)

// Handler executes one leased job. Returning an error counts the attempt
// as failed; the pool decides between retry and dead based on the job's
// attempt budget.
type Handler interface {
	Handle(ctx context.Context, job domain.Job) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, job domain.Job) error

func (f HandlerFunc) Handle(ctx context.Context, job domain.Job) error { return f(ctx, job) }

// PoolConfig tunes one queue's worker pool.
type PoolConfig struct {
	Queue        string
	Consumer     string
	Concurrency  int
	PollInterval time.Duration
	LeaseTTL     time.Duration
	BackoffBase  time.Duration
	BackoffCap   time.Duration
}

func (c *PoolConfig) fillDefaults() {
	if c.Consumer == "" {
		c.Consumer = c.Queue + "-pool"
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 1
	}
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.LeaseTTL <= 0 {
		c.LeaseTTL = 30 * time.Second
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = time.Second
	}
	if c.BackoffCap <= 0 {
		c.BackoffCap = time.Minute
	}
}

// Pool polls one queue and dispatches leased jobs to a bounded set of
// workers. Leases rather than deletes make delivery at-least-once, so
// handlers are expected to be idempotent.
type Pool struct {
	cfg     PoolConfig
	store   store.Store
	handler Handler
	log     *slog.Logger

	stopCh chan struct{}
	doneCh chan struct{}
}

func NewPool(cfg PoolConfig, st store.Store, h Handler, logger *slog.Logger) *Pool {
	cfg.fillDefaults()
	return &Pool{
		cfg:     cfg,
		store:   st,
		handler: h,
		log:     logger.With(slog.String("queue", cfg.Queue)),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Start launches the poll loop. Call Stop to shut it down.
func (p *Pool) Start() {
	go p.run()
	p.log.Info("job pool started",
		slog.Int("concurrency", p.cfg.Concurrency),
		slog.Duration("poll_interval", p.cfg.PollInterval),
	)
}

// Stop halts polling and waits for in-flight jobs to finish.
func (p *Pool) Stop() {
	close(p.stopCh)
	<-p.doneCh
	p.log.Info("job pool stopped")
}

func (p *Pool) run() {
	defer close(p.doneCh)

	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		p.drain()
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
		}
	}
}

// drain leases and processes batches until the queue has nothing due.
func (p *Pool) drain() {
	ctx := context.Background()
	for {
		select {
		case <-p.stopCh:
			return
		default:
		}

		batch, err := p.store.Jobs().LeaseJobs(ctx, p.cfg.Queue, p.cfg.Consumer, p.cfg.Concurrency, time.Now(), p.cfg.LeaseTTL)
		if err != nil {
			p.log.Error("job lease failed", slog.Any("error", err))
			return
		}
		if len(batch) == 0 {
			return
		}

		var wg sync.WaitGroup
		for _, job := range batch {
			wg.Add(1)
			go func(job domain.Job) {
				defer wg.Done()
				p.process(ctx, job)
			}(job)
		}
		wg.Wait()
	}
}

func (p *Pool) process(ctx context.Context, job domain.Job) {
	err := p.invoke(ctx, job)
	now := time.Now()

	if err == nil {
		if markErr := p.store.Jobs().MarkJobSucceeded(ctx, job.ID, now); markErr != nil {
			p.log.Error("job finalize failed", slog.String("job_id", job.ID), slog.Any("error", markErr))
			return
		}
		obs.JobsProcessed.WithLabelValues(p.cfg.Queue, "succeeded").Inc()
		p.log.Debug("job succeeded", slog.String("job_id", job.ID))
		return
	}

	// AttemptCount was already incremented by the lease.
	var retryAt *time.Time
	outcome := "dead"
	if job.AttemptCount < job.MaxAttempts {
		at := now.Add(p.backoff(job.AttemptCount))
		retryAt = &at
		outcome = "retried"
	}

	if markErr := p.store.Jobs().MarkJobFailed(ctx, job.ID, err.Error(), retryAt, now); markErr != nil {
		p.log.Error("job failure record failed", slog.String("job_id", job.ID), slog.Any("error", markErr))
		return
	}
	obs.JobsProcessed.WithLabelValues(p.cfg.Queue, outcome).Inc()
	p.log.Warn("job attempt failed",
		slog.String("job_id", job.ID),
		slog.Int("attempt", job.AttemptCount),
		slog.Int("max_attempts", job.MaxAttempts),
		slog.String("outcome", outcome),
		slog.Any("error", err),
	)
}

// invoke runs the handler, converting panics into failed attempts so one
// bad payload cannot take the pool down.
func (p *Pool) invoke(ctx context.Context, job domain.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return p.handler.Handle(ctx, job)
}

// backoff doubles per failed attempt from BackoffBase up to BackoffCap.
func (p *Pool) backoff(attempt int) time.Duration {
	d := p.cfg.BackoffBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= p.cfg.BackoffCap {
			return p.cfg.BackoffCap
		}
	}
	if d > p.cfg.BackoffCap {
		return p.cfg.BackoffCap
	}
	return d
}
