// Thessia - Killmail Ingestion and Real-Time Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/EVE-KILL/Thessia

package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/EVE-KILL/Thessia-sub001/internal/config"
	"github.com/EVE-KILL/Thessia-sub001/internal/logging"
	"github.com/EVE-KILL/Thessia-sub001/internal/metrics"
	"github.com/EVE-KILL/Thessia-sub001/internal/queue"
)

// Pool defaults.
const (
	DefaultConcurrency  = 2
	MaxConcurrency      = 5
	DefaultPollInterval = time.Second
	DefaultJobTimeout   = 2 * time.Minute

	// settleTimeout bounds Ack and Fail after the handler returns.
	settleTimeout = 10 * time.Second
)

// Handler processes one job. Wrap the error with queue.Permanent when a
// retry cannot succeed.
type Handler interface {
	Handle(ctx context.Context, job *queue.Job) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, job *queue.Job) error

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, job *queue.Job) error {
	return f(ctx, job)
}

// JobSource is the queue side of the pool. *queue.Queue implements it.
type JobSource interface {
	Name() string
	Notify() <-chan struct{}
	Claim(ctx context.Context, holder string) (*queue.Job, error)
	Ack(ctx context.Context, job *queue.Job) error
	Fail(ctx context.Context, job *queue.Job, cause error) (queue.Outcome, error)
}

// Pool runs a fixed number of workers against one queue.
type Pool struct {
	source       JobSource
	handler      Handler
	concurrency  int
	pollInterval time.Duration
	jobTimeout   time.Duration
	holder       string
}

// NewPool creates a pool. Concurrency is clamped to 1..MaxConcurrency.
func NewPool(source JobSource, handler Handler, cfg config.WorkerConfig) *Pool {
	n := cfg.Concurrency
	if n <= 0 {
		n = DefaultConcurrency
	}
	if n > MaxConcurrency {
		n = MaxConcurrency
	}
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	timeout := cfg.JobTimeout
	if timeout <= 0 {
		timeout = DefaultJobTimeout
	}

	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return &Pool{
		source:       source,
		handler:      handler,
		concurrency:  n,
		pollInterval: poll,
		jobTimeout:   timeout,
		holder:       host + "-" + uuid.NewString()[:8],
	}
}

// Concurrency returns the number of workers.
func (p *Pool) Concurrency() int {
	return p.concurrency
}

// Serve runs the workers until ctx ends. Jobs already claimed are allowed to
// finish.
func (p *Pool) Serve(ctx context.Context) error {
	logging.Info().
		Str("queue", p.source.Name()).
		Int("concurrency", p.concurrency).
		Msg("Starting worker pool")

	var wg sync.WaitGroup
	for i := 0; i < p.concurrency; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			p.run(ctx, fmt.Sprintf("%s/%d", p.holder, id))
		}(i)
	}
	wg.Wait()

	logging.Info().Str("queue", p.source.Name()).Msg("Worker pool stopped")
	return ctx.Err()
}

func (p *Pool) String() string {
	return "worker-pool:" + p.source.Name()
}

func (p *Pool) run(ctx context.Context, holder string) {
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		job, err := p.source.Claim(ctx, holder)
		switch {
		case err == nil:
			p.process(ctx, job)
			continue
		case ctx.Err() != nil:
			return
		case !errors.Is(err, queue.ErrEmpty):
			logging.Error().Err(err).Str("queue", p.source.Name()).Msg("Failed to claim job")
		}

		select {
		case <-ctx.Done():
			return
		case <-p.source.Notify():
		case <-ticker.C:
		}
	}
}

// process runs one job to completion. Shutdown does not cancel the handler;
// only the job timeout does. The outcome is settled on a fresh context so a
// timed-out job is still recorded as a failed attempt.
func (p *Pool) process(ctx context.Context, job *queue.Job) {
	baseCtx := logging.ContextWithNewCorrelationID(context.WithoutCancel(ctx))
	baseCtx = logging.ContextWithLogger(baseCtx, logging.With().
		Str("queue", p.source.Name()).
		Str("job_id", job.ID).
		Str("kind", job.Kind).
		Int("attempt", job.Attempts).
		Logger())
	log := logging.Ctx(baseCtx)

	jobCtx, cancel := context.WithTimeout(baseCtx, p.jobTimeout)
	start := time.Now()
	err := p.safeHandle(jobCtx, job)
	cancel()
	metrics.RecordJob(p.source.Name(), time.Since(start), err)

	settleCtx, cancelSettle := context.WithTimeout(baseCtx, settleTimeout)
	defer cancelSettle()

	if err == nil {
		if aerr := p.source.Ack(settleCtx, job); aerr != nil {
			log.Error().Err(aerr).Msg("Failed to acknowledge job")
		}
		return
	}

	outcome, ferr := p.source.Fail(settleCtx, job, err)
	if ferr != nil {
		log.Error().Err(ferr).AnErr("cause", err).Msg("Failed to record job failure")
		return
	}
	if outcome == queue.Dropped {
		log.Error().Err(err).Bool("permanent", queue.IsPermanent(err)).Msg("Job failed and was dropped")
		return
	}
	log.Warn().Err(err).Dur("backoff", job.Backoff).Msg("Job failed, retrying")
}

// safeHandle converts a handler panic into a permanent failure so one bad
// job never takes down its siblings.
func (p *Pool) safeHandle(ctx context.Context, job *queue.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error().
				Str("queue", p.source.Name()).
				Str("job_id", job.ID).
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("Job handler panicked")
			err = queue.Permanent(fmt.Errorf("handler panic: %v", r))
		}
	}()
	return p.handler.Handle(ctx, job)
}
