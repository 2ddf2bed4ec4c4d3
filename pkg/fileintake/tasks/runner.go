// Package tasks provides a small in-process background task runner with a
// global concurrency cap, per-key deduplication, and retry with exponential
// backoff for transient failures.
package tasks

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"math/rand"
	"sync"
	"time"
)

// Task is a unit of background work. Returning nil ends the task; returning
// an error that reports IsRetryable() == true triggers backoff and retry.
type Task func(ctx context.Context) error

// retryable is implemented by errors that are safe to retry.
type retryable interface {
	IsRetryable() bool
}

// Options configures a Runner.
type Options struct {
	// MaxConcurrent caps how many tasks run simultaneously. Defaults to 4.
	MaxConcurrent int
	// MaxAttempts is the total number of tries per task, including the
	// first. Defaults to 3.
	MaxAttempts int
	// InitialDelay is the backoff before the first retry. Defaults to 1s.
	InitialDelay time.Duration
	// MaxDelay caps the backoff. Defaults to 30s.
	MaxDelay time.Duration
	// BackoffFactor is the delay multiplier per attempt. Defaults to 2.
	BackoffFactor float64
}

func (o *Options) applyDefaults() {
	if o.MaxConcurrent <= 0 {
		o.MaxConcurrent = 4
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.InitialDelay <= 0 {
		o.InitialDelay = time.Second
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = 30 * time.Second
	}
	if o.BackoffFactor <= 0 {
		o.BackoffFactor = 2
	}
}

// Runner executes submitted tasks on background goroutines. A channel-based
// counting semaphore enforces the concurrency cap, and an in-flight key set
// collapses duplicate submissions for the same work item.
type Runner struct {
	opts Options

	slots    chan struct{}
	mu       sync.Mutex
	inFlight map[string]struct{}
	wg       sync.WaitGroup

	baseCtx context.Context
	cancel  context.CancelFunc
}

// NewRunner creates a Runner. Call Close to stop accepting work and wait for
// in-flight tasks.
func NewRunner(opts Options) *Runner {
	opts.applyDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		opts:     opts,
		slots:    make(chan struct{}, opts.MaxConcurrent),
		inFlight: make(map[string]struct{}),
		baseCtx:  ctx,
		cancel:   cancel,
	}
}

// Submit enqueues fn under the given name and key. If a task with the same
// name and key is already queued or running, the submission is dropped.
// Returns false when dropped or when the runner is closed.
func (r *Runner) Submit(name string, key string, fn func(ctx context.Context) error) bool {
	id := name + ":" + key

	r.mu.Lock()
	if r.inFlight == nil {
		r.mu.Unlock()
		return false
	}
	if _, dup := r.inFlight[id]; dup {
		r.mu.Unlock()
		return false
	}
	r.inFlight[id] = struct{}{}
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		defer func() {
			r.mu.Lock()
			delete(r.inFlight, id)
			r.mu.Unlock()
		}()

		select {
		case r.slots <- struct{}{}:
			defer func() { <-r.slots }()
		case <-r.baseCtx.Done():
			return
		}

		r.runWithRetry(name, key, fn)
	}()
	return true
}

func (r *Runner) runWithRetry(name, key string, fn Task) {
	for attempt := 0; attempt < r.opts.MaxAttempts; attempt++ {
		err := fn(r.baseCtx)
		if err == nil {
			return
		}
		if r.baseCtx.Err() != nil {
			return
		}
		if !isRetryable(err) || attempt == r.opts.MaxAttempts-1 {
			slog.Error("task failed",
				"task", name, "key", key, "attempt", attempt+1, "error", err)
			return
		}

		delay := r.backoff(attempt)
		slog.Warn("task failed, backing off",
			"task", name, "key", key, "attempt", attempt+1, "delay", delay, "error", err)

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-r.baseCtx.Done():
			timer.Stop()
			return
		}
	}
}

// backoff returns the delay before the retry following the given attempt,
// with jitter so simultaneous failures do not retry in lockstep.
func (r *Runner) backoff(attempt int) time.Duration {
	delay := float64(r.opts.InitialDelay) * math.Pow(r.opts.BackoffFactor, float64(attempt))
	if d := time.Duration(delay); d > r.opts.MaxDelay {
		delay = float64(r.opts.MaxDelay)
	}
	jitter := 0.5 + rand.Float64()/2
	return time.Duration(delay * jitter)
}

func isRetryable(err error) bool {
	var re retryable
	if errors.As(err, &re) {
		return re.IsRetryable()
	}
	return false
}

// Close rejects new submissions, waits for queued and running tasks to
// drain, including pending retries, then cancels the base context.
func (r *Runner) Close() {
	r.mu.Lock()
	r.inFlight = nil
	r.mu.Unlock()
	r.wg.Wait()
	r.cancel()
}
