package queue

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

const (
	// DefaultPollInterval is the default interval between two scans of pending tasks
	DefaultPollInterval = 30 * time.Second

	// DefaultMaxAttempts is the default number of processing rounds before a task is dead-lettered
	DefaultMaxAttempts = 5

	// DefaultRetries is the default number of immediate retries within a processing round
	DefaultRetries = 3

	defaultInitialInterval = 500 * time.Millisecond
	defaultMaxInterval     = 30 * time.Second
)

// Handler processes a task
type Handler func(context.Context, Task) error

// WorkerOption configures a worker
type WorkerOption func(*Worker)

// WithLogger sets the logger of the worker
func WithLogger(l *zap.Logger) WorkerOption {
	return func(w *Worker) {
		if l != nil {
			w.l = l
		}
	}
}

// WithPollInterval sets the interval between two scans of pending tasks
func WithPollInterval(d time.Duration) WorkerOption {
	return func(w *Worker) {
		if d > 0 {
			w.pollInterval = d
		}
	}
}

// WithMaxAttempts sets the number of processing rounds after which a failing task is dead-lettered
func WithMaxAttempts(n int) WorkerOption {
	return func(w *Worker) {
		if n > 0 {
			w.maxAttempts = n
		}
	}
}

// WithRetries sets the number of immediate retries of a failed task, within one processing round
func WithRetries(n uint64) WorkerOption {
	return func(w *Worker) {
		w.retries = n
	}
}

// WithBackOff sets the intervals of the exponential backoff between retries
func WithBackOff(initial, maxInterval time.Duration) WorkerOption {
	return func(w *Worker) {
		if initial > 0 {
			w.initialInterval = initial
		}
		if maxInterval > 0 {
			w.maxInterval = maxInterval
		}
	}
}

// Worker consumes tasks from a backend
type Worker struct {
	backend Backend
	handler Handler
	l       *zap.Logger

	pollInterval    time.Duration
	maxAttempts     int
	retries         uint64
	initialInterval time.Duration
	maxInterval     time.Duration
}

// NewWorker builds a worker processing tasks with some handler
func NewWorker(backend Backend, handler Handler, opts ...WorkerOption) *Worker {
	w := &Worker{
		backend:         backend,
		handler:         handler,
		l:               zap.NewNop(),
		pollInterval:    DefaultPollInterval,
		maxAttempts:     DefaultMaxAttempts,
		retries:         DefaultRetries,
		initialInterval: defaultInitialInterval,
		maxInterval:     defaultMaxInterval,
	}
	for _, apply := range opts {
		apply(w)
	}
	return w
}

// Run processes tasks until the context is done.
//
// Pending tasks are processed on start, whenever a task is submitted and at every poll interval.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	w.l.Info("queue worker started", zap.Duration("poll", w.pollInterval))
	defer w.l.Info("queue worker stopped")

	for {
		if _, err := w.Drain(ctx); err != nil && ctx.Err() == nil {
			w.l.Error("could not process pending tasks", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-w.backend.Notify():
		}
	}
}

// Drain processes all pending tasks once, and returns the number of tasks successfully processed
func (w *Worker) Drain(ctx context.Context) (int, error) {
	tasks, err := w.backend.Pending(ctx)
	if err != nil {
		return 0, err
	}

	var done int
	for _, task := range tasks {
		if err := ctx.Err(); err != nil {
			return done, err
		}
		if w.process(ctx, task) {
			done++
		}
	}
	return done, nil
}

func (w *Worker) process(ctx context.Context, task Task) bool {
	t0 := time.Now()
	l := w.l.With(
		zap.String("task", task.ID),
		zap.String("kind", string(task.Kind)),
		zap.Stringer("dataset", task.Dataset),
	)

	err := backoff.RetryNotify(
		func() error {
			return w.handler(ctx, task)
		},
		backoff.WithContext(backoff.WithMaxRetries(w.newBackOff(), w.retries), ctx),
		func(err error, next time.Duration) {
			l.Warn("task failed, retrying", zap.Error(err), zap.Duration("next", next))
		},
	)

	if err == nil {
		if ackErr := w.backend.Ack(ctx, task.ID); ackErr != nil {
			l.Error("could not acknowledge task", zap.Error(ackErr))
		}
		l.Info("task done", zap.Duration("elapsed", time.Since(t0)))
		return true
	}

	dead, failErr := w.backend.Fail(ctx, task, err, w.maxAttempts)
	if failErr != nil {
		l.Error("could not record task failure", zap.Error(failErr))
		return false
	}
	if dead {
		l.Error("task given up", zap.Error(err), zap.Int("attempts", task.Attempts+1))
		return false
	}
	l.Warn("task failed", zap.Error(err), zap.Int("attempts", task.Attempts+1))
	return false
}

func (w *Worker) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = w.initialInterval
	b.MaxInterval = w.maxInterval
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}
