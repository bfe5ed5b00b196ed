// Package bdgr implements a durable queue backend on top of dgraph-io/badger/v3.
//
// Pending tasks are stored under the "pending:" prefix, dead letters under the "dead:" prefix.
// Keys are task IDs, which sort by submission time.
package bdgr

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dgraph-io/badger/v3"
	jsoniter "github.com/json-iterator/go"
	"github.com/oneconcern/datapush/pkg/errors"
	"github.com/oneconcern/datapush/pkg/queue"
	"go.uber.org/zap"
)

var (
	_ queue.Backend = &Backend{}

	json = jsoniter.ConfigCompatibleWithStandardLibrary

	pendingPrefix = []byte("pending:")
	deadPrefix    = []byte("dead:")
)

// ErrOpen indicates that the badger database could not be opened
var ErrOpen = errors.New("could not open queue database")

// Option for the badger backend
type Option func(*Backend)

// WithLogger sets a logger
func WithLogger(l *zap.Logger) Option {
	return func(b *Backend) {
		if l != nil {
			b.l = l
		}
	}
}

// InMemory runs the database in memory only, e.g. for tests
func InMemory(enabled bool) Option {
	return func(b *Backend) {
		b.inMemory = enabled
	}
}

// Backend is a durable queue.Backend
type Backend struct {
	db       *badger.DB
	l        *zap.Logger
	inMemory bool
	notify   chan struct{}
	close    sync.Once
}

// Open a badger queue stored at some location
func Open(pth string, opts ...Option) (*Backend, error) {
	b := &Backend{
		l:      zap.NewNop(),
		notify: make(chan struct{}, 1),
	}
	for _, apply := range opts {
		apply(b)
	}

	var options badger.Options
	if b.inMemory {
		options = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(pth, 0700); err != nil {
			return nil, ErrOpen.Wrap(err)
		}
		options = badger.DefaultOptions(pth)
	}

	db, err := badger.Open(options.
		WithLoggingLevel(badger.WARNING).
		WithNumVersionsToKeep(1),
	)
	if err != nil {
		return nil, ErrOpen.Wrap(err)
	}
	b.db = db
	b.l.Info("queue opened", zap.String("path", pth), zap.Bool("inMemory", b.inMemory))
	return b, nil
}

func pendingKey(id string) []byte {
	return append(append([]byte{}, pendingPrefix...), id...)
}

func deadKey(id string) []byte {
	return append(append([]byte{}, deadPrefix...), id...)
}

// update runs a read-write transaction, retrying on transaction conflicts
func (b *Backend) update(fn func(*badger.Txn) error) error {
	return backoff.Retry(func() error {
		err := b.db.Update(fn)
		if err != nil {
			if errors.Is(err, badger.ErrConflict) {
				return err // retry
			}
			return backoff.Permanent(err)
		}
		return nil
	},
		backoff.WithMaxRetries(backoff.NewConstantBackOff(10*time.Millisecond), 10),
	)
}

// Submit a task
func (b *Backend) Submit(_ context.Context, task queue.Task) (queue.Task, error) {
	task = queue.Prepare(task)
	value, err := json.Marshal(task)
	if err != nil {
		return queue.Task{}, err
	}

	if err := b.update(func(txn *badger.Txn) error {
		return txn.Set(pendingKey(task.ID), value)
	}); err != nil {
		return queue.Task{}, b.rewriteError(err)
	}

	queue.Signal(b.notify)
	return task, nil
}

// Pending tasks, oldest first
func (b *Backend) Pending(ctx context.Context) ([]queue.Task, error) {
	return b.list(ctx, pendingPrefix)
}

// DeadLetters lists the tasks which could not be processed
func (b *Backend) DeadLetters(ctx context.Context) ([]queue.Task, error) {
	return b.list(ctx, deadPrefix)
}

func (b *Backend) list(ctx context.Context, prefix []byte) ([]queue.Task, error) {
	var tasks []queue.Task
	err := b.db.View(func(txn *badger.Txn) error {
		iterator := txn.NewIterator(badger.IteratorOptions{
			PrefetchSize:   100,
			PrefetchValues: true,
			Prefix:         prefix,
		})
		defer iterator.Close()

		for iterator.Rewind(); iterator.ValidForPrefix(prefix); iterator.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			value, err := iterator.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			var task queue.Task
			if err := json.Unmarshal(value, &task); err != nil {
				b.l.Warn("skipping undecodable task", zap.ByteString("key", iterator.Item().KeyCopy(nil)), zap.Error(err))
				continue
			}
			tasks = append(tasks, task)
		}
		return nil
	})
	if err != nil {
		return nil, b.rewriteError(err)
	}
	return tasks, nil
}

// Ack removes a processed task
func (b *Backend) Ack(_ context.Context, id string) error {
	err := b.update(func(txn *badger.Txn) error {
		key := pendingKey(id)
		if _, err := txn.Get(key); err != nil {
			return err
		}
		return txn.Delete(key)
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return queue.ErrTaskNotFound.WrapMessage("task %q", id)
		}
		return b.rewriteError(err)
	}
	return nil
}

// Fail records a failed attempt, and moves the task to the dead letters after maxAttempts
func (b *Backend) Fail(_ context.Context, task queue.Task, cause error, maxAttempts int) (bool, error) {
	var dead bool
	err := b.update(func(txn *badger.Txn) error {
		key := pendingKey(task.ID)
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		value, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		var stored queue.Task
		if err := json.Unmarshal(value, &stored); err != nil {
			return err
		}

		var updated queue.Task
		updated, dead = queue.RecordFailure(stored, cause, maxAttempts)
		value, err = json.Marshal(updated)
		if err != nil {
			return err
		}
		if !dead {
			return txn.Set(key, value)
		}
		if err := txn.Delete(key); err != nil {
			return err
		}
		return txn.Set(deadKey(task.ID), value)
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return false, queue.ErrTaskNotFound.WrapMessage("task %q", task.ID)
		}
		return false, b.rewriteError(err)
	}
	return dead, nil
}

// Notify signals newly submitted tasks
func (b *Backend) Notify() <-chan struct{} {
	return b.notify
}

// Close the database
func (b *Backend) Close() error {
	var err error
	b.close.Do(func() {
		err = b.db.Close()
	})
	return err
}

func (b *Backend) rewriteError(err error) error {
	if errors.Is(err, badger.ErrDBClosed) {
		return queue.ErrClosed.Wrap(err)
	}
	return err
}
