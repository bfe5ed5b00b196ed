package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/oneconcern/datapush/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func testRef(t testing.TB) model.DatasetRef {
	ref, err := model.NewDatasetRef("acme", "images")
	require.NoError(t, err)
	return ref
}

func fastOptions() []WorkerOption {
	return []WorkerOption{
		WithBackOff(time.Millisecond, 2*time.Millisecond),
		WithRetries(2),
		WithMaxAttempts(2),
		WithPollInterval(time.Hour),
	}
}

func TestMemorySubmit(t *testing.T) {
	ctx := context.Background()
	q := NewMemory()

	task, err := q.Submit(ctx, NewRebuildTask(testRef(t)))
	require.NoError(t, err)
	assert.NotEmpty(t, task.ID)
	assert.False(t, task.SubmittedAt.IsZero())
	assert.Equal(t, TaskRebuild, task.Kind)

	select {
	case <-q.Notify():
	default:
		t.Fatal("expected a notification on submit")
	}

	pending, err := q.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, task.ID, pending[0].ID)

	require.NoError(t, q.Ack(ctx, task.ID))
	assert.True(t, errors.Is(q.Ack(ctx, task.ID), ErrTaskNotFound))

	require.NoError(t, q.Close())
	_, err = q.Submit(ctx, NewRebuildTask(testRef(t)))
	assert.True(t, errors.Is(err, ErrClosed))
}

func TestDrain(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx := context.Background()
	q := NewMemory()
	ref := testRef(t)

	var processed []string
	w := NewWorker(q, func(_ context.Context, task Task) error {
		processed = append(processed, task.ID)
		return nil
	}, fastOptions()...)

	first, err := q.Submit(ctx, NewRebuildTask(ref))
	require.NoError(t, err)
	second, err := q.Submit(ctx, NewRebuildTask(ref))
	require.NoError(t, err)

	done, err := w.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, done)
	assert.Equal(t, []string{first.ID, second.ID}, processed)

	pending, err := q.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestDrainRetries(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx := context.Background()
	q := NewMemory()

	var calls int32
	w := NewWorker(q, func(_ context.Context, _ Task) error {
		if atomic.AddInt32(&calls, 1) < 3 {
			return errors.New("transient")
		}
		return nil
	}, fastOptions()...)

	_, err := q.Submit(ctx, NewRebuildTask(testRef(t)))
	require.NoError(t, err)

	done, err := w.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, done)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls), "one call and two retries")
}

func TestDrainDeadLetter(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx := context.Background()
	q := NewMemory()
	w := NewWorker(q, func(_ context.Context, _ Task) error {
		return errors.New("always failing")
	}, fastOptions()...)

	task, err := q.Submit(ctx, NewRebuildTask(testRef(t)))
	require.NoError(t, err)

	done, err := w.Drain(ctx)
	require.NoError(t, err)
	assert.Zero(t, done)

	pending, err := q.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 1, pending[0].Attempts)
	assert.Equal(t, "always failing", pending[0].LastError)

	_, err = w.Drain(ctx)
	require.NoError(t, err)

	pending, err = q.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	dead, err := q.DeadLetters(ctx)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, task.ID, dead[0].ID)
	assert.Equal(t, 2, dead[0].Attempts)
}

func TestRun(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx, cancel := context.WithCancel(context.Background())
	q := NewMemory()

	var (
		mx        sync.Mutex
		processed []model.DatasetRef
	)
	handled := make(chan struct{}, 10)
	w := NewWorker(q, func(_ context.Context, task Task) error {
		mx.Lock()
		processed = append(processed, task.Dataset)
		mx.Unlock()
		handled <- struct{}{}
		return nil
	}, fastOptions()...)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.Run(ctx)
	}()

	_, err := q.Submit(ctx, NewRebuildTask(testRef(t)))
	require.NoError(t, err)

	select {
	case <-handled:
	case <-time.After(5 * time.Second):
		t.Fatal("submitted task was not processed")
	}

	cancel()
	wg.Wait()

	mx.Lock()
	defer mx.Unlock()
	require.Len(t, processed, 1)
	assert.Equal(t, testRef(t), processed[0])
}
