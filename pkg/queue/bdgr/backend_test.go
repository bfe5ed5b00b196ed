package bdgr

import (
	"context"
	"errors"
	"testing"

	"github.com/oneconcern/datapush/pkg/model"
	"github.com/oneconcern/datapush/pkg/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTask(t testing.TB) queue.Task {
	ref, err := model.NewDatasetRef("acme", "images")
	require.NoError(t, err)
	return queue.NewRebuildTask(ref)
}

func openTest(t testing.TB) *Backend {
	b, err := Open("", InMemory(true))
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestSubmitAck(t *testing.T) {
	ctx := context.Background()
	b := openTest(t)

	task, err := b.Submit(ctx, testTask(t))
	require.NoError(t, err)
	require.NotEmpty(t, task.ID)

	select {
	case <-b.Notify():
	default:
		t.Fatal("expected a notification on submit")
	}

	pending, err := b.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, task.ID, pending[0].ID)
	assert.Equal(t, "acme/images", pending[0].Dataset.String())
	assert.Equal(t, queue.TaskRebuild, pending[0].Kind)

	require.NoError(t, b.Ack(ctx, task.ID))
	pending, err = b.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	err = b.Ack(ctx, task.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, queue.ErrTaskNotFound))
}

func TestFail(t *testing.T) {
	ctx := context.Background()
	b := openTest(t)

	task, err := b.Submit(ctx, testTask(t))
	require.NoError(t, err)

	dead, err := b.Fail(ctx, task, errors.New("boom"), 2)
	require.NoError(t, err)
	assert.False(t, dead)

	pending, err := b.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 1, pending[0].Attempts)
	assert.Equal(t, "boom", pending[0].LastError)

	dead, err = b.Fail(ctx, pending[0], errors.New("boom again"), 2)
	require.NoError(t, err)
	assert.True(t, dead)

	pending, err = b.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	letters, err := b.DeadLetters(ctx)
	require.NoError(t, err)
	require.Len(t, letters, 1)
	assert.Equal(t, task.ID, letters[0].ID)
	assert.Equal(t, 2, letters[0].Attempts)
	assert.Equal(t, "boom again", letters[0].LastError)

	_, err = b.Fail(ctx, task, errors.New("no more"), 2)
	assert.True(t, errors.Is(err, queue.ErrTaskNotFound))
}

func TestDurable(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	b, err := Open(dir)
	require.NoError(t, err)
	task, err := b.Submit(ctx, testTask(t))
	require.NoError(t, err)
	require.NoError(t, b.Close())

	_, err = b.Submit(ctx, testTask(t))
	require.Error(t, err)
	assert.True(t, errors.Is(err, queue.ErrClosed))

	reopened, err := Open(dir)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	pending, err := reopened.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, task.ID, pending[0].ID)
}

func TestWorkerOnBadger(t *testing.T) {
	ctx := context.Background()
	b := openTest(t)

	var seen []string
	w := queue.NewWorker(b, func(_ context.Context, task queue.Task) error {
		seen = append(seen, task.Dataset.String())
		return nil
	})

	_, err := b.Submit(ctx, testTask(t))
	require.NoError(t, err)

	done, err := w.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, done)
	assert.Equal(t, []string{"acme/images"}, seen)
}
