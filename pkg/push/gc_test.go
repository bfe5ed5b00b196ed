package push

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/oneconcern/datapush/pkg/errors"
	"github.com/oneconcern/datapush/pkg/model"
	"github.com/oneconcern/datapush/pkg/push/status"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestSweep(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	gc := f.o.GarbageCollector()

	files := map[string]string{"a.txt": "alpha"}
	abandoned := f.init(t, files)
	f.stage(t, abandoned.Token, files, abandoned.NeededFiles)
	require.NoError(t, f.fs.MkdirAll(f.o.Staging().AddsPath("orphan"), 0700))

	report, err := gc.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Sessions)
	assert.Zero(t, report.Orphans)
	assert.True(t, f.o.Staging().Exists(abandoned.Token))
	assert.True(t, f.o.Staging().Exists("orphan"))

	f.clock.Advance(DefaultSessionTTL + time.Minute)
	fresh := f.init(t, files)

	err = f.o.StageFile(ctx, abandoned.Token, "a.txt", bytes.NewBufferString("alpha"))
	assert.True(t, errors.Is(err, status.ErrUnknownToken), "an expired session is unreachable before it is reclaimed")

	report, err = gc.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Sessions)
	assert.Equal(t, 1, report.Orphans)

	assert.False(t, f.o.Staging().Exists(abandoned.Token))
	assert.False(t, f.o.Staging().Exists("orphan"))
	assert.False(t, f.o.Sessions().Has(abandoned.Token))

	_, err = f.o.Commit(ctx, abandoned.Token)
	assert.True(t, errors.Is(err, status.ErrUnknownToken))

	assert.True(t, f.o.Staging().Exists(fresh.Token), "live sessions are kept")
	_, err = f.o.Sessions().Get(fresh.Token)
	require.NoError(t, err)

	report, err = gc.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Sessions+report.Orphans, "sweeping is idempotent")
}

func TestSweepCommitting(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	gc := f.o.GarbageCollector(WithTTL(time.Hour))

	res := f.init(t, map[string]string{"a.txt": "alpha"})
	f.stage(t, res.Token, map[string]string{"a.txt": "alpha"}, []string{"a.txt"})
	_, err := f.o.Sessions().Transition(res.Token, model.SessionCommitting)
	require.NoError(t, err)

	f.clock.Advance(2 * time.Hour)
	report, err := gc.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Sessions, "sessions are reclaimed regardless of their state")
	assert.False(t, f.o.Staging().Exists(res.Token))
}

func TestGarbageCollectorRun(t *testing.T) {
	defer goleak.VerifyNone(t,
		goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"),
	)

	f := setup(t)
	gc := f.o.GarbageCollector(WithInterval(5*time.Millisecond), WithTTL(time.Minute))
	res := f.init(t, map[string]string{"a.txt": "alpha"})
	f.clock.Advance(2 * time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		gc.Run(ctx)
	}()

	require.Eventually(t, func() bool {
		return !f.o.Staging().Exists(res.Token)
	}, 5*time.Second, 5*time.Millisecond)

	cancel()
	wg.Wait()
	assert.Zero(t, f.o.Sessions().Len())
}
