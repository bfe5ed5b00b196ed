package push

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/oneconcern/datapush/pkg/engine"
	"github.com/oneconcern/datapush/pkg/engine/localdb"
	"github.com/oneconcern/datapush/pkg/errors"
	"github.com/oneconcern/datapush/pkg/fingerprint"
	"github.com/oneconcern/datapush/pkg/model"
	"github.com/oneconcern/datapush/pkg/queue"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

const (
	testStorage = "/data"
	testTmp     = "/tmp/push"
)

type fakeClock struct {
	mx  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Now()}
}

func (c *fakeClock) Now() time.Time {
	c.mx.Lock()
	defer c.mx.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mx.Lock()
	defer c.mx.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	fs     afero.Fs
	engine *localdb.Engine
	queue  *queue.Memory
	clock  *fakeClock
	o      *Orchestrator
	ref    model.DatasetRef
}

func setup(t testing.TB, opts ...Option) fixture {
	t.Helper()
	fs := afero.NewMemMapFs()
	clock := newFakeClock()
	eng := localdb.New(fs, testStorage, localdb.WithClock(clock.Now))
	q := queue.NewMemory()

	o, err := New(eng, append([]Option{
		WithFs(fs),
		WithTmpPath(testTmp),
		WithClock(clock.Now),
		WithQueue(q),
	}, opts...)...)
	require.NoError(t, err)

	ref, err := model.NewDatasetRef("acme", "images")
	require.NoError(t, err)

	return fixture{fs: fs, engine: eng, queue: q, clock: clock, o: o, ref: ref}
}

func hashOf(content string) string {
	return fingerprint.New().HexBytes([]byte(content))
}

// clientStamp builds the stamp of a client holding some files, and its serialized form
func clientStamp(t testing.TB, files map[string]string, meta ...string) (model.Stamp, []byte) {
	t.Helper()
	entries := make(map[string]string, len(files))
	for pth, content := range files {
		entries[pth] = hashOf(content)
	}
	stamp := model.NewStamp(entries, meta)
	doc, err := stamp.Marshal()
	require.NoError(t, err)
	return stamp, doc
}

func (f fixture) current(t testing.TB) model.Stamp {
	t.Helper()
	stamp, err := f.engine.GetCurrentStamp(context.Background(), f.ref)
	require.NoError(t, err)
	return stamp
}

// checksum yields the checksum a client passes at init: the one of the current stamp, if the dataset exists
func (f fixture) checksum(t testing.TB) string {
	t.Helper()
	exists, err := f.engine.Exists(context.Background(), f.ref)
	require.NoError(t, err)
	if !exists {
		return ""
	}
	return f.current(t).Checksum
}

func (f fixture) init(t testing.TB, files map[string]string, meta ...string) InitResult {
	t.Helper()
	_, doc := clientStamp(t, files, meta...)
	res, err := f.o.Init(context.Background(), f.ref, doc, f.checksum(t))
	require.NoError(t, err)
	require.False(t, res.PullRequired)
	require.NotEmpty(t, res.Token)
	return res
}

func (f fixture) stage(t testing.TB, token string, files map[string]string, paths []string) {
	t.Helper()
	for _, pth := range paths {
		require.NoError(t, f.o.StageFile(context.Background(), token, pth, bytes.NewBufferString(files[pth])))
	}
}

// push runs a complete push session of a client holding some files
func (f fixture) push(t testing.TB, files map[string]string) CommitResult {
	t.Helper()
	res := f.init(t, files)
	f.stage(t, res.Token, files, res.NeededFiles)
	committed, err := f.o.Commit(context.Background(), res.Token)
	require.NoError(t, err)
	return committed
}

// failingEngine fails on apply
type failingEngine struct {
	*localdb.Engine
}

func (e failingEngine) ApplyDelta(_ context.Context, _ engine.ApplyRequest) (model.Conflicts, error) {
	return nil, errors.New("disk on fire")
}
