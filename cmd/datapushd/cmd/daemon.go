package cmd

import (
	"context"
	"os"
	"path/filepath"

	"github.com/nightlyone/lockfile"
	"github.com/oneconcern/datapush/pkg/engine/localdb"
	"github.com/oneconcern/datapush/pkg/errors"
	"github.com/oneconcern/datapush/pkg/model"
	"github.com/oneconcern/datapush/pkg/push"
	"github.com/oneconcern/datapush/pkg/queue"
	"github.com/oneconcern/datapush/pkg/queue/bdgr"
	"github.com/oneconcern/datapush/pkg/web"
	"github.com/spf13/afero"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const lockName = ".datapushd.lock"

// ErrUnsupportedTask is returned when the rebuild queue holds a task the daemon does not know about
var ErrUnsupportedTask = errors.New("unsupported task")

// ErrStorageLocked is returned when another daemon serves the same storage root
var ErrStorageLocked = errors.New("storage is locked by another daemon")

// daemon wires the push orchestrator with its storage, rebuild queue, garbage collector and HTTP server
type daemon struct {
	cfg     *Config
	l       *zap.Logger
	lock    lockfile.Lockfile
	engine  *localdb.Engine
	backend *bdgr.Backend
	pusher  *push.Orchestrator
	worker  *queue.Worker
	gc      *push.GarbageCollector
	server  *web.Server
}

func newDaemon(cfg *Config, l *zap.Logger) (*daemon, error) {
	if l == nil {
		l = zap.NewNop()
	}
	maxUpload, err := cfg.maxUploadBytes()
	if err != nil {
		return nil, err
	}

	d := &daemon{cfg: cfg, l: l}
	if err = d.acquire(); err != nil {
		return nil, err
	}
	fs := afero.NewOsFs()
	d.engine = localdb.New(fs, cfg.StoragePath, localdb.WithLogger(l.Named("engine")))

	d.backend, err = bdgr.Open(cfg.queuePath(), bdgr.WithLogger(l.Named("queue")))
	if err != nil {
		_ = d.lock.Unlock()
		return nil, err
	}

	d.pusher, err = push.New(d.engine,
		push.WithLogger(l.Named("push")),
		push.WithFs(fs),
		push.WithTmpPath(cfg.TmpPath),
		push.WithAllowCreate(!cfg.SingleDB),
		push.WithMergeStrategy(model.MergeStrategy(cfg.MergeStrategy)),
		push.WithConcurrencyMode(model.ConcurrencyMode(cfg.ConcurrencyMode)),
		push.WithSessionTTL(cfg.SessionTTL),
		push.WithQueue(d.backend),
		push.WithMetrics(cfg.Metrics),
	)
	if err != nil {
		_ = d.Close()
		return nil, err
	}

	workerOpts := []queue.WorkerOption{
		queue.WithLogger(l.Named("worker")),
		queue.WithPollInterval(cfg.PollInterval),
		queue.WithMaxAttempts(cfg.MaxAttempts),
	}
	if cfg.Retries >= 0 {
		workerOpts = append(workerOpts, queue.WithRetries(uint64(cfg.Retries)))
	}
	d.worker = queue.NewWorker(d.backend, d.handle, workerOpts...)

	d.gc = d.pusher.GarbageCollector(push.WithInterval(cfg.GCInterval))

	serverOpts := []web.Option{
		web.WithLogger(l.Named("http")),
		web.WithMaxUploadSize(maxUpload),
	}
	if cfg.AuthToken != "" {
		serverOpts = append(serverOpts, web.WithAuthorizer(web.TokenAuthorizer(cfg.AuthToken)))
	}
	d.server = web.NewServer(d.pusher, serverOpts...)

	return d, nil
}

// acquire locks the storage root, so that a single daemon serves it
func (d *daemon) acquire() error {
	root, err := filepath.Abs(d.cfg.StoragePath)
	if err != nil {
		return ErrInvalidConfig.WrapMessage("storage-path").Wrap(err)
	}
	if err = os.MkdirAll(root, 0700); err != nil {
		return err
	}
	d.lock, err = lockfile.New(filepath.Join(root, lockName))
	if err != nil {
		return err
	}
	if err = d.lock.TryLock(); err != nil {
		return ErrStorageLocked.WrapMessage("%s", root).Wrap(err)
	}
	return nil
}

// handle processes the tasks of the rebuild queue
func (d *daemon) handle(ctx context.Context, task queue.Task) error {
	switch task.Kind {
	case queue.TaskRebuild:
		return d.engine.Build(ctx, task.Dataset)
	default:
		return ErrUnsupportedTask.WrapMessage("kind %q", task.Kind)
	}
}

// run serves push requests until the context is done.
//
// The rebuild worker and the garbage collector run in the background and are stopped with the server.
func (d *daemon) run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		d.worker.Run(gctx)
		return nil
	})
	g.Go(func() error {
		d.gc.Run(gctx)
		return nil
	})
	g.Go(func() error {
		d.l.Info("serving push requests",
			zap.String("listen", d.cfg.Listen),
			zap.String("storage", d.cfg.StoragePath),
			zap.String("engine", d.engine.String()),
		)
		return d.server.ListenAndServe(gctx, d.cfg.Listen)
	})
	return g.Wait()
}

func (d *daemon) Close() error {
	err := d.backend.Close()
	if unlockErr := d.lock.Unlock(); err == nil {
		err = unlockErr
	}
	return err
}
