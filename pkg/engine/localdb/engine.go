// Package localdb implements a content-addressed storage engine on a local file system.
//
// Each dataset lives in {root}/{org}/{dataset}. Its index, metadata, objects and build outputs
// are kept in the reserved .ddb directory:
//
//	{dataset}/.ddb/index.yaml
//	{dataset}/.ddb/meta.yaml
//	{dataset}/.ddb/objects/{hash}
//	{dataset}/.ddb/build/manifest.yaml
package localdb

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oneconcern/datapush/pkg/engine"
	"github.com/oneconcern/datapush/pkg/engine/status"
	"github.com/oneconcern/datapush/pkg/fingerprint"
	"github.com/oneconcern/datapush/pkg/model"
	"github.com/oneconcern/datapush/pkg/storage"
	"github.com/oneconcern/datapush/pkg/storage/localfs"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

var _ engine.Engine = &Engine{}

// Option for the local engine
type Option func(*Engine)

// WithLogger sets a logger. The default is a no-op logger
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.l = l
		}
	}
}

// WithStagingFs sets the file system where staged uploads are read from.
// It defaults to the file system of the engine.
func WithStagingFs(fs afero.Fs) Option {
	return func(e *Engine) {
		if fs != nil {
			e.stagingFs = fs
		}
	}
}

// WithFingerprint sets the content hasher
func WithFingerprint(m *fingerprint.Maker) Option {
	return func(e *Engine) {
		if m != nil {
			e.hasher = m
		}
	}
}

// WithClock sets the clock used to timestamp entries and builds
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// Engine is a storage engine keeping datasets on an afero.Fs
type Engine struct {
	fs        afero.Fs
	stagingFs afero.Fs
	root      string
	l         *zap.Logger
	hasher    *fingerprint.Maker
	now       func() time.Time

	mx    sync.Mutex
	locks map[string]*sync.Mutex
}

// New local storage engine, with datasets kept under some root directory
func New(fs afero.Fs, root string, opts ...Option) *Engine {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	e := &Engine{
		fs:     fs,
		root:   root,
		l:      zap.NewNop(),
		hasher: fingerprint.New(),
		now:    time.Now,
		locks:  make(map[string]*sync.Mutex),
	}
	for _, apply := range opts {
		apply(e)
	}
	if e.stagingFs == nil {
		e.stagingFs = e.fs
	}
	e.l = e.l.With(zap.String("engine", e.String()))
	return e
}

func (e *Engine) String() string {
	return "localdb@" + e.root
}

// lock serializes writes to a dataset
func (e *Engine) lock(ref model.DatasetRef) func() {
	e.mx.Lock()
	mx, ok := e.locks[ref.String()]
	if !ok {
		mx = new(sync.Mutex)
		e.locks[ref.String()] = mx
	}
	e.mx.Unlock()

	mx.Lock()
	return mx.Unlock
}

func (e *Engine) datasetPath(ref model.DatasetRef) string {
	return model.GetDatasetPath(e.root, ref)
}

func (e *Engine) objects(ref model.DatasetRef) (storage.Store, error) {
	objectsPath := model.GetObjectsPath(e.datasetPath(ref))
	if err := e.fs.MkdirAll(objectsPath, 0700); err != nil {
		return nil, err
	}
	store, err := localfs.New(afero.NewBasePathFs(e.fs, objectsPath))
	if err != nil {
		return nil, err
	}
	return storage.Instrument(e.l, store), nil
}

// Exists tells if a dataset has been created
func (e *Engine) Exists(_ context.Context, ref model.DatasetRef) (bool, error) {
	if err := ref.Validate(); err != nil {
		return false, err
	}
	_, err := e.fs.Stat(model.GetIndexPath(e.datasetPath(ref)))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Create an empty dataset
func (e *Engine) Create(ctx context.Context, ref model.DatasetRef) error {
	unlock := e.lock(ref)
	defer unlock()

	exists, err := e.Exists(ctx, ref)
	if err != nil {
		return err
	}
	if exists {
		return status.ErrDatasetExists.WrapMessage("dataset %v", ref)
	}

	pth := e.datasetPath(ref)
	if err := writeYAML(e.fs, model.GetMetaPath(pth), metaIndex{Entries: []metaRecord{}}); err != nil {
		return err
	}
	if err := writeYAML(e.fs, model.GetIndexPath(pth), index{Entries: map[string]indexEntry{}}); err != nil {
		return err
	}
	e.l.Info("dataset created", zap.Stringer("dataset", ref))
	return nil
}

func (e *Engine) load(ref model.DatasetRef) (index, metaIndex, error) {
	if err := ref.Validate(); err != nil {
		return index{}, metaIndex{}, err
	}
	pth := e.datasetPath(ref)

	var idx index
	if err := readYAML(e.fs, model.GetIndexPath(pth), &idx); err != nil {
		return index{}, metaIndex{}, err
	}
	if idx.Entries == nil {
		idx.Entries = make(map[string]indexEntry)
	}

	var meta metaIndex
	if err := readYAML(e.fs, model.GetMetaPath(pth), &meta); err != nil {
		return index{}, metaIndex{}, err
	}
	return idx, meta, nil
}

// GetCurrentStamp reads the stamp of a dataset
func (e *Engine) GetCurrentStamp(_ context.Context, ref model.DatasetRef) (model.Stamp, error) {
	idx, meta, err := e.load(ref)
	if err != nil {
		return model.Stamp{}, err
	}
	return idx.stamp(meta), nil
}

// Delta between two stamps
func (e *Engine) Delta(to, from model.Stamp) model.Delta {
	return engine.Diff(to, from)
}

// LocalsPresentByHash tells which contents are already stored for a dataset
func (e *Engine) LocalsPresentByHash(ctx context.Context, ref model.DatasetRef, hashes []string) (map[string]bool, error) {
	res := make(map[string]bool, len(hashes))
	if len(hashes) == 0 {
		return res, nil
	}
	objects, err := e.objects(ref)
	if err != nil {
		return nil, err
	}
	for _, hash := range hashes {
		if hash == "" {
			continue
		}
		has, err := objects.Has(ctx, hash)
		if err != nil {
			return nil, err
		}
		res[hash] = has
	}
	return res, nil
}

// stagedPath yields the location of an uploaded file
func stagedPath(stagingDir, pth string) string {
	return filepath.Join(stagingDir, filepath.FromSlash(pth))
}
