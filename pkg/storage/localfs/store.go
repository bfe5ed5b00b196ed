// Copyright © 2018 One Concern

package localfs

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/oneconcern/datapush/pkg/model"
	"github.com/oneconcern/datapush/pkg/storage"
	"github.com/oneconcern/datapush/pkg/storage/status"
	"github.com/segmentio/ksuid"
	"github.com/spf13/afero"
)

/* thread-safe local storage implementation.
 * atomic Put()s rely on the atomicity of afero.Fs.Rename()
 * for those filesystems where Rename() is thread-safe: files are written in a staging area,
 * then Rename()d into place.
 */

// PutStageName is the reserved top-level directory where objects are written before being moved into place
const PutStageName = model.WriteStageDir

// IsReservedKey tells if a key conflicts with the put staging area
func IsReservedKey(key string) bool {
	return maybeInvalidKey(key) != nil
}

func maybeInvalidKey(key string) error {
	const pathSepString = string(os.PathSeparator)
	trimmed := strings.TrimLeft(filepath.ToSlash(key), "/")
	if trimmed == "" {
		return status.ErrInvalidKey.WrapMessage("empty key")
	}
	pathComponents := strings.Split(filepath.FromSlash(trimmed), pathSepString)
	if pathComponents[0] == PutStageName {
		return status.ErrInvalidKey.WrapMessage("key %q conflicts with put staging area name %q", key, PutStageName)
	}
	return nil
}

func filterInvalidKeys(ks []string) []string {
	ksFiltered := ks[:0]
	for _, key := range ks {
		if err := maybeInvalidKey(key); err == nil {
			ksFiltered = append(ksFiltered, key)
		}
	}
	for i := len(ksFiltered); i < len(ks); i++ {
		ks[i] = ""
	}
	return ksFiltered
}

// New creates a local file system backed store, with atomic puts.
//
// The staging area used to carry out atomic puts lives within the afero.Fs itself.
func New(fs afero.Fs) (storage.Store, error) {
	if fs == nil {
		fs = afero.NewBasePathFs(afero.NewOsFs(), filepath.Join(".datapush", "objects"))
	}
	if err := fs.MkdirAll(PutStageName, 0700); err != nil {
		return nil, status.ErrStorageIO.WrapMessage("ensuring put staging directory %q", PutStageName).Wrap(err)
	}
	return &localFS{
		fs: fs,
	}, nil
}

type localFS struct {
	fs afero.Fs
}

func (l *localFS) Has(_ context.Context, key string) (bool, error) {
	if err := maybeInvalidKey(key); err != nil {
		return false, err
	}
	fi, err := l.fs.Stat(key)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, status.ErrStorageIO.Wrap(err)
	}

	return !fi.IsDir(), nil
}

func (l *localFS) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	has, err := l.Has(ctx, key)
	if err != nil {
		return nil, err
	}
	if !has {
		return nil, status.ErrNotExists.WrapMessage("key %q", key)
	}
	f, err := l.fs.Open(key)
	if err != nil {
		return nil, status.ErrStorageIO.Wrap(err)
	}
	return f, nil
}

func (l *localFS) Put(ctx context.Context, key string, source io.Reader, exclusive bool) error {
	if err := maybeInvalidKey(key); err != nil {
		return err
	}
	if exclusive {
		has, err := l.Has(ctx, key)
		if err != nil {
			return err
		}
		if has {
			return status.ErrExists.WrapMessage("key %q", key)
		}
	}

	// concurrent puts on the same key never share their staged copy: the last rename wins
	putStageKey := filepath.Join(PutStageName, key+"."+ksuid.New().String())
	if err := l.write(putStageKey, source); err != nil {
		_ = l.fs.Remove(putStageKey)
		return err
	}

	if err := l.ensureDir(key); err != nil {
		_ = l.fs.Remove(putStageKey)
		return err
	}
	if err := l.fs.Rename(putStageKey, key); err != nil {
		_ = l.fs.Remove(putStageKey)
		return status.ErrStorageIO.WrapMessage("moving %q into place", key).Wrap(err)
	}
	return nil
}

func (l *localFS) write(key string, source io.Reader) error {
	if err := l.ensureDir(key); err != nil {
		return err
	}
	target, err := l.fs.OpenFile(key, os.O_CREATE|os.O_WRONLY|os.O_TRUNC|os.O_EXCL, 0600)
	if err != nil {
		return status.ErrStorageIO.WrapMessage("create record for %q", key).Wrap(err)
	}
	if _, err = io.Copy(target, source); err != nil {
		_ = target.Close()
		return status.ErrStorageIO.WrapMessage("write record for %q", key).Wrap(err)
	}
	if err = target.Close(); err != nil {
		return status.ErrStorageIO.WrapMessage("close record for %q", key).Wrap(err)
	}
	return nil
}

// Rename() doesn't create directories automatically
func (l *localFS) ensureDir(key string) error {
	dir := filepath.Dir(key)
	if dir == "" || dir == "." {
		return nil
	}
	if err := l.fs.MkdirAll(dir, 0700); err != nil {
		return status.ErrStorageIO.WrapMessage("ensuring directories for %q", key).Wrap(err)
	}
	return nil
}

func (l *localFS) Delete(_ context.Context, key string) error {
	if err := maybeInvalidKey(key); err != nil {
		return err
	}
	if err := l.fs.Remove(key); err != nil && !os.IsNotExist(err) {
		return status.ErrStorageIO.WrapMessage("removing %q", key).Wrap(err)
	}
	return nil
}

func (l *localFS) Keys(ctx context.Context) ([]string, error) {
	return l.KeysPrefix(ctx, "")
}

// KeysPrefix lists the sorted keys starting with some prefix
func (l *localFS) KeysPrefix(_ context.Context, prefix string) ([]string, error) {
	const root = "."
	var res []string
	e := afero.Walk(l.fs, root, func(pth string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if pth == root {
			return nil
		}
		if info.IsDir() {
			if info.Name() == PutStageName {
				return filepath.SkipDir
			}
			return nil
		}
		key := filepath.ToSlash(strings.TrimPrefix(pth, string(os.PathSeparator)))
		if strings.HasPrefix(key, prefix) {
			res = append(res, key)
		}
		return nil
	})
	if e != nil {
		return nil, status.ErrStorageIO.Wrap(e)
	}
	sort.Strings(res)
	return filterInvalidKeys(res), nil
}

// Clear removes all objects, but keeps the put staging area
func (l *localFS) Clear(_ context.Context) error {
	entries, err := afero.ReadDir(l.fs, ".")
	if err != nil {
		return status.ErrStorageIO.Wrap(err)
	}
	for _, entry := range entries {
		if entry.Name() == PutStageName {
			continue
		}
		if err := l.fs.RemoveAll(entry.Name()); err != nil {
			return status.ErrStorageIO.WrapMessage("removing %q", entry.Name()).Wrap(err)
		}
	}
	return nil
}

func (l *localFS) String() string {
	const localfs = "localfs"
	switch fs := l.fs.(type) {
	case *afero.BasePathFs:
		pp, err := fs.RealPath("")
		if err != nil {
			return localfs
		}
		return localfs + "@" + pp
	default:
		return localfs
	}
}
