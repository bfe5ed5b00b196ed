package push

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/oneconcern/datapush/pkg/model"
	"github.com/oneconcern/datapush/pkg/push/status"
	"github.com/oneconcern/datapush/pkg/storage"
	"github.com/oneconcern/datapush/pkg/storage/localfs"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// StagingArea holds the files and metadata uploaded for push sessions, until they are committed.
//
// Each session owns a directory named after its token under the root of the staging area:
//
//	{root}/{token}/adds/{relative path}
//	{root}/{token}/meta.json
//
// Files are written atomically: concurrent uploads to the same path never leave a partial file,
// and the last write wins.
type StagingArea struct {
	fs   afero.Fs
	root string
	l    *zap.Logger
}

// NewStagingArea builds a staging area rooted at some directory
func NewStagingArea(fs afero.Fs, root string, l *zap.Logger) *StagingArea {
	if l == nil {
		l = zap.NewNop()
	}
	return &StagingArea{fs: fs, root: root, l: l}
}

// Root directory of the staging area
func (a *StagingArea) Root() string {
	return a.root
}

// Fs is the file system holding the staging area
func (a *StagingArea) Fs() afero.Fs {
	return a.fs
}

// Path of the staging directory of a session
func (a *StagingArea) Path(token string) string {
	return model.GetStagingPath(a.root, token)
}

// AddsPath is the directory holding the files uploaded for a session
func (a *StagingArea) AddsPath(token string) string {
	return model.GetStagingAddsPath(a.root, token)
}

// Create the staging directory of a session
func (a *StagingArea) Create(token string) error {
	if err := a.fs.MkdirAll(a.AddsPath(token), 0700); err != nil {
		return status.ErrInternal.WrapMessage("creating staging area for %q", token).Wrap(err)
	}
	return nil
}

// Exists tells if the staging directory of a session is present
func (a *StagingArea) Exists(token string) bool {
	ok, err := afero.DirExists(a.fs, a.Path(token))
	return err == nil && ok
}

// Remove the staging directory of a session
func (a *StagingArea) Remove(token string) error {
	if err := a.fs.RemoveAll(a.Path(token)); err != nil {
		return status.ErrInternal.WrapMessage("removing staging area for %q", token).Wrap(err)
	}
	return nil
}

// CleanPath validates the relative path of an uploaded file and returns its canonical form.
//
// Paths escaping the staging directory, absolute paths, paths in the reserved database directory
// and paths clashing with the atomic write area are rejected, as they are in stamps.
func CleanPath(relPath string) (string, error) {
	cleaned, err := model.CleanEntryPath(relPath)
	if err != nil {
		return "", status.ErrBadRequest.Wrap(err)
	}
	return cleaned, nil
}

// WriteFile stores an uploaded file in the staging directory of a session.
//
// It returns the canonical relative path of the file and the number of bytes written.
func (a *StagingArea) WriteFile(ctx context.Context, token, relPath string, r io.Reader) (string, int64, error) {
	cleaned, err := CleanPath(relPath)
	if err != nil {
		return "", 0, err
	}
	if !a.Exists(token) {
		return "", 0, status.ErrUnknownToken.WrapMessage("no staging area for %q", token)
	}

	adds, err := a.adds(token)
	if err != nil {
		return "", 0, err
	}

	counter := &countingReader{r: r}
	if err := adds.Put(ctx, cleaned, counter, storage.OverWrite); err != nil {
		return "", 0, status.ErrInternal.WrapMessage("staging %q", cleaned).Wrap(err)
	}
	a.l.Debug("file staged", zap.String("token", token), zap.String("path", cleaned), zap.Int64("size", counter.n))
	return cleaned, counter.n, nil
}

// WriteMeta replaces the metadata patch of a session
func (a *StagingArea) WriteMeta(token string, doc []byte) error {
	if !a.Exists(token) {
		return status.ErrUnknownToken.WrapMessage("no staging area for %q", token)
	}
	target := model.GetStagingMetaPath(a.root, token)
	tmp := target + "." + model.NewToken()
	if err := afero.WriteFile(a.fs, tmp, doc, 0600); err != nil {
		_ = a.fs.Remove(tmp)
		return status.ErrInternal.WrapMessage("staging metadata for %q", token).Wrap(err)
	}
	if err := a.fs.Rename(tmp, target); err != nil {
		_ = a.fs.Remove(tmp)
		return status.ErrInternal.WrapMessage("staging metadata for %q", token).Wrap(err)
	}
	return nil
}

// Dir describes a staging directory
type Dir struct {
	Token   string
	ModTime time.Time
}

// List the staging directories present under the root
func (a *StagingArea) List() ([]Dir, error) {
	infos, err := afero.ReadDir(a.fs, a.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, status.ErrInternal.WrapMessage("listing staging areas").Wrap(err)
	}
	dirs := make([]Dir, 0, len(infos))
	for _, info := range infos {
		if !info.IsDir() {
			continue
		}
		dirs = append(dirs, Dir{Token: info.Name(), ModTime: info.ModTime()})
	}
	return dirs, nil
}

func (a *StagingArea) adds(token string) (storage.Store, error) {
	store, err := localfs.New(afero.NewBasePathFs(a.fs, a.AddsPath(token)))
	if err != nil {
		return nil, status.ErrInternal.WrapMessage("opening staging area for %q", token).Wrap(err)
	}
	return store, nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
