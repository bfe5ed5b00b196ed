package localdb

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/oneconcern/datapush/pkg/engine"
	"github.com/oneconcern/datapush/pkg/engine/status"
	"github.com/oneconcern/datapush/pkg/errors"
	"github.com/oneconcern/datapush/pkg/fingerprint"
	"github.com/oneconcern/datapush/pkg/model"
	"github.com/oneconcern/datapush/pkg/storage"
	"go.uber.org/zap"
)

// conflict reasons
const (
	reasonModifiedUpstream = "modified upstream"
	reasonRemovedUpstream  = "removed upstream"
	reasonAddedUpstream    = "added upstream"
	reasonHashMismatch     = "hash mismatch"
)

// plannedAdd is an add operation with the resolved source of its content
type plannedAdd struct {
	model.AddEntry
	staged string
	size   int64
}

// ApplyDelta applies a delta to a dataset.
//
// All checks are carried out before the dataset is modified: when conflicts are returned, nothing is written.
func (e *Engine) ApplyDelta(ctx context.Context, req engine.ApplyRequest) (conflicts model.Conflicts, err error) {
	strategy := req.Strategy
	if strategy == "" {
		strategy = model.KeepTheirs
	}
	if !strategy.IsValid() {
		return nil, status.ErrInvalidRequest.WrapMessage("unsupported merge strategy %q", strategy)
	}

	unlock := e.lock(req.Dataset)
	defer unlock()

	t0 := time.Now()
	defer func() {
		e.l.Info("apply delta",
			zap.Stringer("dataset", req.Dataset),
			zap.Stringer("strategy", strategy),
			zap.Int("adds", len(req.Delta.Adds)),
			zap.Int("removes", len(req.Delta.Removes)),
			zap.Int("conflicts", len(conflicts)),
			zap.Duration("elapsed", time.Since(t0)),
			zap.Error(err),
		)
	}()

	idx, meta, err := e.load(req.Dataset)
	if err != nil {
		return nil, err
	}

	if req.Expected != "" {
		if current := idx.stamp(meta); current.Checksum != req.Expected {
			return nil, status.ErrStaleStamp.WrapMessage("dataset %v: expected %q, found %q", req.Dataset, req.Expected, current.Checksum)
		}
	}

	objects, err := e.objects(req.Dataset)
	if err != nil {
		return nil, err
	}

	conflicts = e.checkLiveState(idx, req.Delta, strategy)

	adds, err := e.planAdds(ctx, objects, req)
	if err != nil {
		return nil, err
	}

	metaRecords, err := planMeta(meta, req)
	if err != nil {
		return nil, err
	}

	if len(conflicts) > 0 {
		sort.Slice(conflicts, func(i, j int) bool { return conflicts[i].Path < conflicts[j].Path })
		return conflicts, nil
	}

	// uploads are hashed while copied into the object store.
	// Objects stored before a mismatch is found are left unreferenced.
	for _, add := range adds {
		if add.staged == "" {
			continue
		}
		err := e.storeObject(ctx, objects, add)
		switch {
		case errors.Is(err, status.ErrContentChanged):
			e.l.Warn("uploaded content does not match its declared hash", zap.String("path", add.Path), zap.Error(err))
			conflicts = append(conflicts, model.Conflict{Path: add.Path, Reason: reasonHashMismatch})
		case err != nil:
			return nil, err
		}
	}
	if len(conflicts) > 0 {
		sort.Slice(conflicts, func(i, j int) bool { return conflicts[i].Path < conflicts[j].Path })
		return conflicts, nil
	}

	// past this point, the dataset is modified
	now := e.now().UTC()
	for _, add := range adds {
		if add.IsDir() {
			idx.Entries[add.Path] = indexEntry{Mtime: now}
			continue
		}
		idx.Entries[add.Path] = indexEntry{Hash: add.Hash, Size: add.size, Mtime: now}
	}
	for _, rm := range req.Delta.Removes {
		delete(idx.Entries, rm.Path)
	}

	pth := e.datasetPath(req.Dataset)
	if err := writeYAML(e.fs, model.GetMetaPath(pth), metaIndexFrom(metaRecords)); err != nil {
		return nil, err
	}
	if err := writeYAML(e.fs, model.GetIndexPath(pth), idx); err != nil {
		return nil, err
	}
	return nil, nil
}

// checkLiveState verifies that every touched path is still in the state the delta was computed against.
//
// With KeepOurs, the pushed changes win and no conflict is reported.
// With KeepTheirs, an upstream change that converges with the pushed one is tolerated.
// With DontMerge, any upstream change is a conflict.
func (e *Engine) checkLiveState(idx index, delta model.Delta, strategy model.MergeStrategy) model.Conflicts {
	if strategy == model.KeepOurs {
		return nil
	}

	var conflicts model.Conflicts
	for _, add := range delta.Adds {
		live, exists := idx.Entries[add.Path]
		switch {
		case exists && live.Hash == add.Previous:
			continue
		case !exists && add.Previous == "":
			continue
		case exists && live.Hash == add.Hash && strategy == model.KeepTheirs:
			continue
		case !exists:
			conflicts = append(conflicts, model.Conflict{Path: add.Path, Reason: reasonRemovedUpstream})
		case add.Previous == "":
			conflicts = append(conflicts, model.Conflict{Path: add.Path, Reason: reasonAddedUpstream})
		default:
			conflicts = append(conflicts, model.Conflict{Path: add.Path, Reason: reasonModifiedUpstream})
		}
	}

	for _, rm := range delta.Removes {
		live, exists := idx.Entries[rm.Path]
		switch {
		case exists && live.Hash == rm.Hash:
			continue
		case !exists && strategy == model.KeepTheirs:
			continue
		case !exists:
			conflicts = append(conflicts, model.Conflict{Path: rm.Path, Reason: reasonRemovedUpstream})
		default:
			conflicts = append(conflicts, model.Conflict{Path: rm.Path, Reason: reasonModifiedUpstream})
		}
	}
	return conflicts
}

// planAdds resolves the content of every file to add, either from uploads or from stored objects
func (e *Engine) planAdds(ctx context.Context, objects storage.Store, req engine.ApplyRequest) ([]plannedAdd, error) {
	var missing []string
	adds := make([]plannedAdd, 0, len(req.Delta.Adds))

	for _, add := range req.Delta.Adds {
		planned := plannedAdd{AddEntry: add}
		if add.IsDir() {
			adds = append(adds, planned)
			continue
		}

		if req.StagingDir != "" {
			source := stagedPath(req.StagingDir, add.Path)
			fi, err := e.stagingFs.Stat(source)
			switch {
			case err == nil && !fi.IsDir():
				planned.staged = source
				planned.size = fi.Size()
				adds = append(adds, planned)
				continue
			case err != nil && !os.IsNotExist(err):
				return nil, err
			}
		}

		has, err := objects.Has(ctx, add.Hash)
		if err != nil {
			return nil, err
		}
		if !has {
			missing = append(missing, add.Path)
			continue
		}
		planned.size = e.objectSize(req.Dataset, add.Hash)
		adds = append(adds, planned)
	}

	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, status.ErrMissingContent.WrapMessage("files not uploaded: %v", missing)
	}
	return adds, nil
}

// VerifyStaged checks uploaded files against their declared hash.
//
// Adds without an uploaded file are skipped.
func (e *Engine) VerifyStaged(_ context.Context, stagingDir string, adds []model.AddEntry) (model.Conflicts, error) {
	var conflicts model.Conflicts
	for _, add := range adds {
		if add.IsDir() {
			continue
		}
		source := stagedPath(stagingDir, add.Path)
		fi, err := e.stagingFs.Stat(source)
		if os.IsNotExist(err) || err == nil && fi.IsDir() {
			continue
		}
		if err != nil {
			return nil, err
		}

		hash, err := e.hashFile(source)
		if err != nil {
			return nil, err
		}
		if hash != add.Hash {
			e.l.Warn("uploaded content does not match its declared hash",
				zap.String("path", add.Path), zap.String("declared", add.Hash), zap.String("actual", hash))
			conflicts = append(conflicts, model.Conflict{Path: add.Path, Reason: reasonHashMismatch})
		}
	}
	sort.Slice(conflicts, func(i, j int) bool { return conflicts[i].Path < conflicts[j].Path })
	return conflicts, nil
}

// planMeta resolves the metadata entries resulting from the delta
func planMeta(meta metaIndex, req engine.ApplyRequest) (map[string]metaRecord, error) {
	records := meta.byID()
	uploaded := req.Meta.ByID()

	var missing []string
	for _, id := range req.Delta.MetaAdds {
		if _, ok := records[id]; ok {
			continue
		}
		entry, ok := uploaded[id]
		if !ok {
			missing = append(missing, id)
			continue
		}
		records[id] = metaRecord{ID: entry.ID, Key: entry.Key, Path: entry.Path, Data: string(entry.Data)}
	}
	if len(missing) > 0 {
		return nil, status.ErrMissingContent.WrapMessage("metadata entries not uploaded: %v", missing)
	}

	for _, id := range req.Delta.MetaRemoves {
		delete(records, id)
	}
	return records, nil
}

func (e *Engine) hashFile(pth string) (string, error) {
	f, err := e.stagingFs.Open(pth)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return e.hasher.Hex(f)
}

// storeObject copies an uploaded file into the object store.
//
// The content is hashed while copied: when it does not match the declared hash, the object is not stored
// and an ErrContentChanged error is returned.
func (e *Engine) storeObject(ctx context.Context, objects storage.Store, add plannedAdd) error {
	has, err := objects.Has(ctx, add.Hash)
	if err != nil {
		return err
	}
	if has {
		return nil
	}

	f, err := e.stagingFs.Open(add.staged)
	if err != nil {
		return err
	}
	defer f.Close()
	return objects.Put(ctx, add.Hash, &verifyingReader{
		r:        f,
		w:        e.hasher.NewWriter(),
		path:     add.Path,
		expected: add.Hash,
	}, storage.OverWrite)
}

// verifyingReader fails the final read of a stream if its content does not match the expected hash
type verifyingReader struct {
	r        io.Reader
	w        *fingerprint.Writer
	path     string
	expected string
}

func (v *verifyingReader) Read(p []byte) (int, error) {
	n, err := v.r.Read(p)
	if n > 0 {
		_, _ = v.w.Write(p[:n])
	}
	if err != io.EOF {
		return n, err
	}

	hash, herr := v.w.Hex()
	if herr != nil {
		return n, herr
	}
	if hash != v.expected {
		return n, status.ErrContentChanged.WrapMessage("%s: declared %q, found %q", v.path, v.expected, hash)
	}
	return n, io.EOF
}

func (e *Engine) objectSize(ref model.DatasetRef, hash string) int64 {
	fi, err := e.fs.Stat(filepath.Join(model.GetObjectsPath(e.datasetPath(ref)), hash))
	if err != nil {
		return 0
	}
	return fi.Size()
}
