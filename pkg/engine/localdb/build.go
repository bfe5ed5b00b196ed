package localdb

import (
	"context"
	"time"

	units "github.com/docker/go-units"
	"github.com/oneconcern/datapush/pkg/model"
	"go.uber.org/zap"
)

// Build rebuilds the manifest of a dataset
func (e *Engine) Build(_ context.Context, ref model.DatasetRef) error {
	unlock := e.lock(ref)
	defer unlock()

	t0 := time.Now()
	idx, meta, err := e.load(ref)
	if err != nil {
		return err
	}

	m := manifest{
		Dataset:  ref.String(),
		Checksum: idx.stamp(meta).Checksum,
		Meta:     len(meta.Entries),
		BuiltAt:  e.now().UTC(),
	}
	for _, entry := range idx.Entries {
		if entry.Hash == "" {
			m.Dirs++
			continue
		}
		m.Files++
		m.Size += entry.Size
	}
	m.HumanSize = units.HumanSize(float64(m.Size))

	if err := writeYAML(e.fs, model.GetBuildManifestPath(e.datasetPath(ref)), m); err != nil {
		return err
	}

	e.l.Info("dataset built",
		zap.Stringer("dataset", ref),
		zap.Int("files", m.Files),
		zap.String("size", m.HumanSize),
		zap.Duration("elapsed", time.Since(t0)),
	)
	return nil
}
