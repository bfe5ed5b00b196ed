// Package engine defines the storage engine driven by push sessions.
//
// A storage engine owns the content state of datasets: it computes stamps and deltas,
// tells which contents are already stored, applies deltas and rebuilds derived assets.
package engine

import (
	"context"

	"github.com/oneconcern/datapush/pkg/model"
)

// ApplyRequest carries everything needed to apply a delta to a dataset
type ApplyRequest struct {
	Dataset model.DatasetRef
	Delta   model.Delta

	// StagingDir is the directory holding uploaded files, laid out by their relative path
	StagingDir string

	// Meta is the metadata patch uploaded with the push, if any
	Meta model.MetaPatch

	Strategy model.MergeStrategy

	// Expected is the checksum of the dataset stamp the delta was computed against.
	// When set, the engine refuses to apply the delta if the dataset has moved since.
	Expected string
}

// Engine knows how to manage the content state of datasets
type Engine interface {
	String() string

	// Exists tells if a dataset is known
	Exists(context.Context, model.DatasetRef) (bool, error)

	// Create an empty dataset
	Create(context.Context, model.DatasetRef) error

	// GetCurrentStamp reads the stamp of the current state of a dataset
	GetCurrentStamp(context.Context, model.DatasetRef) (model.Stamp, error)

	// Delta lists the operations turning the "from" state into the "to" state
	Delta(to, from model.Stamp) model.Delta

	// LocalsPresentByHash tells which content hashes are already stored for a dataset
	LocalsPresentByHash(context.Context, model.DatasetRef, []string) (map[string]bool, error)

	// VerifyStaged checks the files uploaded in a staging directory against the hash declared for them.
	// Mismatches are reported as conflicts.
	VerifyStaged(ctx context.Context, stagingDir string, adds []model.AddEntry) (model.Conflicts, error)

	// ApplyDelta applies a delta to a dataset.
	//
	// Conflicts are detected before any change is made: a non-empty list of conflicts
	// means that the dataset has not been modified.
	ApplyDelta(context.Context, ApplyRequest) (model.Conflicts, error)

	// Build rebuilds the derived assets of a dataset
	Build(context.Context, model.DatasetRef) error
}
