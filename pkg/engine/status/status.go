// Package status declares error constants returned by
// implementations of the Engine interface.
package status

import "github.com/oneconcern/datapush/pkg/errors"

var (
	// ErrDatasetNotFound indicates that the dataset is not known to the engine
	ErrDatasetNotFound = errors.New("dataset not found")

	// ErrDatasetExists indicates that the dataset cannot be created because it already exists
	ErrDatasetExists = errors.New("dataset already exists")

	// ErrStaleStamp indicates that the dataset has moved since the delta to apply was computed
	ErrStaleStamp = errors.New("dataset stamp has changed")

	// ErrMissingContent indicates that some content to add is neither uploaded nor stored
	ErrMissingContent = errors.New("missing content")

	// ErrInvalidRequest indicates an apply request that cannot be carried out
	ErrInvalidRequest = errors.New("invalid apply request")

	// ErrContentChanged indicates uploaded content which does not match its declared hash
	ErrContentChanged = errors.New("content does not match its hash")

	// ErrCorruptIndex indicates a dataset index which cannot be read
	ErrCorruptIndex = errors.New("corrupt dataset index")
)
