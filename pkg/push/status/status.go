// Package status declares the errors returned by push sessions.
//
// Every error returned by the push orchestrator matches one of the sentinels declared here,
// which may be tested with errors.Is. The kind of an error is a stable, machine readable name
// conveyed to clients.
package status

import (
	"strings"

	"github.com/oneconcern/datapush/pkg/errors"
	"github.com/oneconcern/datapush/pkg/model"
)

var (
	// ErrBadRequest indicates a malformed stamp, metadata document, path or request
	ErrBadRequest = errors.New("bad request")

	// ErrPushNotAllowed indicates that creating a dataset by push is forbidden in this deployment
	ErrPushNotAllowed = errors.New("push not allowed")

	// ErrUnauthorized indicates a request rejected by access control
	ErrUnauthorized = errors.New("unauthorized")

	// ErrMissingFiles indicates a commit attempted while some required content has not been uploaded
	ErrMissingFiles = errors.New("missing files")

	// ErrMergeConflict indicates that changes made upstream could not be reconciled with the pushed ones
	ErrMergeConflict = errors.New("merge conflict")

	// ErrStaleBaseline indicates that the dataset has changed since the push session started
	ErrStaleBaseline = errors.New("stale baseline")

	// ErrUnknownToken indicates an expired, reclaimed or never issued session token
	ErrUnknownToken = errors.New("unknown token")

	// ErrInternal indicates a failure of the storage engine or of the staging area
	ErrInternal = errors.New("internal error")
)

// Kind is the machine readable name of an error
type Kind string

// Error kinds
const (
	KindBadRequest     Kind = "BadRequest"
	KindPushNotAllowed Kind = "PushNotAllowed"
	KindUnauthorized   Kind = "Unauthorized"
	KindMissingFiles   Kind = "MissingFileError"
	KindMergeConflict  Kind = "MergeConflict"
	KindStaleBaseline  Kind = "StaleBaseline"
	KindUnknownToken   Kind = "UnknownToken"
	KindInternal       Kind = "InternalError"
)

// KindOf an error. Errors not declared by this package are internal errors.
func KindOf(err error) Kind {
	switch {
	case errors.Is(err, ErrBadRequest):
		return KindBadRequest
	case errors.Is(err, ErrPushNotAllowed):
		return KindPushNotAllowed
	case errors.Is(err, ErrUnauthorized):
		return KindUnauthorized
	case errors.Is(err, ErrMissingFiles):
		return KindMissingFiles
	case errors.Is(err, ErrMergeConflict):
		return KindMergeConflict
	case errors.Is(err, ErrStaleBaseline):
		return KindStaleBaseline
	case errors.Is(err, ErrUnknownToken):
		return KindUnknownToken
	default:
		return KindInternal
	}
}

// MissingFilesError lists the content which must be uploaded before a commit may succeed
type MissingFilesError struct {
	// Paths of files to upload
	Paths []string

	// Meta lists the identifiers of metadata entries missing from the metadata patch
	Meta []string
}

func (e *MissingFilesError) Error() string {
	var b strings.Builder
	b.WriteString(ErrMissingFiles.Error())
	if len(e.Paths) > 0 {
		b.WriteString(": ")
		b.WriteString(strings.Join(e.Paths, ", "))
	}
	if len(e.Meta) > 0 {
		b.WriteString(": metadata entries ")
		b.WriteString(strings.Join(e.Meta, ", "))
	}
	return b.String()
}

// Unwrap yields the ErrMissingFiles sentinel
func (e *MissingFilesError) Unwrap() error {
	return ErrMissingFiles
}

// MergeConflictError lists the paths which could not be merged
type MergeConflictError struct {
	Conflicts model.Conflicts
}

// NewMergeConflictError builds an error from conflicting paths
func NewMergeConflictError(paths []string, reason string) *MergeConflictError {
	conflicts := make(model.Conflicts, 0, len(paths))
	for _, pth := range paths {
		conflicts = append(conflicts, model.Conflict{Path: pth, Reason: reason})
	}
	return &MergeConflictError{Conflicts: conflicts}
}

// Paths in conflict
func (e *MergeConflictError) Paths() []string {
	return e.Conflicts.Paths()
}

func (e *MergeConflictError) Error() string {
	return ErrMergeConflict.Error() + ": " + strings.Join(e.Paths(), ", ")
}

// Unwrap yields the ErrMergeConflict sentinel
func (e *MergeConflictError) Unwrap() error {
	return ErrMergeConflict
}

// PathsOf yields the paths carried by an error, if any
func PathsOf(err error) []string {
	var missing *MissingFilesError
	if errors.As(err, &missing) {
		return missing.Paths
	}
	var conflict *MergeConflictError
	if errors.As(err, &conflict) {
		return conflict.Paths()
	}
	return nil
}
