package model

import "github.com/oneconcern/datapush/pkg/errors"

var (
	// ErrInvalidStamp indicates a stamp which is missing or cannot be decoded
	ErrInvalidStamp = errors.New("invalid stamp")

	// ErrInvalidPath indicates a relative path which is empty, absolute or escapes its root
	ErrInvalidPath = errors.New("invalid path")

	// ErrInvalidMeta indicates a metadata document which is not a valid metadata patch
	ErrInvalidMeta = errors.New("invalid metadata")

	// ErrInvalidDataset indicates a malformed dataset reference
	ErrInvalidDataset = errors.New("invalid dataset reference")
)
