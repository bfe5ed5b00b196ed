// Copyright © 2018 One Concern

package storage

import (
	"bytes"
	"context"
	"io"
)

// Put modes
const (
	// NoOverWrite makes a Put fail if the key already exists
	NoOverWrite = true

	// OverWrite makes a Put replace any existing object at the key
	OverWrite = false
)

// Store implementations know how to write entries to a K/V model.
//
// Typically this is something file system-like.
// Implementations of this interface are assumed to be fairly simple.
type Store interface {
	String() string
	Has(context.Context, string) (bool, error)
	Get(context.Context, string) (io.ReadCloser, error)
	Put(context.Context, string, io.Reader, bool) error
	Delete(context.Context, string) error
	Keys(context.Context) ([]string, error)
	KeysPrefix(context.Context, string) ([]string, error)
	Clear(context.Context) error
}

// ReadAll fetches an object from a store into memory
func ReadAll(ctx context.Context, store Store, key string) ([]byte, error) {
	reader, err := store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	var buf bytes.Buffer
	if _, err = io.Copy(&buf, reader); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
