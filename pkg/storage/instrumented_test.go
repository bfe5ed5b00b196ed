package storage_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/oneconcern/datapush/pkg/storage"
	"github.com/oneconcern/datapush/pkg/storage/localfs"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestInstrument(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	store, err := localfs.New(afero.NewMemMapFs())
	require.NoError(t, err)

	instrumented := storage.Instrument(zap.New(core), store)
	assert.Equal(t, store.String(), instrumented.String())

	ctx := context.Background()
	require.NoError(t, instrumented.Put(ctx, "key", bytes.NewBufferString("value"), storage.OverWrite))
	has, err := instrumented.Has(ctx, "key")
	require.NoError(t, err)
	assert.True(t, has)

	_, err = instrumented.Get(ctx, "missing")
	require.Error(t, err)

	entries := logs.All()
	require.Len(t, entries, 3)
	assert.Equal(t, "storage call", entries[0].Message)
	assert.Equal(t, "put", entries[0].ContextMap()["op"])
	assert.Equal(t, "key", entries[0].ContextMap()["key"])
	assert.Equal(t, "storage call failed", entries[2].Message)
	assert.Equal(t, "localfs", entries[2].ContextMap()["store"])
}
