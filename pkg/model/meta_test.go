package model

import (
	"testing"

	"github.com/oneconcern/datapush/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMetaPatch(t *testing.T) {
	patch, err := ParseMetaPatch([]byte(`[
	  {"key": "annotation", "path": "./a.txt", "data": {"text": "hello"}},
	  {"id": "fixed", "key": "tag", "data": "v1"}
	]`))
	require.NoError(t, err)
	require.Len(t, patch, 2)

	assert.Equal(t, "a.txt", patch[0].Path)
	assert.Equal(t, MetaID("annotation", "a.txt", []byte(`{"text": "hello"}`)), patch[0].ID)
	assert.Equal(t, "fixed", patch[1].ID)

	index := patch.ByID()
	assert.Contains(t, index, "fixed")
	assert.Len(t, patch.IDs(), 2)

	for _, bad := range []string{
		``,
		`{"key": "not an array"}`,
		`[{"data": 1}]`,
		`[{"key": "k", "path": "../x"}]`,
		`[not json]`,
	} {
		_, err := ParseMetaPatch([]byte(bad))
		require.Errorf(t, err, "expected %q to be rejected", bad)
		assert.True(t, errors.Is(err, ErrInvalidMeta))
	}
}
