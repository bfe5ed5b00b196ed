package model

import (
	"testing"

	"github.com/oneconcern/datapush/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanRelativePath(t *testing.T) {
	for _, toPin := range []struct {
		input    string
		expected string
		valid    bool
	}{
		{input: "a.txt", expected: "a.txt", valid: true},
		{input: "dir/sub/b.txt", expected: "dir/sub/b.txt", valid: true},
		{input: "./dir//b.txt", expected: "dir/b.txt", valid: true},
		{input: "dir/../b.txt", expected: "b.txt", valid: true},
		{input: "..data", expected: "..data", valid: true},
		{input: ""},
		{input: "."},
		{input: ".."},
		{input: "../../secrets"},
		{input: "dir/../../secrets"},
		{input: "/etc/passwd"},
		{input: `dir\..\..\secrets`},
		{input: "C:secrets"},
		{input: "a\x00b"},
	} {
		fixture := toPin
		t.Run(fixture.input, func(t *testing.T) {
			cleaned, err := CleanRelativePath(fixture.input)
			if !fixture.valid {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidPath))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, fixture.expected, cleaned)
		})
	}
}

func TestCleanEntryPath(t *testing.T) {
	_, err := CleanEntryPath(".ddb/index.yaml")
	require.Error(t, err)
	_, err = CleanEntryPath("./.ddb")
	require.Error(t, err)
	_, err = CleanEntryPath(".put-stage/x.txt")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidPath))
	_, err = CleanEntryPath("a/../.put-stage")
	require.Error(t, err)

	cleaned, err := CleanEntryPath("a/.put-stage/x.txt")
	require.NoError(t, err)
	assert.Equal(t, "a/.put-stage/x.txt", cleaned)

	cleaned, err = CleanEntryPath(".ddbx/file")
	require.NoError(t, err)
	assert.Equal(t, ".ddbx/file", cleaned)
}

func TestLayoutPaths(t *testing.T) {
	ref := DatasetRef{Org: "acme", Name: "drone"}
	assert.Equal(t, "/tmp/push/tok", GetStagingPath("/tmp/push", "tok"))
	assert.Equal(t, "/tmp/push/tok/adds", GetStagingAddsPath("/tmp/push", "tok"))
	assert.Equal(t, "/tmp/push/tok/meta.json", GetStagingMetaPath("/tmp/push", "tok"))
	assert.Equal(t, "/data/acme/drone", GetDatasetPath("/data", ref))
	assert.Equal(t, "/data/acme/drone/.ddb/index.yaml", GetIndexPath("/data/acme/drone"))
	assert.Equal(t, "/data/acme/drone/.ddb/meta.yaml", GetMetaPath("/data/acme/drone"))
	assert.Equal(t, "/data/acme/drone/.ddb/objects", GetObjectsPath("/data/acme/drone"))
	assert.Equal(t, "/data/acme/drone/.ddb/build/manifest.yaml", GetBuildManifestPath("/data/acme/drone"))
}

func TestDatasetRef(t *testing.T) {
	ref, err := NewDatasetRef("acme", "drone-2024_v1.0")
	require.NoError(t, err)
	assert.Equal(t, "acme/drone-2024_v1.0", ref.String())
	assert.False(t, ref.IsZero())
	assert.True(t, DatasetRef{}.IsZero())

	for _, bad := range [][2]string{
		{"", "ds"},
		{"org", ""},
		{"..", "ds"},
		{"org", ".hidden"},
		{"org", "a/b"},
		{"or g", "ds"},
	} {
		_, err := NewDatasetRef(bad[0], bad[1])
		require.Errorf(t, err, "expected %v to be rejected", bad)
		assert.True(t, errors.Is(err, ErrInvalidDataset))
	}
}

func TestParseDatasetRef(t *testing.T) {
	ref, err := ParseDatasetRef("acme/drone")
	require.NoError(t, err)
	assert.Equal(t, DatasetRef{Org: "acme", Name: "drone"}, ref)

	for _, bad := range []string{"acme", "acme/", "/drone", "acme/drone/x"} {
		_, err := ParseDatasetRef(bad)
		require.Errorf(t, err, "expected %q to be rejected", bad)
		assert.True(t, errors.Is(err, ErrInvalidDataset))
	}
}
