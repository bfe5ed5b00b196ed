package model

import (
	"testing"

	"github.com/oneconcern/datapush/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStampChecksum(t *testing.T) {
	s1 := NewStamp(map[string]string{"a.txt": "h1", "b.txt": "h2", "dir": ""}, []string{"m2", "m1"})
	s2 := NewStamp(map[string]string{"dir": "", "b.txt": "h2", "a.txt": "h1"}, []string{"m1", "m2"})
	assert.Equal(t, s1.Checksum, s2.Checksum)
	assert.True(t, s1.Equal(s2))
	assert.Equal(t, []string{"m1", "m2"}, s1.Meta)
	assert.Equal(t, []string{"a.txt", "b.txt", "dir"}, s1.Paths())

	s3 := NewStamp(map[string]string{"a.txt": "h1", "b.txt": "h3", "dir": ""}, []string{"m1", "m2"})
	assert.NotEqual(t, s1.Checksum, s3.Checksum)

	s4 := NewStamp(map[string]string{"a.txt": "h1", "b.txt": "h2", "dir": ""}, []string{"m1"})
	assert.NotEqual(t, s1.Checksum, s4.Checksum)

	empty := NewStamp(nil, nil)
	assert.NotEmpty(t, empty.Checksum)
	assert.False(t, empty.IsZero())
	assert.True(t, Stamp{}.IsZero())
}

func TestParseStamp(t *testing.T) {
	original := NewStamp(map[string]string{"a.txt": "h1", "sub/b.txt": "h2"}, []string{"m1"})
	buf, err := original.Marshal()
	require.NoError(t, err)

	parsed, err := ParseStamp(buf)
	require.NoError(t, err)
	assert.Equal(t, original.Checksum, parsed.Checksum)
	assert.Equal(t, original.Entries, parsed.Entries)

	// checksum is optional
	parsed, err = ParseStamp([]byte(`{"entries":{"./a.txt":"h1","sub//b.txt":"h2"},"meta":["m1"]}`))
	require.NoError(t, err)
	assert.Equal(t, original.Checksum, parsed.Checksum)

	for _, bad := range []string{
		``,
		`not json`,
		`{"entries":{"../x":"h"}}`,
		`{"entries":{".ddb/index.yaml":"h"}}`,
		`{"checksum":"nope","entries":{"a.txt":"h1"}}`,
	} {
		_, err := ParseStamp([]byte(bad))
		require.Errorf(t, err, "expected %q to be rejected", bad)
		assert.True(t, errors.Is(err, ErrInvalidStamp))
	}
}
