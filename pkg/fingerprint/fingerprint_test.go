package fingerprint

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFingerprintDeterministic(t *testing.T) {
	m := New()
	h1, err := m.Hex(strings.NewReader("some content"))
	require.NoError(t, err)
	h2 := m.HexBytes([]byte("some content"))
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 128)

	h3 := m.HexBytes([]byte("other content"))
	assert.NotEqual(t, h1, h3)
}

func TestFingerprintLeaves(t *testing.T) {
	m := New(LeafSize(4))
	data := []byte("0123456789abcdef") // exactly 4 leaves

	h1 := m.HexBytes(data)
	h2 := m.HexBytes(append(data, 'x'))
	assert.NotEqual(t, h1, h2)

	// a different leaf size yields a different tree
	h3 := New(LeafSize(8)).HexBytes(data)
	assert.NotEqual(t, h1, h3)

	// short reads don't change the result
	h4, err := m.Hex(&oneByteReader{r: bytes.NewReader(data)})
	require.NoError(t, err)
	assert.Equal(t, h1, h4)
}

func TestFingerprintEmpty(t *testing.T) {
	m := New(Size(32))
	h := m.HexBytes(nil)
	assert.Len(t, h, 64)
}

type oneByteReader struct {
	r *bytes.Reader
}

func (o *oneByteReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	return o.r.Read(p[:1])
}

func TestWriter(t *testing.T) {
	m := New(LeafSize(4))
	for _, data := range []string{"", "012", "0123", "01234567", "0123456789abcdefg"} {
		w := m.NewWriter()
		for i := 0; i < len(data); i += 3 {
			end := i + 3
			if end > len(data) {
				end = len(data)
			}
			n, err := w.Write([]byte(data[i:end]))
			require.NoError(t, err)
			assert.Equal(t, end-i, n)
		}

		h, err := w.Hex()
		require.NoError(t, err)
		assert.Equalf(t, m.HexBytes([]byte(data)), h, "digest of %q", data)

		again, err := w.Hex()
		require.NoError(t, err)
		assert.Equal(t, h, again)
	}
}
