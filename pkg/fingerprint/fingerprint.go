// Package fingerprint computes content hashes for dataset files.
//
// Fingerprints are blake2b tree hashes: the input stream is split in leaves of a fixed size,
// each leaf is hashed at depth 0 and the root digest is computed over the concatenated leaf digests.
package fingerprint

import (
	"bytes"
	"encoding/hex"
	"io"

	units "github.com/docker/go-units"
	blake2b "github.com/minio/blake2b-simd"
)

// DefaultLeafSize is the default size of hashed leaves
const DefaultLeafSize = 5 * units.MiB

// Option for a fingerprint Maker
type Option func(*Maker)

// LeafSize sets the size of leaves. It defaults to 5MiB
func LeafSize(sz int64) Option {
	return func(m *Maker) {
		if sz > 0 {
			m.leafSize = uint32(sz)
		}
	}
}

// Size sets the size of digests. It defaults to 64 bytes
func Size(sz uint8) Option {
	return func(m *Maker) {
		if sz > 0 && sz <= blake2b.Size {
			m.size = sz
		}
	}
}

// New fingerprint Maker
func New(opts ...Option) *Maker {
	m := &Maker{
		leafSize: uint32(DefaultLeafSize),
		size:     blake2b.Size,
	}

	for _, apply := range opts {
		apply(m)
	}
	return m
}

// Maker computes fingerprints
type Maker struct {
	size     uint8
	leafSize uint32
}

// Process computes the digest of a stream
func (m *Maker) Process(r io.Reader) ([]byte, error) {
	var (
		digests []byte
		part    uint64
	)

	current := make([]byte, m.leafSize)
	next := make([]byte, m.leafSize)

	n, err := io.ReadFull(r, current)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, err
	}
	for n > 0 {
		// read ahead to find out if the current leaf is the last one
		k, e := io.ReadFull(r, next)
		if e != nil && e != io.ErrUnexpectedEOF && e != io.EOF {
			return nil, e
		}

		digest, e := m.leaf(current[:n], part, k == 0)
		if e != nil {
			return nil, e
		}
		digests = append(digests, digest...)

		current, next = next, current
		n = k
		part++
	}

	return m.root(digests)
}

// Hex computes the hex-encoded digest of a stream
func (m *Maker) Hex(r io.Reader) (string, error) {
	digest, err := m.Process(r)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(digest), nil
}

// HexBytes computes the hex-encoded digest of a buffer
func (m *Maker) HexBytes(data []byte) string {
	h, _ := m.Hex(bytes.NewReader(data))
	return h
}

// NewWriter builds a Writer computing the fingerprint of everything written to it
func (m *Maker) NewWriter() *Writer {
	return &Writer{m: m}
}

// Writer computes a fingerprint incrementally, e.g. while a stream is copied.
//
// It yields the same digest as Process over the same bytes.
type Writer struct {
	m       *Maker
	pending []byte
	digests []byte
	part    uint64
}

func (w *Writer) Write(p []byte) (int, error) {
	n := len(p)
	for len(p) > 0 {
		// a full leaf is hashed only once more data shows it is not the last one
		if len(w.pending) == int(w.m.leafSize) {
			digest, err := w.m.leaf(w.pending, w.part, false)
			if err != nil {
				return 0, err
			}
			w.digests = append(w.digests, digest...)
			w.pending = w.pending[:0]
			w.part++
		}
		if w.pending == nil {
			w.pending = make([]byte, 0, w.m.leafSize)
		}
		k := int(w.m.leafSize) - len(w.pending)
		if k > len(p) {
			k = len(p)
		}
		w.pending = append(w.pending, p[:k]...)
		p = p[k:]
	}
	return n, nil
}

// Hex yields the hex-encoded digest of the bytes written so far
func (w *Writer) Hex() (string, error) {
	digests := w.digests
	if len(w.pending) > 0 {
		digest, err := w.m.leaf(w.pending, w.part, true)
		if err != nil {
			return "", err
		}
		digests = append(append([]byte{}, w.digests...), digest...)
	}
	root, err := w.m.root(digests)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(root), nil
}

func (m *Maker) leaf(data []byte, part uint64, isLast bool) ([]byte, error) {
	blake, err := blake2b.New(&blake2b.Config{
		Size: m.size,
		Tree: &blake2b.Tree{
			Fanout:        0,
			MaxDepth:      2,
			LeafSize:      m.leafSize,
			NodeOffset:    part,
			NodeDepth:     0,
			InnerHashSize: m.size,
			IsLastNode:    isLast,
		},
	})
	if err != nil {
		return nil, err
	}
	_, _ = blake.Write(data)
	return blake.Sum(nil), nil
}

func (m *Maker) root(digests []byte) ([]byte, error) {
	rootBlake, err := blake2b.New(&blake2b.Config{
		Size: m.size,
		Tree: &blake2b.Tree{
			Fanout:        0,
			MaxDepth:      2,
			LeafSize:      m.leafSize,
			NodeOffset:    0,
			NodeDepth:     1,
			InnerHashSize: m.size,
			IsLastNode:    true,
		},
	})
	if err != nil {
		return nil, err
	}
	_, _ = rootBlake.Write(digests)
	return rootBlake.Sum(nil), nil
}
