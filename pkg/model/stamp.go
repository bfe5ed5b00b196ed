package model

import (
	"encoding/hex"
	"sort"

	jsoniter "github.com/json-iterator/go"
	blake2b "github.com/minio/blake2b-simd"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Stamp describes the full content state of a dataset at some point in time.
//
// Entries map the path of each file to its content hash. Directories are recorded with an empty hash.
// Meta lists the identifiers of all metadata entries.
type Stamp struct {
	Checksum string            `json:"checksum" yaml:"checksum"`
	Entries  map[string]string `json:"entries" yaml:"entries"`
	Meta     []string          `json:"meta" yaml:"meta"`
	_        struct{}
}

// NewStamp builds a stamp with its checksum computed
func NewStamp(entries map[string]string, meta []string) Stamp {
	if entries == nil {
		entries = make(map[string]string)
	}
	s := Stamp{
		Entries: entries,
		Meta:    append([]string{}, meta...),
	}
	sort.Strings(s.Meta)
	s.Checksum = s.ComputeChecksum()
	return s
}

// ParseStamp decodes a serialized stamp.
//
// Entry paths are validated. When the stamp carries a checksum, it must match the content.
func ParseStamp(data []byte) (Stamp, error) {
	if len(data) == 0 {
		return Stamp{}, ErrInvalidStamp.WrapMessage("missing stamp")
	}

	var raw Stamp
	if err := json.Unmarshal(data, &raw); err != nil {
		return Stamp{}, ErrInvalidStamp.Wrap(err)
	}

	entries := make(map[string]string, len(raw.Entries))
	for pth, hash := range raw.Entries {
		cleaned, err := CleanEntryPath(pth)
		if err != nil {
			return Stamp{}, ErrInvalidStamp.Wrap(err)
		}
		entries[cleaned] = hash
	}

	stamp := NewStamp(entries, raw.Meta)
	if raw.Checksum != "" && raw.Checksum != stamp.Checksum {
		return Stamp{}, ErrInvalidStamp.WrapMessage("checksum mismatch: got %q, computed %q", raw.Checksum, stamp.Checksum)
	}
	return stamp, nil
}

// Marshal serializes the stamp as JSON
func (s Stamp) Marshal() ([]byte, error) {
	return json.Marshal(s)
}

// ComputeChecksum hashes sorted entries then sorted metadata identifiers
func (s Stamp) ComputeChecksum() string {
	hasher := blake2b.New512()

	for _, pth := range s.Paths() {
		_, _ = hasher.Write(UnsafeStringToBytes(pth))
		_, _ = hasher.Write([]byte{0})
		_, _ = hasher.Write(UnsafeStringToBytes(s.Entries[pth]))
		_, _ = hasher.Write([]byte{'\n'})
	}

	meta := append([]string{}, s.Meta...)
	sort.Strings(meta)
	for _, id := range meta {
		_, _ = hasher.Write([]byte("meta\x00"))
		_, _ = hasher.Write(UnsafeStringToBytes(id))
		_, _ = hasher.Write([]byte{'\n'})
	}

	return hex.EncodeToString(hasher.Sum(nil))
}

// Paths yields the sorted paths of all entries
func (s Stamp) Paths() []string {
	paths := make([]string, 0, len(s.Entries))
	for pth := range s.Entries {
		paths = append(paths, pth)
	}
	sort.Strings(paths)
	return paths
}

// Equal compares stamps by checksum
func (s Stamp) Equal(o Stamp) bool {
	return s.Checksum == o.Checksum
}

// IsZero tells if the stamp is not set
func (s Stamp) IsZero() bool {
	return s.Checksum == "" && len(s.Entries) == 0 && len(s.Meta) == 0
}
