package model

import (
	"bytes"
	"sort"

	jsoniter "github.com/json-iterator/go"
)

// MetaEntry is a metadata entry attached to a dataset, or to some path within a dataset
type MetaEntry struct {
	ID   string              `json:"id" yaml:"id"`
	Key  string              `json:"key" yaml:"key"`
	Path string              `json:"path,omitempty" yaml:"path,omitempty"`
	Data jsoniter.RawMessage `json:"data" yaml:"data"`
	_    struct{}
}

// MetaPatch is a set of metadata entries uploaded by a client
type MetaPatch []MetaEntry

// ParseMetaPatch decodes a metadata patch document.
//
// The document must be a JSON array of entries. Entries must have a key, and their path,
// if any, must be a valid entry path. Entries without an ID get one computed from their content.
func ParseMetaPatch(doc []byte) (MetaPatch, error) {
	trimmed := bytes.TrimSpace(doc)
	if len(trimmed) == 0 {
		return nil, ErrInvalidMeta.WrapMessage("missing metadata")
	}
	if !json.Valid(trimmed) {
		return nil, ErrInvalidMeta.WrapMessage("metadata is not valid JSON")
	}

	var patch MetaPatch
	if err := json.Unmarshal(trimmed, &patch); err != nil {
		return nil, ErrInvalidMeta.Wrap(err)
	}

	for i := range patch {
		entry := &patch[i]
		if entry.Key == "" {
			return nil, ErrInvalidMeta.WrapMessage("entry %d has no key", i)
		}
		if entry.Path != "" {
			cleaned, err := CleanEntryPath(entry.Path)
			if err != nil {
				return nil, ErrInvalidMeta.Wrap(err)
			}
			entry.Path = cleaned
		}
		if entry.ID == "" {
			entry.ID = MetaID(entry.Key, entry.Path, entry.Data)
		}
	}
	return patch, nil
}

// MetaID computes the identifier of a metadata entry from its content
func MetaID(key, pth string, data []byte) string {
	var buf bytes.Buffer
	buf.WriteString(key)
	buf.WriteByte(0)
	buf.WriteString(pth)
	buf.WriteByte(0)
	buf.Write(bytes.TrimSpace(data))
	return hashHex(buf.Bytes())
}

// ByID indexes the patch by entry identifier
func (p MetaPatch) ByID() map[string]MetaEntry {
	index := make(map[string]MetaEntry, len(p))
	for _, entry := range p {
		index[entry.ID] = entry
	}
	return index
}

// IDs yields the sorted identifiers of the patch entries
func (p MetaPatch) IDs() []string {
	ids := make([]string, 0, len(p))
	for _, entry := range p {
		ids = append(ids, entry.ID)
	}
	sort.Strings(ids)
	return ids
}
