package localdb

import (
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/oneconcern/datapush/pkg/engine/status"
	"github.com/oneconcern/datapush/pkg/model"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v2"
)

// indexEntry describes a file or a directory of a dataset. Directories have no hash.
type indexEntry struct {
	Hash  string    `yaml:"hash,omitempty"`
	Size  int64     `yaml:"size,omitempty"`
	Mtime time.Time `yaml:"mtime"`
}

type index struct {
	Entries map[string]indexEntry `yaml:"entries"`
}

// metaRecord is the on-disk form of a metadata entry. Data holds the raw JSON document.
type metaRecord struct {
	ID   string `yaml:"id"`
	Key  string `yaml:"key"`
	Path string `yaml:"path,omitempty"`
	Data string `yaml:"data,omitempty"`
}

type metaIndex struct {
	Entries []metaRecord `yaml:"entries"`
}

func (m metaIndex) byID() map[string]metaRecord {
	res := make(map[string]metaRecord, len(m.Entries))
	for _, rec := range m.Entries {
		res[rec.ID] = rec
	}
	return res
}

func metaIndexFrom(records map[string]metaRecord) metaIndex {
	ids := make([]string, 0, len(records))
	for id := range records {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	res := metaIndex{Entries: make([]metaRecord, 0, len(ids))}
	for _, id := range ids {
		res.Entries = append(res.Entries, records[id])
	}
	return res
}

func (i index) stamp(meta metaIndex) model.Stamp {
	entries := make(map[string]string, len(i.Entries))
	for pth, entry := range i.Entries {
		entries[pth] = entry.Hash
	}
	ids := make([]string, 0, len(meta.Entries))
	for _, rec := range meta.Entries {
		ids = append(ids, rec.ID)
	}
	return model.NewStamp(entries, ids)
}

// manifest summarizes the content of a dataset once built
type manifest struct {
	Dataset   string    `yaml:"dataset"`
	Checksum  string    `yaml:"checksum"`
	Files     int       `yaml:"files"`
	Dirs      int       `yaml:"dirs"`
	Meta      int       `yaml:"meta"`
	Size      int64     `yaml:"size"`
	HumanSize string    `yaml:"humanSize"`
	BuiltAt   time.Time `yaml:"builtAt"`
}

func readYAML(fs afero.Fs, pth string, target interface{}) error {
	data, err := afero.ReadFile(fs, pth)
	if err != nil {
		if os.IsNotExist(err) {
			return status.ErrDatasetNotFound.WrapMessage("missing %q", pth)
		}
		return err
	}
	if err := yaml.Unmarshal(data, target); err != nil {
		return status.ErrCorruptIndex.WrapMessage("decoding %q", pth).Wrap(err)
	}
	return nil
}

// writeYAML replaces a file with a rename, so readers never see a partial write
func writeYAML(fs afero.Fs, pth string, source interface{}) error {
	data, err := yaml.Marshal(source)
	if err != nil {
		return err
	}
	if err := fs.MkdirAll(filepath.Dir(pth), 0700); err != nil {
		return err
	}
	tmp := pth + ".tmp"
	if err := afero.WriteFile(fs, tmp, data, 0600); err != nil {
		return err
	}
	return fs.Rename(tmp, pth)
}
