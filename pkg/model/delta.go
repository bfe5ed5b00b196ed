package model

import "sort"

// AddEntry describes a file or directory to be added to a dataset.
//
// Directories carry an empty Hash. Previous is the hash of the entry at the same path
// in the state the delta applies to, if any.
type AddEntry struct {
	Path     string `json:"path" yaml:"path"`
	Hash     string `json:"hash,omitempty" yaml:"hash,omitempty"`
	Previous string `json:"previous,omitempty" yaml:"previous,omitempty"`
	_        struct{}
}

// IsDir tells if the entry is a directory
func (a AddEntry) IsDir() bool {
	return a.Hash == ""
}

// RemoveEntry describes an entry to be removed from a dataset
type RemoveEntry struct {
	Path string `json:"path" yaml:"path"`
	Hash string `json:"hash,omitempty" yaml:"hash,omitempty"`
	_    struct{}
}

// Delta lists the operations turning a dataset state into another one
type Delta struct {
	Adds        []AddEntry    `json:"adds" yaml:"adds"`
	Removes     []RemoveEntry `json:"removes" yaml:"removes"`
	MetaAdds    []string      `json:"metaAdds" yaml:"metaAdds"`
	MetaRemoves []string      `json:"metaRemoves" yaml:"metaRemoves"`
	_           struct{}
}

// IsEmpty tells if the delta carries no operation
func (d Delta) IsEmpty() bool {
	return len(d.Adds) == 0 && len(d.Removes) == 0 && len(d.MetaAdds) == 0 && len(d.MetaRemoves) == 0
}

// NeededFiles yields the sorted paths of file additions whose content is not known from locals.
//
// locals maps content hashes to their local availability.
func (d Delta) NeededFiles(locals map[string]bool) []string {
	seen := make(map[string]struct{}, len(d.Adds))
	needed := make([]string, 0, len(d.Adds))
	for _, add := range d.Adds {
		if add.IsDir() || locals[add.Hash] {
			continue
		}
		if _, ok := seen[add.Path]; ok {
			continue
		}
		seen[add.Path] = struct{}{}
		needed = append(needed, add.Path)
	}
	sort.Strings(needed)
	return needed
}

// ContentHashes yields the distinct content hashes of file additions
func (d Delta) ContentHashes() []string {
	seen := make(map[string]struct{}, len(d.Adds))
	hashes := make([]string, 0, len(d.Adds))
	for _, add := range d.Adds {
		if add.IsDir() {
			continue
		}
		if _, ok := seen[add.Hash]; ok {
			continue
		}
		seen[add.Hash] = struct{}{}
		hashes = append(hashes, add.Hash)
	}
	sort.Strings(hashes)
	return hashes
}

const (
	outcomeRemoved = "\x00removed"
	outcomeDir     = "\x00dir"
)

// outcomes maps each path touched by the delta to its resulting state
func (d Delta) outcomes() map[string]string {
	out := make(map[string]string, len(d.Adds)+len(d.Removes))
	for _, rm := range d.Removes {
		out[rm.Path] = outcomeRemoved
	}
	for _, add := range d.Adds {
		if add.IsDir() {
			out[add.Path] = outcomeDir
			continue
		}
		out[add.Path] = add.Hash
	}
	return out
}

// ConflictingPaths yields the sorted paths touched by both deltas with a different outcome.
//
// Two deltas adding the same content at the same path, or both removing a path, do not conflict.
func (d Delta) ConflictingPaths(other Delta) []string {
	mine := d.outcomes()
	theirs := other.outcomes()
	conflicts := make([]string, 0)
	for pth, outcome := range mine {
		if theirOutcome, ok := theirs[pth]; ok && theirOutcome != outcome {
			conflicts = append(conflicts, pth)
		}
	}
	sort.Strings(conflicts)
	return conflicts
}
