package model

import "sort"

// MergeStrategy indicates how a storage engine handles entries modified in the dataset since a delta was computed
type MergeStrategy string

const (
	// KeepTheirs is the merge strategy with which the dataset version is kept and conflicts are reported
	KeepTheirs MergeStrategy = "keep-theirs"

	// KeepOurs is the merge strategy with which the pushed version overwrites the dataset version
	KeepOurs MergeStrategy = "keep-ours"

	// DontMerge is the merge strategy with which any conflict aborts the merge
	DontMerge MergeStrategy = "dont-merge"
)

// IsValid checks the value of a merge strategy
func (s MergeStrategy) IsValid() bool {
	switch s {
	case KeepTheirs, KeepOurs, DontMerge:
		return true
	default:
		return false
	}
}

func (s MergeStrategy) String() string {
	return string(s)
}

// ConcurrencyMode indicates how a commit handles a dataset that changed after its push session started
type ConcurrencyMode string

const (
	// ForbidStale is the mode with which any upstream change fails the commit
	ForbidStale ConcurrencyMode = "forbid-stale"

	// Rebase is the mode with which upstream changes not touching pushed paths are tolerated,
	// and pushed changes are applied on top of them
	Rebase ConcurrencyMode = "rebase"
)

// IsValid checks the value of a concurrency mode
func (m ConcurrencyMode) IsValid() bool {
	switch m {
	case ForbidStale, Rebase:
		return true
	default:
		return false
	}
}

func (m ConcurrencyMode) String() string {
	return string(m)
}

// Conflict describes an entry which could not be merged automatically
type Conflict struct {
	Path   string `json:"path" yaml:"path"`
	Reason string `json:"reason,omitempty" yaml:"reason,omitempty"`
	_      struct{}
}

// Conflicts is a collection of conflicts
type Conflicts []Conflict

// Paths yields the sorted distinct paths in conflict
func (c Conflicts) Paths() []string {
	seen := make(map[string]struct{}, len(c))
	paths := make([]string, 0, len(c))
	for _, conflict := range c {
		if _, ok := seen[conflict.Path]; ok {
			continue
		}
		seen[conflict.Path] = struct{}{}
		paths = append(paths, conflict.Path)
	}
	sort.Strings(paths)
	return paths
}
