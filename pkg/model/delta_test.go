package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeltaNeededFiles(t *testing.T) {
	d := Delta{
		Adds: []AddEntry{
			{Path: "b.txt", Hash: "h2"},
			{Path: "a.txt", Hash: "h1"},
			{Path: "dir"},
			{Path: "copy.txt", Hash: "h3"},
		},
	}
	assert.Equal(t, []string{"a.txt", "b.txt", "copy.txt"}, d.NeededFiles(nil))
	assert.Equal(t, []string{"a.txt", "b.txt"}, d.NeededFiles(map[string]bool{"h3": true, "h2": false}))
	assert.Equal(t, []string{"h1", "h2", "h3"}, d.ContentHashes())
	assert.False(t, d.IsEmpty())
	assert.True(t, Delta{}.IsEmpty())
}

func TestDeltaConflictingPaths(t *testing.T) {
	mine := Delta{
		Adds:    []AddEntry{{Path: "a.txt", Hash: "h1"}, {Path: "same.txt", Hash: "hs"}, {Path: "dir"}},
		Removes: []RemoveEntry{{Path: "gone.txt"}, {Path: "both-gone.txt"}},
	}
	theirs := Delta{
		Adds:    []AddEntry{{Path: "a.txt", Hash: "h9"}, {Path: "same.txt", Hash: "hs"}, {Path: "gone.txt", Hash: "h4"}, {Path: "other.txt", Hash: "h5"}},
		Removes: []RemoveEntry{{Path: "both-gone.txt"}, {Path: "dir"}},
	}
	assert.Equal(t, []string{"a.txt", "dir", "gone.txt"}, mine.ConflictingPaths(theirs))
	assert.Equal(t, []string{"a.txt", "dir", "gone.txt"}, theirs.ConflictingPaths(mine))
	assert.Empty(t, mine.ConflictingPaths(Delta{}))
}
