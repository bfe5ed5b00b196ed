package model

import (
	"path"
	"strings"
)

const (
	// DatabaseDir is the directory holding the index of a dataset. Dataset entries may not use it.
	DatabaseDir = ".ddb"

	// WriteStageDir is the directory where stores write objects before moving them into place.
	// Dataset entries may not use it, since uploads are kept in such a store.
	WriteStageDir = ".put-stage"

	// StagingAddsDir is the directory within a staging area where uploaded files land
	StagingAddsDir = "adds"

	// StagingMetaFile is the file within a staging area holding the metadata patch
	StagingMetaFile = "meta.json"

	indexFile         = "index.yaml"
	metaFile          = "meta.yaml"
	objectsDir        = "objects"
	buildDir          = "build"
	buildManifestFile = "manifest.yaml"
)

// CleanRelativePath validates a relative path and returns its canonical form.
//
// The path must be non-empty, relative, and once cleaned must resolve strictly within its root:
// paths such as "../x", "a/../../x" or "/etc/passwd" are rejected.
func CleanRelativePath(pth string) (string, error) {
	if pth == "" {
		return "", ErrInvalidPath.WrapMessage("empty path")
	}
	if strings.ContainsAny(pth, "\x00\\") {
		return "", ErrInvalidPath.WrapMessage("unsupported character in %q", pth)
	}
	if path.IsAbs(pth) || (len(pth) > 1 && pth[1] == ':') {
		return "", ErrInvalidPath.WrapMessage("absolute path %q", pth)
	}

	cleaned := path.Clean(pth)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", ErrInvalidPath.WrapMessage("path %q escapes its root", pth)
	}
	return cleaned, nil
}

// CleanEntryPath validates the path of a dataset entry.
//
// In addition to the checks carried out by CleanRelativePath, entries may not live in the
// reserved database directory, nor in the write area of stores.
func CleanEntryPath(pth string) (string, error) {
	cleaned, err := CleanRelativePath(pth)
	if err != nil {
		return "", err
	}
	if IsDatabaseFile(cleaned) || inDir(cleaned, WriteStageDir) {
		return "", ErrInvalidPath.WrapMessage("path %q is reserved", pth)
	}
	return cleaned, nil
}

func inDir(pth, dir string) bool {
	return pth == dir || strings.HasPrefix(pth, dir+"/")
}

// IsDatabaseFile tells if a cleaned relative path points to the reserved database directory
func IsDatabaseFile(pth string) bool {
	return inDir(pth, DatabaseDir)
}

// GetStagingPath yields the staging area of a push session.
//
// Example:
//   {root}/{token}
func GetStagingPath(root, token string) string {
	return path.Join(root, token)
}

// GetStagingAddsPath yields the location of uploaded files for a push session.
//
// Example:
//   {root}/{token}/adds
func GetStagingAddsPath(root, token string) string {
	return path.Join(root, token, StagingAddsDir)
}

// GetStagingMetaPath yields the location of the metadata patch for a push session.
//
// Example:
//   {root}/{token}/meta.json
func GetStagingMetaPath(root, token string) string {
	return path.Join(root, token, StagingMetaFile)
}

// GetDatasetPath yields the location of a dataset under some storage root.
//
// Example:
//   {root}/{org}/{dataset}
func GetDatasetPath(root string, ref DatasetRef) string {
	return path.Join(root, ref.Org, ref.Name)
}

// GetIndexPath yields the location of the file index of a dataset.
//
// Example:
//   {dataset}/.ddb/index.yaml
func GetIndexPath(datasetPath string) string {
	return path.Join(datasetPath, DatabaseDir, indexFile)
}

// GetMetaPath yields the location of the metadata of a dataset.
//
// Example:
//   {dataset}/.ddb/meta.yaml
func GetMetaPath(datasetPath string) string {
	return path.Join(datasetPath, DatabaseDir, metaFile)
}

// GetObjectsPath yields the location of the content-addressed objects of a dataset.
//
// Example:
//   {dataset}/.ddb/objects
func GetObjectsPath(datasetPath string) string {
	return path.Join(datasetPath, DatabaseDir, objectsDir)
}

// GetBuildManifestPath yields the location of the build manifest of a dataset.
//
// Example:
//   {dataset}/.ddb/build/manifest.yaml
func GetBuildManifestPath(datasetPath string) string {
	return path.Join(datasetPath, DatabaseDir, buildDir, buildManifestFile)
}
