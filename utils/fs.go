package utils

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
)

// DefaultDirPermissions is used for every directory the downloader creates
const DefaultDirPermissions = 0755

// FileOperations provides file system utilities on top of an afero filesystem
type FileOperations struct {
	fs afero.Fs
}

// NewFileOperations creates a FileOperations backed by the real filesystem
func NewFileOperations() *FileOperations {
	return NewFileOperationsWithFS(afero.NewOsFs())
}

// NewFileOperationsWithFS creates a FileOperations on the given filesystem
func NewFileOperationsWithFS(fs afero.Fs) *FileOperations {
	return &FileOperations{fs: fs}
}

// EnsureDir creates the parent directory of path if it doesn't exist
func (f *FileOperations) EnsureDir(path string) error {
	return f.fs.MkdirAll(filepath.Dir(path), DefaultDirPermissions)
}

// MkdirAll creates dir and any missing parents
func (f *FileOperations) MkdirAll(dir string) error {
	return f.fs.MkdirAll(dir, DefaultDirPermissions)
}

// IsFresh reports whether the file at path can be treated as already downloaded.
// With overwrite set it is never fresh. Without an expected modification time
// existence is enough; otherwise the on-disk mtime, in whole seconds, must match.
func (f *FileOperations) IsFresh(path string, expected *int64, overwrite bool) bool {
	if overwrite {
		return false
	}
	info, err := f.fs.Stat(path)
	if err != nil {
		return false
	}
	if expected == nil {
		return true
	}
	return info.ModTime().Unix() == *expected
}

// SetModTime sets both access and modification time to epoch seconds
func (f *FileOperations) SetModTime(path string, epoch int64) error {
	t := time.Unix(epoch, 0)
	return f.fs.Chtimes(path, t, t)
}

// Create creates or truncates path for writing
func (f *FileOperations) Create(path string) (afero.File, error) {
	return f.fs.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
}

// RemoveQuietly deletes path, ignoring any error
func (f *FileOperations) RemoveQuietly(path string) {
	_ = f.fs.Remove(path)
}
