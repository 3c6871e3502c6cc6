package utils

import (
	"errors"
	"io/fs"
	"os"
)

// FileExist reports whether 'filePath' exists. Errors other than "not exist"
// (e.g. permissions) count as existing so callers never overwrite the file.
func FileExist(filePath string) bool {
	_, err := os.Stat(filePath)
	return !errors.Is(err, fs.ErrNotExist)
}

// CreateDirIfNotExist creates 'dir' & any missing parents, readable only by the owner.
func CreateDirIfNotExist(dir string) error {
	if FileExist(dir) {
		return nil
	}
	return os.MkdirAll(dir, 0700)
}
