package utils

import (
	"fmt"
	"os"
)

// FileExist reports whether filePath exists. Any error other than not-exist
// counts as existing, so callers never overwrite what they cannot see.
func FileExist(filePath string) bool {
	_, err := os.Stat(filePath)
	return !os.IsNotExist(err)
}

func CreateDirIfNotExist(dir string) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return os.MkdirAll(dir, 0755)
	}

	return nil
}

// MoveFile renames src to dest, replacing dest.
func MoveFile(src, dest string) error {
	if err := os.Rename(src, dest); err != nil {
		return fmt.Errorf("MoveFile: %v", err)
	}
	return nil
}
