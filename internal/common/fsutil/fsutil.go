package fsutil

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// ExpandHome replaces a leading "~" or "~/" with the current user's home
// directory. Other forms, including "~user", are returned unchanged.
func ExpandHome(path string) (string, error) {
	if path != "~" && !hasHomePrefix(path) {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("home dir: %w", err)
	}
	return filepath.Join(home, path[1:]), nil
}

func hasHomePrefix(p string) bool {
	return len(p) >= 2 && p[0] == '~' && (p[1] == '/' || p[1] == filepath.Separator)
}

// IsRegularFile reports whether path resolves, through symlinks, to a regular
// file. A missing path is (false, nil).
func IsRegularFile(path string) (bool, error) {
	return statMode(path, fs.FileMode.IsRegular)
}

// IsDir reports whether path resolves to a directory. A missing path is
// (false, nil).
func IsDir(path string) (bool, error) {
	return statMode(path, fs.FileMode.IsDir)
}

func statMode(path string, pred func(fs.FileMode) bool) (bool, error) {
	if path == "" {
		return false, nil
	}
	fi, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	case err != nil:
		return false, err
	}
	return pred(fi.Mode()), nil
}
