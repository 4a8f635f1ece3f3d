//go:build !windows

// Package secure creates directories and files after checking the
// permissions of what already exists on the path. An existing directory whose
// group or other bits differ from the requested mode in the wrong direction is
// reported instead of silently reused.
package secure

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
)

// PermissionError is returned when an existing path does not have the
// expected mode.
type PermissionError struct {
	Path     string
	Mode     os.FileMode
	Expected os.FileMode
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("%s already exists with mode %o instead of the expected %o", e.Path, e.Mode.Perm(), e.Expected.Perm())
}

func isMorePermissive(currentMode, newMode os.FileMode) bool {
	currentGroup := currentMode & 0o70
	newGroup := newMode & 0o70
	currentAll := currentMode & 0o7
	newAll := newMode & 0o7

	return newGroup > currentGroup || newAll > currentAll
}

// checkPermPath checks the deepest existing directory of path.
func checkPermPath(path string, perm os.FileMode) error {
	for {
		info, err := os.Stat(path)
		if err == nil {
			if !info.IsDir() {
				return &os.PathError{Op: "mkdir", Path: path, Err: syscall.ENOTDIR}
			}
			if isMorePermissive(info.Mode(), perm) {
				return &PermissionError{Path: path, Mode: info.Mode(), Expected: perm}
			}
			return nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return err
		}

		parent := filepath.Dir(path)
		if parent == path {
			return nil
		}
		path = parent
	}
}

func checkPermFile(name string, perm os.FileMode) error {
	if info, err := os.Stat(name); err == nil && info.Mode().Perm() != perm.Perm() {
		return &PermissionError{Path: name, Mode: info.Mode(), Expected: perm}
	}
	return checkPermPath(filepath.Dir(name), perm)
}

// MkdirAll is os.MkdirAll, after checking the permissions of the deepest
// existing directory of path.
func MkdirAll(path string, perm os.FileMode) error {
	if err := checkPermPath(path, perm); err != nil {
		return err
	}
	return os.MkdirAll(path, perm)
}

// OpenFile is os.OpenFile, after checking the permissions of name if it exists
// and of its directory.
func OpenFile(name string, flag int, perm os.FileMode) (*os.File, error) {
	if err := checkPermFile(name, perm); err != nil {
		return nil, err
	}
	return os.OpenFile(name, flag, perm)
}
