//go:build windows

package secure

import "os"

// MkdirAll is os.MkdirAll. Permissions are governed by ACLs on Windows.
func MkdirAll(path string, perm os.FileMode) error {
	return os.MkdirAll(path, perm)
}

// OpenFile is os.OpenFile.
func OpenFile(name string, flag int, perm os.FileMode) (*os.File, error) {
	return os.OpenFile(name, flag, perm)
}
