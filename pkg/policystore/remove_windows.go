//go:build windows

package policystore

import (
	"io/fs"
	"path/filepath"

	"github.com/pkg/errors"
	"golang.org/x/sys/windows"
)

// deferDelete schedules path, and everything below it, for deletion at the
// next reboot. Children are scheduled before their parent since a directory
// is only removed when empty.
func deferDelete(_, path string) error {
	var paths []string
	if err := filepath.WalkDir(path, func(p string, _ fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		paths = append(paths, p)
		return nil
	}); err != nil {
		return errors.Wrap(err, "walk entry")
	}

	for i := len(paths) - 1; i >= 0; i-- {
		from, err := windows.UTF16PtrFromString(paths[i])
		if err != nil {
			return errors.Wrap(err, "encode path")
		}
		if err := windows.MoveFileEx(from, nil, windows.MOVEFILE_DELAY_UNTIL_REBOOT); err != nil {
			return errors.Wrapf(err, "schedule delete of %s", paths[i])
		}
	}
	return nil
}

// sweepDeferred is a no-op: the system removes scheduled entries on reboot.
func sweepDeferred(string) error {
	return nil
}
