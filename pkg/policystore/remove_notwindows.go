//go:build !windows

package policystore

import (
	"os"
	"path/filepath"

	"github.com/fleetdm/dmagent/pkg/constant"
	"github.com/pkg/errors"
)

// trashDir is where entries that could not be deleted are moved. It is a
// sibling of the store directory so it never shows up as a policy entry.
func trashDir(dir string) string {
	return dir + ".trash"
}

// deferDelete moves path out of the store directory. The next New removes
// it.
func deferDelete(dir, path string) error {
	trash := trashDir(dir)
	if err := os.MkdirAll(trash, constant.DefaultDirMode); err != nil {
		return errors.Wrap(err, "create trash dir")
	}
	dst, err := os.MkdirTemp(trash, "deleted-")
	if err != nil {
		return errors.Wrap(err, "create trash entry")
	}
	if err := os.Rename(path, filepath.Join(dst, filepath.Base(path))); err != nil {
		return errors.Wrap(err, "move to trash")
	}
	return nil
}

func sweepDeferred(dir string) error {
	if err := os.RemoveAll(trashDir(dir)); err != nil {
		return errors.Wrap(err, "remove trash dir")
	}
	return nil
}
