package main

import (
	"os"
	"path/filepath"

	"github.com/fleetdm/dmagent/pkg/kvstore"
)

const defaultStore = "registry"

var defaultRootDir = filepath.Join(os.Getenv("ProgramData"), "DMAgent")

func openRegistry() (kvstore.Store, error) {
	return kvstore.NewRegistry(), nil
}
