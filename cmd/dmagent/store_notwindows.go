//go:build !windows

package main

import (
	"errors"

	"github.com/fleetdm/dmagent/pkg/kvstore"
)

const defaultStore = "badger"

var defaultRootDir = "/var/lib/dmagent"

func openRegistry() (kvstore.Store, error) {
	return nil, errors.New("the registry store is only available on Windows")
}
