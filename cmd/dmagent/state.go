package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/fleetdm/dmagent/pkg/certificate"
	"github.com/fleetdm/dmagent/pkg/constant"
	"github.com/fleetdm/dmagent/pkg/dmclient"
	"github.com/fleetdm/dmagent/pkg/dmhttp"
	"github.com/fleetdm/dmagent/pkg/dmstorage"
	"github.com/fleetdm/dmagent/pkg/kvstore"
	"github.com/fleetdm/dmagent/pkg/secure"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

// agentState is the device management state opened from the command line
// flags.
type agentState struct {
	storage *dmstorage.Storage
	closer  io.Closer
}

func (s *agentState) Close() {
	if s.closer == nil {
		return
	}
	if err := s.closer.Close(); err != nil {
		log.Error().Err(err).Msg("close token store")
	}
}

func openState(c *cli.Context) (*agentState, error) {
	rootDir := c.String("root-dir")
	if err := secure.MkdirAll(rootDir, constant.DefaultDirMode); err != nil {
		return nil, errors.Wrap(err, "initialize root dir")
	}

	store, closer, err := openStore(c.String("store"), rootDir)
	if err != nil {
		return nil, err
	}

	storage, err := dmstorage.New(dmstorage.Options{
		Store:                  store,
		LegacyCompatibility:    c.Bool("legacy-compat"),
		RuntimeEnrollmentToken: c.String("enrollment-token"),
	})
	if err != nil {
		if closer != nil {
			closer.Close()
		}
		return nil, err
	}
	return &agentState{storage: storage, closer: closer}, nil
}

func openStore(kind, rootDir string) (kvstore.Store, io.Closer, error) {
	switch kind {
	case "badger":
		db, err := kvstore.OpenBadger(filepath.Join(rootDir, constant.BadgerDirName))
		if err != nil {
			return nil, nil, err
		}
		return db, db, nil
	case "bolt":
		db, err := kvstore.OpenBolt(filepath.Join(rootDir, constant.BoltFileName))
		if err != nil {
			return nil, nil, err
		}
		return db, db, nil
	case "registry":
		store, err := openRegistry()
		if err != nil {
			return nil, nil, err
		}
		return store, nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown store %q", kind)
	}
}

func newDMClient(c *cli.Context) (*dmclient.Client, error) {
	tlsConf, err := dmhttp.TLSConfig(c.String("dm-certificate"), c.Bool("insecure"))
	if err != nil {
		return nil, err
	}
	if tlsConf.RootCAs != nil {
		// Check and log if there are any errors with the TLS connection.
		ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
		defer cancel()
		if err := certificate.ValidateConnectionContext(ctx, tlsConf.RootCAs, c.String("dm-url")); err != nil {
			log.Info().Err(err).Msg("failed to connect to device management server, registration may fail")
		}
	}
	return dmclient.NewClient(dmclient.Options{
		URL:            c.String("dm-url"),
		ProductName:    c.String("product-name"),
		ProductVersion: version,
		Doer: dmhttp.NewClient(
			dmhttp.WithTimeout(c.Duration("timeout")),
			dmhttp.WithTLSClientConfig(tlsConf),
		),
	})
}
