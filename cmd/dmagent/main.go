package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fleetdm/dmagent/pkg/constant"
	"github.com/fleetdm/dmagent/pkg/logging"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

var (
	// Flags set by goreleaser during build
	version = "dev"
	commit  = ""
	date    = ""
)

func main() {
	app := cli.NewApp()
	app.Name = "dmagent"
	app.Usage = "Cloud device management enrollment and policy cache agent"
	app.Commands = []*cli.Command{
		registerCommand,
		statusCommand,
		policiesCommand,
		runCommand,
		versionCommand,
	}
	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "root-dir",
			Usage:   "Root directory for agent state",
			Value:   defaultRootDir,
			EnvVars: []string{"DMAGENT_ROOT_DIR"},
		},
		&cli.StringFlag{
			Name:    "dm-url",
			Usage:   "URL of the device management server",
			Value:   "https://m.google.com/devicemanagement/data/api",
			EnvVars: []string{"DMAGENT_DM_URL"},
		},
		&cli.StringFlag{
			Name:    "enrollment-token",
			Usage:   "Enrollment token provided at runtime",
			EnvVars: []string{"DMAGENT_ENROLLMENT_TOKEN"},
		},
		&cli.StringFlag{
			Name:    "enrollment-token-path",
			Usage:   "Path to file containing the enrollment token",
			EnvVars: []string{"DMAGENT_ENROLLMENT_TOKEN_PATH"},
		},
		&cli.BoolFlag{
			Name:    "legacy-compat",
			Usage:   "Also read tokens from, and mirror the DM token to, the browser's locations",
			Value:   true,
			EnvVars: []string{"DMAGENT_LEGACY_COMPAT"},
		},
		&cli.StringFlag{
			Name:    "store",
			Usage:   "Token store: badger, bolt or registry (Windows only)",
			Value:   defaultStore,
			EnvVars: []string{"DMAGENT_STORE"},
		},
		&cli.BoolFlag{
			Name:    "insecure",
			Usage:   "Disable TLS certificate verification",
			EnvVars: []string{"DMAGENT_INSECURE"},
		},
		&cli.StringFlag{
			Name:    "dm-certificate",
			Usage:   "Path to the device management server certificate bundle",
			EnvVars: []string{"DMAGENT_DM_CERTIFICATE"},
		},
		&cli.DurationFlag{
			Name:    "timeout",
			Usage:   "Timeout of requests to the device management server",
			Value:   30 * time.Second,
			EnvVars: []string{"DMAGENT_TIMEOUT"},
		},
		&cli.StringFlag{
			Name:    "product-name",
			Usage:   "Product name reported to the device management server",
			Value:   "DMAgent",
			EnvVars: []string{"DMAGENT_PRODUCT_NAME"},
		},
		&cli.BoolFlag{
			Name:    "debug",
			Usage:   "Enable debug logging",
			EnvVars: []string{"DMAGENT_DEBUG"},
		},
		&cli.StringFlag{
			Name:    "log-file",
			Usage:   "Log to this file path in addition to stderr",
			EnvVars: []string{"DMAGENT_LOG_FILE"},
		},
	}

	var logCloser io.Closer
	app.Before = func(c *cli.Context) error {
		logCloser = logging.Setup(logging.Options{
			Debug: c.Bool("debug"),
			File:  c.String("log-file"),
		})

		if c.Bool("insecure") && c.String("dm-certificate") != "" {
			return errors.New("insecure and dm-certificate may not be specified together")
		}

		if c.String("enrollment-token-path") != "" {
			if c.String("enrollment-token") != "" {
				return errors.New("enrollment-token and enrollment-token-path may not be specified together")
			}

			b, err := os.ReadFile(c.String("enrollment-token-path"))
			if err != nil {
				return errors.Wrap(err, "read enrollment token file")
			}

			if err := c.Set("enrollment-token", strings.TrimSpace(string(b))); err != nil {
				return errors.Wrap(err, "set enrollment token from file")
			}
		}
		return nil
	}
	app.After = func(c *cli.Context) error {
		if logCloser != nil {
			return logCloser.Close()
		}
		return nil
	}

	if err := app.Run(os.Args); err != nil {
		log.Error().Err(err).Msg("")
		os.Exit(1)
	}
}

func policyDir(c *cli.Context) string {
	return filepath.Join(c.String("root-dir"), constant.PolicyResponsesDirName)
}

var versionCommand = &cli.Command{
	Name:  "version",
	Usage: "Get the dmagent version",
	Flags: []cli.Flag{},
	Action: func(c *cli.Context) error {
		fmt.Println("dmagent " + version)
		fmt.Println("commit - " + commit)
		fmt.Println("date - " + date)
		return nil
	},
}
