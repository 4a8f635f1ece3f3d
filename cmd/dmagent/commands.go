package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fleetdm/dmagent/pkg/dmclient"
	"github.com/fleetdm/dmagent/pkg/policystore"
	"github.com/oklog/run"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

var registerCommand = &cli.Command{
	Name:  "register",
	Usage: "Register the machine with the device management server if needed",
	Action: func(c *cli.Context) error {
		state, err := openState(c)
		if err != nil {
			return err
		}
		defer state.Close()

		client, err := newDMClient(c)
		if err != nil {
			return err
		}

		res, err := registerCycle(state, client)
		if err != nil {
			return err
		}
		fmt.Println(res)
		return nil
	},
}

var statusCommand = &cli.Command{
	Name:  "status",
	Usage: "Print the registration state of the machine",
	Action: func(c *cli.Context) error {
		state, err := openState(c)
		if err != nil {
			return err
		}
		defer state.Close()

		s := state.storage
		fmt.Printf("state: %s\n", dmclient.GetRegistrationState(s))
		fmt.Printf("enrollment token source: %s\n", s.EnrollmentTokenSource())
		fmt.Printf("dm token source: %s\n", s.DMTokenSource())
		fmt.Printf("device id: %s\n", s.DeviceID())
		return nil
	},
}

var policiesCommand = &cli.Command{
	Name:  "policies",
	Usage: "Inspect or update the policy cache",
	Subcommands: []*cli.Command{
		{
			Name:  "list",
			Usage: "List the cached policy types and the cached public key",
			Action: func(c *cli.Context) error {
				store, err := policystore.New(policyDir(c))
				if err != nil {
					return err
				}

				policyTypes, err := store.PolicyTypes()
				if err != nil {
					return err
				}
				for _, policyType := range policyTypes {
					fmt.Println(policyType)
				}

				key, err := store.ReadCachedPublicKey()
				switch {
				case err != nil:
					log.Warn().Err(err).Msg("read cached public key")
				case key == nil:
					fmt.Println("public key: none")
				case key.IsVersionValid:
					fmt.Printf("public key: %d bytes, version %d\n", len(key.Key), key.Version)
				default:
					fmt.Printf("public key: %d bytes, no version\n", len(key.Key))
				}
				return nil
			},
		},
		{
			Name:      "import",
			Usage:     "Replace the cache with serialized policy fetch responses",
			ArgsUsage: "<policy type>=<response file> ...",
			Flags: []cli.Flag{
				&cli.BoolFlag{
					Name:  "new-public-key",
					Usage: "The responses carry a new signing key",
				},
			},
			Action: func(c *cli.Context) error {
				responses, err := readResponses(c.Args().Slice())
				if err != nil {
					return err
				}
				responses.HasNewPublicKey = c.Bool("new-public-key")

				store, err := policystore.New(policyDir(c))
				if err != nil {
					return err
				}
				return store.PersistPolicies(responses)
			},
		},
	},
}

// readResponses reads "<policy type>=<file>" arguments.
func readResponses(args []string) (policystore.PolicyResponses, error) {
	responses := policystore.PolicyResponses{Responses: make(map[string][]byte, len(args))}
	for _, arg := range args {
		policyType, file, ok := strings.Cut(arg, "=")
		if !ok || policyType == "" || file == "" {
			return responses, fmt.Errorf("invalid response argument %q", arg)
		}
		b, err := os.ReadFile(file)
		if err != nil {
			return responses, errors.Wrapf(err, "read response of %s", policyType)
		}
		responses.Responses[policyType] = b
	}
	return responses, nil
}

var runCommand = &cli.Command{
	Name:  "run",
	Usage: "Keep registering the machine until it succeeds, then check periodically",
	Flags: []cli.Flag{
		&cli.DurationFlag{
			Name:    "check-interval",
			Usage:   "Interval between registration checks",
			Value:   time.Hour,
			EnvVars: []string{"DMAGENT_CHECK_INTERVAL"},
		},
	},
	Action: func(c *cli.Context) error {
		state, err := openState(c)
		if err != nil {
			return err
		}
		defer state.Close()

		client, err := newDMClient(c)
		if err != nil {
			return err
		}

		var g run.Group

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		g.Add(
			func() error {
				return runCycles(ctx, c.Duration("check-interval"), func() error {
					_, err := registerCycle(state, client)
					return err
				})
			},
			func(error) { cancel() },
		)
		g.Add(signalHandler(ctx))

		// the cycle actor only returns once ctx is done, so any error comes
		// from the signal handler
		if err := g.Run(); err != nil {
			log.Info().Err(err).Msg("exiting")
		}
		return nil
	},
}

// registerCycle registers the machine if needed. Once registered with a
// runtime provided enrollment token, the token is kept for later runs.
func registerCycle(state *agentState, registrar dmclient.Registrar) (dmclient.RegisterResult, error) {
	res, err := dmclient.RegisterIfNeeded(state.storage, registrar)
	if err != nil {
		// the next cycle reads the machine identifier again
		state.storage.InvalidateDeviceID()
		return res, err
	}
	if res == dmclient.RegisterResultRegistered {
		if _, err := state.storage.StoreRuntimeEnrollmentTokenForInstall(); err != nil {
			log.Warn().Err(err).Msg("store runtime enrollment token")
		}
	}
	return res, nil
}
