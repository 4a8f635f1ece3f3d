// Package logging configures the global zerolog logger of the agent.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fleetdm/dmagent/pkg/constant"
	"github.com/fleetdm/dmagent/pkg/secure"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configure Setup.
type Options struct {
	// Debug enables debug level logs.
	Debug bool
	// File is the path of the rotating log file. Logs only go to stderr when
	// empty.
	File string
	// Stderr defaults to os.Stderr.
	Stderr io.Writer
}

// Setup points the global logger to stderr and, if configured, to a rolling
// log file. If the log file cannot be set up, logs are still printed to
// stderr. The returned closer releases the log file.
func Setup(opts Options) io.Closer {
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	stderrOut := zerolog.ConsoleWriter{Out: opts.Stderr, TimeFormat: time.RFC3339Nano, NoColor: true}

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if opts.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	if opts.File == "" {
		log.Logger = log.Output(stderrOut)
		return nopCloser{}
	}

	if err := secure.MkdirAll(filepath.Dir(opts.File), constant.DefaultDirMode); err != nil {
		log.Logger = log.Output(stderrOut)
		log.Error().Err(err).Msg("make directories for log file")
		return nopCloser{}
	}

	logFile := &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    25, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
	}
	log.Logger = log.Output(zerolog.MultiLevelWriter(
		zerolog.ConsoleWriter{Out: logFile, TimeFormat: time.RFC3339Nano, NoColor: true},
		stderrOut,
	))
	return logFile
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// LogErrIfEnvNotSet logs if the environment variable is not set to "1".
func LogErrIfEnvNotSet(envVarName string, err error, message string) {
	actualValue := os.Getenv(envVarName)
	if actualValue != "1" {
		log.Info().Err(err).Msg(message)
	}
}
