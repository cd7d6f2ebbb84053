// Package logging builds the hclog loggers used across bmlmod.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/hashicorp/go-hclog"
)

// Environment variables read by FromEnv.
const (
	EnvLogLevel = "BMLMOD_LOG_LEVEL"
	EnvJSONLog  = "BMLMOD_JSON_LOG"
)

// DefaultLevel is used when no level is configured.
const DefaultLevel = "warn"

// Options selects the level and format of the root logger.
type Options struct {
	Level  string
	JSON   bool
	Output io.Writer
}

// FromEnv returns options filled from BMLMOD_LOG_LEVEL and BMLMOD_JSON_LOG.
func FromEnv() Options {
	return Options{
		Level: strings.TrimSpace(os.Getenv(EnvLogLevel)),
		JSON:  os.Getenv(EnvJSONLog) == "1",
	}
}

// New creates the root "bmlmod" logger. Text output has no timestamps since
// it goes to a terminal; JSON output keeps them.
func New(opts Options) hclog.Logger {
	if opts.Output == nil {
		opts.Output = os.Stderr
	}
	if opts.Level == "" {
		opts.Level = DefaultLevel
	}
	level := hclog.LevelFromString(opts.Level)
	if level == hclog.NoLevel {
		level = hclog.LevelFromString(DefaultLevel)
	}
	return hclog.New(&hclog.LoggerOptions{
		Name:        "bmlmod",
		Level:       level,
		JSONFormat:  opts.JSON,
		Output:      opts.Output,
		DisableTime: !opts.JSON,
	})
}

// Component returns the sub-logger of one component, tagged with args.
// A nil parent gives a null logger so components never check for nil.
func Component(parent hclog.Logger, name string, args ...interface{}) hclog.Logger {
	if parent == nil {
		return hclog.NewNullLogger()
	}
	l := parent.Named(name)
	if len(args) > 0 {
		l = l.With(args...)
	}
	return l
}
