// Command bmlmod builds, installs and uninstalls game mods.
package main

import (
	"fmt"
	"os"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"

	"github.com/goopsie/bmlmod/pkg/config"
	"github.com/goopsie/bmlmod/pkg/logging"
)

const version = "0.1.0"

var (
	gamePath string
	modsPath string
	dataPath string
	logLevel string
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "bmlmod",
		Short:         "Build and install game mods",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&gamePath, "game", "", "Game folder (defaults to the stored game path)")
	root.PersistentFlags().StringVar(&modsPath, "mods", "", "Mods folder (defaults to <data>/mods)")
	root.PersistentFlags().StringVar(&dataPath, "data", "", "Data folder holding settings and dumps")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (trace, debug, info, warn, error)")

	root.AddCommand(
		newBuildCmd(),
		newInstallCmd(),
		newUninstallCmd(),
		newListCmd(),
		newGameCmd(),
		newSchemaCmd(),
	)
	return root
}

// newLogger builds the root logger; --log-level overrides BMLMOD_LOG_LEVEL.
func newLogger() hclog.Logger {
	opts := logging.FromEnv()
	if logLevel != "" {
		opts.Level = logLevel
	}
	return logging.New(opts)
}

// loadEnvironment builds the environment from the persistent flags.
func loadEnvironment() (*config.Environment, error) {
	env, err := config.NewEnvironment(config.Options{
		GamePath: gamePath,
		ModsPath: modsPath,
		DataPath: dataPath,
		Logger:   newLogger(),
	})
	if err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}
	return env, nil
}
