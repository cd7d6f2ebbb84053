package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/goopsie/bmlmod/pkg/archive"
	"github.com/goopsie/bmlmod/pkg/config"
)

func newGameCmd() *cobra.Command {
	var gameVersion string
	cmd := &cobra.Command{
		Use:   "game [path]",
		Short: "Show or set the game folder and version",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				gamePath = args[0]
			}
			env, err := loadEnvironment()
			if err != nil {
				return err
			}
			if len(args) == 1 {
				env.Core.SetGamePath(args[0])
			}
			if gameVersion != "" {
				hash, err := baseHash(env)
				if err != nil {
					return err
				}
				env.Core.SetGameVersion(gameVersion, hash)
			}
			if err := env.Core.Save(); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Game:       %s\n", env.Core.GamePath())
			fmt.Fprintf(out, "Containers: %d\n", len(env.Swfs))
			fmt.Fprintf(out, "Files:      %d\n", len(env.Files))
			if v := currentGameVersion(env); v != "" {
				fmt.Fprintf(out, "Version:    %s\n", v)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&gameVersion, "set-version", "", "Record the version of the installed game")
	return cmd
}

// baseHash identifies the installed game build by its main container.
func baseHash(env *config.Environment) (string, error) {
	path, err := env.SwfPath(env.BaseSwf)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", env.BaseSwf, err)
	}
	return archive.Sum(data), nil
}

// currentGameVersion returns the recorded version if the game has not
// changed since, or "".
func currentGameVersion(env *config.Environment) string {
	hash, err := baseHash(env)
	if err != nil {
		env.Logger.Debug("no game version", "error", err)
		return ""
	}
	v, _ := env.Core.GameVersion(hash)
	return v
}
