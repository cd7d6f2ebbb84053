package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/goopsie/bmlmod/pkg/mod"
)

func newBuildCmd() *cobra.Command {
	var (
		cfg      mod.Config
		platform string
	)
	cmd := &cobra.Command{
		Use:   "build <folder>",
		Short: "Build the mod in a folder of the mods path",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := loadEnvironment()
			if err != nil {
				return err
			}
			if cfg.Platform, err = mod.ParsePlatform(platform); err != nil {
				return err
			}
			if cfg.ModName == "" {
				cfg.ModName = args[0]
			}
			if cfg.GameVersion == "" {
				cfg.GameVersion = currentGameVersion(env)
			}

			b, err := mod.NewBuilder(env, args[0])
			if err != nil {
				return err
			}
			if err := b.SetConfiguration(cfg); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			err = b.Build(cmd.Context(), func(e mod.BuildEvent) {
				fmt.Fprintf(out, "built %s %s\n", e.Kind, e.Name)
			})
			if err != nil {
				return fmt.Errorf("build %s: %w", args[0], err)
			}

			m, err := mod.Open(env, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Mod %s built\n", m)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&cfg.ModName, "name", "", "Mod name (defaults to the folder name)")
	f.StringVar(&cfg.ModAuthor, "author", "", "Mod author")
	f.StringVar(&cfg.ModVersion, "mod-version", mod.DefaultModVersion, "Mod version")
	f.StringVar(&cfg.ModDescription, "description", "", "Mod description")
	f.StringSliceVar(&cfg.ModTags, "tags", nil, "Mod tags")
	f.StringVar(&cfg.ModPreview, "preview", "", "Preview image path")
	f.StringVar(&cfg.GameVersion, "game-version", "", "Game version the mod targets (defaults to the recorded version)")
	f.StringVar(&cfg.ModID, "mod-id", "", "Mod id on the publishing platform")
	f.StringVar(&cfg.AuthorID, "author-id", "", "Author id on the publishing platform")
	f.StringVar(&platform, "platform", "", "Publishing platform (GameBanana, BHMods)")
	return cmd
}
