package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/goopsie/bmlmod/pkg/config"
	"github.com/goopsie/bmlmod/pkg/mod"
	"github.com/goopsie/bmlmod/pkg/processor"
)

// resolveMods finds mods by hash or folder name.
func resolveMods(finder *mod.Finder, args []string) ([]*mod.Mod, error) {
	var mods []*mod.Mod
	for _, arg := range args {
		m := finder.ByHash(arg)
		if m == nil {
			for _, candidate := range finder.Mods() {
				if candidate.Folder == arg {
					m = candidate
					break
				}
			}
		}
		if m == nil {
			return nil, fmt.Errorf("unknown mod %q", arg)
		}
		mods = append(mods, m)
	}
	return mods, nil
}

func printConflicts(w io.Writer, conflicts map[*mod.Mod][]*mod.Mod) {
	for m, others := range conflicts {
		for _, other := range others {
			fmt.Fprintf(w, "warning: %s conflicts with %s\n", m, other)
		}
	}
}

func printEvents(w io.Writer, total int) func(processor.Event) {
	step := 0
	return func(e processor.Event) {
		if e.Kind == processor.Done {
			step++
			return
		}
		fmt.Fprintf(w, "[%d/%d] %s\n", step, total, e)
	}
}

func runProcessor(cmd *cobra.Command, args []string, install bool) error {
	env, err := loadEnvironment()
	if err != nil {
		return err
	}
	finder, err := mod.NewFinder(env)
	if err != nil {
		return err
	}
	mods, err := resolveMods(finder, args)
	if err != nil {
		return err
	}

	p := processor.New(env, finder)
	if install {
		p.AddModsToInstall(mods...)
	} else {
		p.AddModsToUninstall(mods...)
	}
	out := cmd.OutOrStdout()
	printConflicts(out, p.Conflicts())
	if err := p.Run(cmd.Context(), printEvents(out, p.Steps())); err != nil {
		return err
	}
	fmt.Fprintln(out, "Done")
	return nil
}

func newInstallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "install <mod>...",
		Short: "Install mods by hash or folder name",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProcessor(cmd, args, true)
		},
	}
}

func newUninstallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall <mod>...",
		Short: "Uninstall mods by hash or folder name",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProcessor(cmd, args, false)
		},
	}
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List known mods",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := loadEnvironment()
			if err != nil {
				return err
			}
			finder, err := mod.NewFinder(env)
			if err != nil {
				return err
			}
			return listMods(cmd.OutOrStdout(), env, finder)
		},
	}
}

func listMods(w io.Writer, env *config.Environment, finder *mod.Finder) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "HASH\tNAME\tVERSION\tAUTHOR\tSTATE")
	for _, m := range finder.Mods() {
		var state []string
		if finder.IsInstalled(m) {
			state = append(state, "installed")
		}
		if m.Ghost() {
			state = append(state, "ghost")
		}
		if m.GameVersion != "" && m.GameVersion != currentGameVersion(env) {
			state = append(state, "outdated")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%v\n", m.ModHash, m.ModName, m.ModVersion, m.ModAuthor, state)
	}
	return tw.Flush()
}
