package cmd

import (
	"context"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/canvas-rr/csinject/internal/watch"
	"github.com/canvas-rr/csinject/pkg/extensions"
)

var watchCmd = &cobra.Command{
	Use:   "watch [src...]",
	Short: "Build, then rebuild whenever a source or the config changes",
	RunE:  runWatch,
}

func init() {
	addBuildFlags(watchCmd)
	watchCmd.Flags().Duration("debounce", watch.DefaultDebounce, "Quiet period after a change before rebuilding")

	rootCmd.AddCommand(watchCmd)
}

// StartWatch prepares the request once, builds it, and returns a watcher
// over its inputs. Rebuilds reload the config, but the set of watched files
// is fixed; restart to pick up new targets.
func (b BuildCmd) StartWatch(ctx context.Context, in BuildCmdInput) (*watch.Watcher, error) {
	cfg, bi, err := b.prepare(in)
	if err != nil {
		return nil, err
	}
	if _, err := b.execute(ctx, bi, false); err != nil {
		pterm.Error.Printf("Build failed: %v\n", err)
	}

	return watch.New(cfg.Sources(bi), func(ctx context.Context) error {
		_, err := b.Run(ctx, in)
		return err
	})
}

func runWatch(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	debounce, _ := cmd.Flags().GetDuration("debounce")

	b := BuildCmd{build: extensions.BuildContentScripts, version: metadata.Version}
	w, err := b.StartWatch(cmd.Context(), BuildCmdInput{ConfigPath: configPath, Flags: cmd.Flags(), Sources: args})
	if err != nil {
		return err
	}
	defer w.Close()
	w.Debounce = debounce

	pterm.Info.Println("Watching for changes, press Ctrl-C to stop")
	return w.Run(cmd.Context())
}
