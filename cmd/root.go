package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/fang"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/canvas-rr/csinject/internal/config"
)

// Metadata identifies the running binary. It is set from ldflags in main.
type Metadata struct {
	Version string
	Commit  string
	Date    string
}

var metadata = Metadata{Version: "dev"}

var rootCmd = &cobra.Command{
	Use:   "csinject",
	Short: "Embed content scripts into self-injecting page loaders",
	Long: `csinject turns a browser extension content script into a loader that
re-creates the script from a blob: URL and appends it to the page, so it
runs in the page's own JavaScript context.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if quiet, _ := cmd.Flags().GetBool("quiet"); quiet {
			pterm.DisableOutput()
		}
		return config.LoadEnv()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "Suppress progress output")
}

// Execute runs the root command and exits non-zero on failure.
func Execute(m Metadata) {
	metadata = m

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := fang.Execute(ctx, rootCmd,
		fang.WithVersion(m.Version),
		fang.WithCommit(m.Commit),
	)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
