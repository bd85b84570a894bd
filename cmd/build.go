package cmd

import (
	"context"
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/canvas-rr/csinject/internal/config"
	"github.com/canvas-rr/csinject/pkg/extensions"
	"github.com/canvas-rr/csinject/pkg/util"
)

// BuildFunc runs a build. extensions.BuildContentScripts in production.
type BuildFunc func(ctx context.Context, in extensions.BuildInput) (*extensions.BuildOutput, error)

// BuildCmd handles the build command with an injectable build step.
type BuildCmd struct {
	build   BuildFunc
	version string
}

type BuildCmdInput struct {
	ConfigPath string
	Flags      *pflag.FlagSet // Overrides for out, tag, name, parallel, zip
	Sources    []string
	Output     string
}

// prepare loads and validates the config and turns it into a build request.
func (b BuildCmd) prepare(in BuildCmdInput) (*config.Config, extensions.BuildInput, error) {
	cfg, err := config.Load(in.ConfigPath)
	if err != nil {
		return nil, extensions.BuildInput{}, err
	}
	if in.Flags != nil {
		if err := cfg.ApplyFlags(in.Flags); err != nil {
			return nil, extensions.BuildInput{}, err
		}
	}
	if err := cfg.AddSources(in.Sources...); err != nil {
		return nil, extensions.BuildInput{}, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, extensions.BuildInput{}, fmt.Errorf("invalid config: %w", err)
	}
	if err := cfg.CheckVersion(b.version); err != nil {
		return nil, extensions.BuildInput{}, err
	}

	bi, err := cfg.BuildInput()
	if err != nil {
		return nil, extensions.BuildInput{}, err
	}
	return cfg, bi, nil
}

func (b BuildCmd) Run(ctx context.Context, in BuildCmdInput) (*extensions.BuildOutput, error) {
	if in.Output != "" && in.Output != "json" {
		return nil, fmt.Errorf("unsupported --output value: use 'json'")
	}
	jsonOutput := in.Output == "json"

	if jsonOutput && pterm.Output {
		pterm.DisableOutput()
		defer pterm.EnableOutput()
	}

	_, bi, err := b.prepare(in)
	if err != nil {
		return nil, err
	}
	return b.execute(ctx, bi, jsonOutput)
}

// execute builds an already prepared request and reports the result.
func (b BuildCmd) execute(ctx context.Context, bi extensions.BuildInput, jsonOutput bool) (*extensions.BuildOutput, error) {
	out, err := b.build(ctx, bi)
	if err != nil {
		return nil, err
	}

	if jsonOutput {
		return out, util.PrintPrettyJSON(out)
	}
	extensions.DisplayBuildSuccess(out)
	return out, nil
}

var buildCmd = &cobra.Command{
	Use:   "build [src...]",
	Short: "Build injector loaders for content scripts",
	Long: `Clean the output directory, then embed every configured content script
into a loader named <name>.content.js. Sources given as arguments are added
to those listed in csinject.yaml.`,
	RunE: runBuild,
}

func addBuildFlags(c *cobra.Command) {
	c.Flags().StringP("config", "c", "", "Path to the config file (default csinject.yaml, or $CSINJECT_CONFIG)")
	c.Flags().StringP("out", "o", "", "Output directory (default \"out\")")
	c.Flags().String("tag", "", "Tag shown in the loader's console announcement")
	c.Flags().String("name", "", "Script name shown in the announcement (default: each source's file name)")
	c.Flags().IntP("parallel", "p", 0, "Number of scripts built at once (0 uses all CPUs)")
	c.Flags().String("zip", "", "Also pack the output directory into this zip file")
}

func init() {
	addBuildFlags(buildCmd)
	buildCmd.Flags().String("output", "", "Output format: json")

	rootCmd.AddCommand(buildCmd)
}

func runBuild(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	output, _ := cmd.Flags().GetString("output")

	b := BuildCmd{build: extensions.BuildContentScripts, version: metadata.Version}
	_, err := b.Run(cmd.Context(), BuildCmdInput{
		ConfigPath: configPath,
		Flags:      cmd.Flags(),
		Sources:    args,
		Output:     output,
	})
	return err
}
