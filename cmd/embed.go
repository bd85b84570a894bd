package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/canvas-rr/csinject/pkg/injector"
)

// EmbedCmd turns one script read from in into a loader written to out.
type EmbedCmd struct {
	in  io.Reader
	out io.Writer
}

type EmbedInput struct {
	Tag  string
	Name string
}

func (e EmbedCmd) Run(in EmbedInput) error {
	tpl, err := injector.New(injector.Options{Tag: in.Tag, Name: in.Name})
	if err != nil {
		return err
	}
	src, err := io.ReadAll(e.in)
	if err != nil {
		return fmt.Errorf("failed to read script: %w", err)
	}
	if _, err := e.out.Write(tpl.FromScript(src)); err != nil {
		return fmt.Errorf("failed to write loader: %w", err)
	}
	return nil
}

var embedCmd = &cobra.Command{
	Use:   "embed",
	Short: "Wrap a script read from stdin into a loader on stdout",
	Example: `  csinject embed < rr-record.js > rr-record.content.js
  csinject embed --tag rr --name rr-record.js < rr-record.js`,
	Args: cobra.NoArgs,
	RunE: runEmbed,
}

func init() {
	embedCmd.Flags().String("tag", injector.DefaultTag, "Tag shown in the loader's console announcement")
	embedCmd.Flags().String("name", injector.DefaultName, "Script name shown in the announcement")

	rootCmd.AddCommand(embedCmd)
}

func runEmbed(cmd *cobra.Command, args []string) error {
	tag, _ := cmd.Flags().GetString("tag")
	name, _ := cmd.Flags().GetString("name")

	e := EmbedCmd{in: os.Stdin, out: os.Stdout}
	return e.Run(EmbedInput{Tag: tag, Name: name})
}
