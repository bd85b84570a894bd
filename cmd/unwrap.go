package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/canvas-rr/csinject/pkg/injector"
)

// UnwrapCmd recovers the script embedded in a loader.
type UnwrapCmd struct {
	out io.Writer
}

type UnwrapInput struct {
	Path    string
	Tag     string
	Name    string
	Literal bool // Print the escaped literal instead of the decoded script
}

// guessName maps "x.content.js" back to the "x.js" a build would announce.
func guessName(path string) string {
	base := filepath.Base(path)
	if stem, ok := strings.CutSuffix(base, ".content.js"); ok {
		return stem + ".js"
	}
	return base
}

func (u UnwrapCmd) Run(in UnwrapInput) error {
	doc, err := os.ReadFile(in.Path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", in.Path, err)
	}

	names := []string{in.Name}
	if in.Name == "" {
		// Built files announce their source name; embed output uses the default.
		names = []string{guessName(in.Path), injector.DefaultName}
	}

	var lastErr error
	for _, name := range names {
		tpl, err := injector.New(injector.Options{Tag: in.Tag, Name: name})
		if err != nil {
			return err
		}

		var data []byte
		if in.Literal {
			data, err = tpl.Extract(doc)
		} else {
			data, err = tpl.Unwrap(doc)
		}
		if errors.Is(err, injector.ErrNotInjector) {
			lastErr = err
			continue
		}
		if err != nil {
			return err
		}

		if _, err := u.out.Write(data); err != nil {
			return fmt.Errorf("failed to write script: %w", err)
		}
		return nil
	}
	return fmt.Errorf("%s: %w (try --tag or --name)", in.Path, lastErr)
}

var unwrapCmd = &cobra.Command{
	Use:   "unwrap <file>",
	Short: "Print the script embedded in a loader",
	Args:  cobra.ExactArgs(1),
	RunE:  runUnwrap,
}

func init() {
	unwrapCmd.Flags().String("tag", injector.DefaultTag, "Tag the loader was built with")
	unwrapCmd.Flags().String("name", "", "Script name the loader was built with (default: guessed from the file name)")
	unwrapCmd.Flags().Bool("literal", false, "Print the escaped template literal instead of the script")

	rootCmd.AddCommand(unwrapCmd)
}

func runUnwrap(cmd *cobra.Command, args []string) error {
	tag, _ := cmd.Flags().GetString("tag")
	name, _ := cmd.Flags().GetString("name")
	literal, _ := cmd.Flags().GetBool("literal")

	u := UnwrapCmd{out: os.Stdout}
	return u.Run(UnwrapInput{Path: args[0], Tag: tag, Name: name, Literal: literal})
}
