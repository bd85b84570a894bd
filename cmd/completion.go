package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish]",
	Short: "Generate shell completion scripts",
	Long: `Generate shell completion scripts for csinject.

To load completions:

Bash:
  $ source <(csinject completion bash)

  # To load completions for each session, execute once:
  # Linux:
  $ csinject completion bash > /etc/bash_completion.d/csinject
  # macOS:
  $ csinject completion bash > $(brew --prefix)/etc/bash_completion.d/csinject

Zsh:
  # If shell completion is not already enabled in your environment,
  # you will need to enable it. You can execute the following once:
  $ echo "autoload -U compinit; compinit" >> ~/.zshrc

  # To load completions for each session, execute once:
  $ csinject completion zsh > "${fpath[1]}/_csinject"

  # You will need to start a new shell for this setup to take effect.

Fish:
  $ csinject completion fish | source

  # To load completions for each session, execute once:
  $ csinject completion fish > ~/.config/fish/completions/csinject.fish
`,
	DisableFlagsInUseLine: true,
	ValidArgs:             []string{"bash", "zsh", "fish"},
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		return writeCompletion(cmd.Root(), args[0], os.Stdout)
	},
}

func init() {
	rootCmd.AddCommand(completionCmd)
}

func writeCompletion(root *cobra.Command, shell string, w io.Writer) error {
	switch shell {
	case "bash":
		return root.GenBashCompletionV2(w, true)
	case "zsh":
		return root.GenZshCompletion(w)
	case "fish":
		return root.GenFishCompletion(w, true)
	}
	return fmt.Errorf("unsupported shell %q", shell)
}
