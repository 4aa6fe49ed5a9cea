package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

type globalOptions struct {
	configPath string
	logLevel   string
}

// ExitError carries a child's non-zero exit status up to main.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// Root returns the root cobra command with all subcommands attached.
func Root() *cobra.Command {
	g := &globalOptions{}

	cmd := &cobra.Command{
		Use:           "shellrun",
		Short:         "Run shell commands and capture their output",
		Long:          "shellrun runs a command through the platform shell, drains stdout and stderr concurrently, and keeps a history of finished runs.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&g.configPath, "config", "", "config file (default $SHELLRUN_CONFIG or the user config dir)")
	cmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "diagnostic log level (trace, debug, info, warn, error)")

	cmd.AddCommand(initCmd(g))
	cmd.AddCommand(runCmd(g))
	cmd.AddCommand(historyCmd(g))
	cmd.AddCommand(showCmd(g))
	cmd.AddCommand(replayCmd(g))
	cmd.AddCommand(pruneCmd(g))
	cmd.AddCommand(versionCmd())

	return cmd
}
