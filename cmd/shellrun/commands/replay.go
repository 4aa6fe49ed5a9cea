package commands

import (
	"github.com/spf13/cobra"
)

func replayCmd(g *globalOptions) *cobra.Command {
	var echo, quiet bool

	cmd := &cobra.Command{
		Use:   "replay <id>",
		Short: "Run a recorded command again in its recorded directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := buildEnv(cmd, g, true)
			if err != nil {
				return err
			}
			defer e.close()

			out, err := e.session.Replay(cmd.Context(), args[0], echo)
			if err != nil {
				return err
			}
			e.logger.Info().Str("id", out.Result.ID).Str("command", out.Result.Command).Msg("replayed")

			if !echo && !quiet {
				printCaptured(cmd, out.Result)
			}
			return exitStatus(out)
		},
	}

	cmd.Flags().BoolVarP(&echo, "echo", "e", false, "echo tagged lines as they arrive")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "do not print captured output")
	return cmd
}
