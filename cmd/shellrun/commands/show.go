package commands

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

func showCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a recorded run and its captured output",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := buildEnv(cmd, g, true)
			if err != nil {
				return err
			}
			defer e.close()

			run, err := e.session.Show(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("%w; run 'shellrun history' to see recorded runs", err)
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "ID:          %s\n", run.ID)
			fmt.Fprintf(w, "Command:     %s\n", run.Command)
			if run.Dir != "" {
				fmt.Fprintf(w, "Directory:   %s\n", run.Dir)
			}
			fmt.Fprintf(w, "Exit code:   %s\n", exitColumn(run))
			fmt.Fprintf(w, "Started:     %s\n", run.StartedAt.Format("2006-01-02 15:04:05.000"))
			if run.Finished && !run.FinishedAt.IsZero() {
				fmt.Fprintf(w, "Finished:    %s\n", run.FinishedAt.Format("2006-01-02 15:04:05.000"))
				fmt.Fprintf(w, "Duration:    %s\n", durationColumn(run))
			}

			keys := make([]string, 0, len(run.Detail))
			for k := range run.Detail {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(w, "  %s: %s\n", k, run.Detail[k])
			}

			if run.Stdout != "" {
				fmt.Fprintf(w, "\n%s", run.Stdout)
			}
			if run.Stderr != "" {
				fmt.Fprintf(w, "\n%s", run.Stderr)
			}
			return nil
		},
	}
}
