package commands

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/ecairns22/shellrun/internal/session"
	"github.com/ecairns22/shellrun/internal/state"
)

const (
	shortIDLen    = 8
	commandColLen = 48
)

func historyCmd(g *globalOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := buildEnv(cmd, g, true)
			if err != nil {
				return err
			}
			defer e.close()

			runs, err := e.session.History(cmd.Context(), limit)
			if err != nil {
				return err
			}

			if len(runs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded. Run 'shellrun run -- <command>' to get started.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSTARTED\tEXIT\tDURATION\tDIR\tCOMMAND")
			for _, run := range runs {
				dir := run.Dir
				if dir == "" {
					dir = "-"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					shortID(run.ID),
					run.StartedAt.Format("2006-01-02 15:04:05"),
					exitColumn(run),
					durationColumn(run),
					dir,
					truncate(run.Command, commandColLen),
				)
			}
			w.Flush()
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of runs to list (0 = all)")
	return cmd
}

func shortID(id string) string {
	if len(id) <= shortIDLen {
		return id
	}
	return id[:shortIDLen]
}

func exitColumn(run *state.Run) string {
	if !run.Finished {
		return "?"
	}
	if run.Detail[session.DetailTimedOut] == "true" {
		return "timeout"
	}
	return fmt.Sprintf("%d", run.ExitCode)
}

func durationColumn(run *state.Run) string {
	if !run.Finished || run.FinishedAt.IsZero() {
		return "-"
	}
	return run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond).String()
}

// truncate shortens s to at most n runes.
func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-3]) + "..."
}
