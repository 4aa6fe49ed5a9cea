package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func pruneCmd(g *globalOptions) *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete recorded runs older than a given age",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := buildEnv(cmd, g, true)
			if err != nil {
				return err
			}
			defer e.close()

			n, err := e.session.Prune(cmd.Context(), olderThan)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d run(s) older than %s.\n", n, olderThan)
			return nil
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 720*time.Hour, "minimum age of runs to delete")
	return cmd
}
