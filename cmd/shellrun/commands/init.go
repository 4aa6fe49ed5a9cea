package commands

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ecairns22/shellrun/internal/config"
	"github.com/ecairns22/shellrun/internal/runner"
)

func initCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "First-time setup: write config template, check the shell and history store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(cmd, g)
		},
	}
}

func runInit(cmd *cobra.Command, g *globalOptions) error {
	out := cmd.OutOrStdout()

	// 1. Write template config if missing
	configPath := g.configPath
	if configPath == "" {
		configPath = config.DefaultPath()
	}
	if _, err := os.Stat(configPath); errors.Is(err, os.ErrNotExist) {
		if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}
		if err := os.WriteFile(configPath, []byte(config.TemplateConfig()), 0600); err != nil {
			return fmt.Errorf("writing config template: %w", err)
		}
		fmt.Fprintf(out, "  wrote config template to %s\n", configPath)
	}
	g.configPath = configPath

	// 2. Load config and open history
	e, err := buildEnv(cmd, g, false)
	if err != nil {
		return err
	}
	defer e.close()
	fmt.Fprintf(out, "  config loaded from %s\n", configPath)

	// 3. Check the shell resolves
	p := e.runner.Runtime()
	fmt.Fprintf(out, "  platform: %s\n", p)
	res, err := e.runner.Execute(cmd.Context(), "echo ok", runner.RunOptions{})
	if err != nil {
		fmt.Fprintf(out, "  shell %s: FAILED (%v)\n", p.Shell, err)
		return err
	}
	if !res.Succeeded() {
		fmt.Fprintf(out, "  shell %s: FAILED (exit %d)\n", p.Shell, res.ExitCode)
		return fmt.Errorf("shell %s exited with %d", p.Shell, res.ExitCode)
	}
	fmt.Fprintf(out, "  shell %s: OK\n", p.Shell)

	// 4. Verify history store
	switch {
	case !e.cfg.HistoryEnabled():
		fmt.Fprintf(out, "  history: disabled\n")
	case e.store == nil:
		fmt.Fprintf(out, "  history (%s): FAILED\n", e.cfg.History.Driver)
		return fmt.Errorf("history store could not be opened; see log above")
	default:
		if err := e.store.Ping(cmd.Context()); err != nil {
			fmt.Fprintf(out, "  history (%s): FAILED (%v)\n", e.cfg.History.Driver, err)
			return err
		}
		fmt.Fprintf(out, "  history (%s): OK\n", e.cfg.History.Driver)
	}

	fmt.Fprintf(out, "\nshellrun initialized successfully.\n")
	return nil
}
