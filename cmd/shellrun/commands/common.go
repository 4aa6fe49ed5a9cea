package commands

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ecairns22/shellrun/internal/config"
	"github.com/ecairns22/shellrun/internal/logging"
	"github.com/ecairns22/shellrun/internal/runner"
	"github.com/ecairns22/shellrun/internal/session"
	"github.com/ecairns22/shellrun/internal/state"
)

// env bundles everything a subcommand needs. The caller is responsible for
// calling close.
type env struct {
	cfg     *config.Config
	logger  zerolog.Logger
	store   *state.Store
	runner  *runner.Runner
	session *session.Session
}

func (e *env) close() {
	if e.store != nil {
		e.store.Close()
	}
}

func loadConfig(g *globalOptions) (*config.Config, error) {
	if g.configPath != "" {
		return config.LoadFrom(g.configPath)
	}
	return config.Load()
}

// buildEnv loads config, configures logging and opens the history store.
// When requireHistory is false a store that cannot be opened is logged and
// skipped so commands still run.
func buildEnv(cmd *cobra.Command, g *globalOptions, requireHistory bool) (*env, error) {
	cfg, err := loadConfig(g)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	level := cfg.Log.Level
	if g.logLevel != "" {
		level = g.logLevel
	}
	logger := logging.Configure(logging.Options{Level: level, Out: cmd.ErrOrStderr()})

	e := &env{cfg: cfg, logger: logger}

	if cfg.HistoryEnabled() {
		store, err := state.OpenFromConfig(cmd.Context(), cfg)
		switch {
		case err == nil:
			e.store = store
		case requireHistory:
			return nil, fmt.Errorf("opening history: %w", err)
		default:
			logger.Warn().Err(err).Str("driver", cfg.History.Driver).Msg("history unavailable, runs will not be recorded")
		}
	} else if requireHistory {
		return nil, session.ErrHistoryDisabled
	}

	e.runner = runner.New(
		runner.WithShell(cfg.Shell.Path),
		runner.WithConsole(cmd.OutOrStdout()),
		runner.WithLogger(logger),
	)

	// A nil *state.Store must not become a non-nil interface.
	var hs session.HistoryStore
	if e.store != nil {
		hs = e.store
	}
	e.session = session.New(hs, e.runner, logger, session.WithKeep(cfg.History.Keep))
	return e, nil
}

// printCaptured writes the captured buffers of res to the command's streams.
func printCaptured(cmd *cobra.Command, res runner.Result) {
	fmt.Fprint(cmd.OutOrStdout(), res.Stdout)
	fmt.Fprint(cmd.ErrOrStderr(), res.Stderr)
}

// Exit codes for runs that did not exit on their own.
const (
	exitTimedOut = 124
	exitKilled   = 137
)

// exitStatus maps an outcome to the process exit status of shellrun.
func exitStatus(out *session.Outcome) error {
	switch code := out.Result.ExitCode; {
	case out.TimedOut:
		return &ExitError{Code: exitTimedOut}
	case code < 0:
		return &ExitError{Code: exitKilled}
	case code != 0:
		return &ExitError{Code: code}
	default:
		return nil
	}
}
