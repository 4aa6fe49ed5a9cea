package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ecairns22/shellrun/internal/runner"
	"github.com/ecairns22/shellrun/internal/session"
)

const pollInterval = 100 * time.Millisecond

type runOptions struct {
	dir       string
	async     bool
	echo      bool
	timeout   time.Duration
	noHistory bool
	quiet     bool
}

func runCmd(g *globalOptions) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run [flags] -- <command...>",
		Short: "Run a command through the platform shell",
		Long: `Run a command through the platform shell and print its captured output.

shellrun exits with the command's exit status. A command killed by --timeout
exits with 124; one killed by a signal exits with 137.`,
		Example: `  shellrun run -- ls -la
  shellrun run -C /tmp --echo -- 'make build 2>&1 | tail -n 20'`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := buildEnv(cmd, g, false)
			if err != nil {
				return err
			}
			defer e.close()

			flags := cmd.Flags()
			if !flags.Changed("dir") {
				opts.dir = e.cfg.Run.Dir
			}
			if !flags.Changed("echo") {
				opts.echo = e.cfg.Run.Echo
			}
			if !flags.Changed("timeout") {
				opts.timeout = e.cfg.Run.TimeoutDuration
			}

			req := session.Request{
				Command: strings.Join(args, " "),
				Dir:     opts.dir,
				Echo:    opts.echo,
				Timeout: opts.timeout,
				Record:  !opts.noHistory,
			}

			var out *session.Outcome
			if opts.async {
				out, err = runAsync(cmd.Context(), e, req)
			} else {
				out, err = e.session.Run(cmd.Context(), req)
			}
			if err != nil {
				return err
			}

			if !opts.echo && !opts.quiet {
				printCaptured(cmd, out.Result)
			}
			return exitStatus(out)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.dir, "dir", "C", "", "working directory for the command")
	f.BoolVar(&opts.async, "async", false, "start the command and poll until it finishes")
	f.BoolVarP(&opts.echo, "echo", "e", false, "echo tagged lines as they arrive")
	f.DurationVar(&opts.timeout, "timeout", 0, "kill the command after this long (0 = no limit)")
	f.BoolVar(&opts.noHistory, "no-history", false, "do not record this run")
	f.BoolVarP(&opts.quiet, "quiet", "q", false, "do not print captured output")

	return cmd
}

// runAsync starts the command without blocking, polls the runner until the
// process has exited and hands the result to the session like a synchronous run.
func runAsync(ctx context.Context, e *env, req session.Request) (*session.Outcome, error) {
	runCtx := ctx
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	exe, err := e.runner.Run(runCtx, req.Command, runner.RunOptions{Dir: req.Dir, Echo: req.Echo, Async: true})
	if err != nil {
		return nil, err
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for e.runner.Status() == runner.StatusRunning {
		e.logger.Trace().Int("pid", exe.Pid()).Msg("waiting for command")
		<-ticker.C
	}
	<-exe.Done()

	res := exe.Result()
	var runErr error
	if res.ExitCode < 0 && runCtx.Err() != nil {
		runErr = fmt.Errorf("%w: %s: %w", runner.ErrWaitInterrupted, req.Command, runCtx.Err())
	}
	return e.session.Complete(ctx, req, res, runErr)
}
