package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// CommandRunner abstracts synchronous command execution for testability.
type CommandRunner interface {
	Execute(ctx context.Context, command string, opts RunOptions) (Result, error)
}

// RunOptions controls a single invocation.
type RunOptions struct {
	// Dir is the working directory. Empty inherits the caller's.
	Dir string
	// Async returns as soon as the child and its drainers are started.
	Async bool
	// Echo writes every tagged line to the runner's console as it arrives.
	Echo bool
	// Sink, if set, receives every tagged line from both streams.
	Sink io.Writer
}

// DefaultWaitDelay bounds how long output is still read after the child has
// exited while a background grandchild keeps its streams open.
const DefaultWaitDelay = 500 * time.Millisecond

// Runner spawns shell commands and keeps the most recent execution.
//
// Each Run replaces the previous execution, including when the new one fails
// to start; the accessors below always describe the latest call. Callers that
// need several results at once should keep the *Execution returned by Run.
type Runner struct {
	platform  Platform
	console   io.Writer
	logger    zerolog.Logger
	waitDelay time.Duration

	mu   sync.Mutex
	last *Execution
}

// Option configures a Runner.
type Option func(*Runner)

// WithShell overrides the interpreter used to run commands.
func WithShell(shell string) Option {
	return func(r *Runner) {
		if shell != "" {
			r.platform.Shell = shell
		}
	}
}

// WithPlatform replaces the detected host platform.
func WithPlatform(p Platform) Option {
	return func(r *Runner) { r.platform = p }
}

// WithConsole sets where echoed lines are written. Defaults to os.Stdout.
func WithConsole(w io.Writer) Option {
	return func(r *Runner) { r.console = w }
}

// WithLogger sets the diagnostic logger. Defaults to the global zerolog logger.
func WithLogger(l zerolog.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// WithWaitDelay sets how long the streams are drained after the child exits
// before they are closed. Zero or less waits for end-of-stream indefinitely.
func WithWaitDelay(d time.Duration) Option {
	return func(r *Runner) { r.waitDelay = d }
}

// New creates a Runner for the host platform.
func New(opts ...Option) *Runner {
	r := &Runner{
		platform:  HostPlatform(""),
		console:   os.Stdout,
		logger:    log.Logger,
		waitDelay: DefaultWaitDelay,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run starts command through the platform shell. Unless opts.Async is set it
// blocks until the child has exited and its output is captured. Output a
// background grandchild writes more than the wait delay after the child's
// exit is not captured.
//
// On ErrInvalidWorkingDirectory, ErrSpawnFailed and ErrEmptyCommand no process
// exists and the returned execution is nil. On ErrWaitInterrupted the child
// was started; the returned execution finishes once the cancelled context has
// killed it.
func (r *Runner) Run(ctx context.Context, command string, opts RunOptions) (*Execution, error) {
	r.setLast(nil)

	if strings.TrimSpace(command) == "" {
		return nil, ErrEmptyCommand
	}
	if opts.Dir != "" {
		if err := checkDir(opts.Dir); err != nil {
			r.logger.Error().Err(err).Str("dir", opts.Dir).Msg("error calling command: working directory does not exist")
			return nil, err
		}
	}

	exe, err := r.start(ctx, command, opts)
	if err != nil {
		r.logger.Error().Err(err).Str("command", command).Msg("error calling command")
		return nil, err
	}
	r.setLast(exe)
	r.logger.Debug().
		Str("id", exe.ID).
		Int("pid", exe.Pid()).
		Strs("args", exe.Args).
		Str("dir", exe.Dir).
		Bool("async", opts.Async).
		Msg("command started")

	if opts.Async {
		return exe, nil
	}
	if _, err := exe.Wait(ctx); err != nil {
		r.logger.Error().Err(err).Str("command", command).Msg("error waiting for command")
		return exe, err
	}
	return exe, nil
}

// Execute runs command synchronously and returns its result. A non-zero exit
// is reported in the result, not as an error. When ctx is cancelled the
// killed run's final result is returned along with ErrWaitInterrupted.
func (r *Runner) Execute(ctx context.Context, command string, opts RunOptions) (Result, error) {
	opts.Async = false
	exe, err := r.Run(ctx, command, opts)
	if exe == nil {
		return Result{Command: command, Dir: opts.Dir, ExitCode: -1}, err
	}
	if errors.Is(err, ErrWaitInterrupted) {
		<-exe.Done()
	}
	return exe.Result(), err
}

func (r *Runner) start(ctx context.Context, command string, opts RunOptions) (*Execution, error) {
	argv := Invocation(r.platform, command)
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = opts.Dir
	setCommandLine(cmd, argv)

	outR, outW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("%w: creating stdout pipe: %w", ErrSpawnFailed, err)
	}
	errR, errW, err := os.Pipe()
	if err != nil {
		closeFiles(outR, outW)
		return nil, fmt.Errorf("%w: creating stderr pipe: %w", ErrSpawnFailed, err)
	}
	cmd.Stdout = outW
	cmd.Stderr = errW

	startedAt := time.Now()
	if err := cmd.Start(); err != nil {
		closeFiles(outR, outW, errR, errW)
		return nil, fmt.Errorf("%w: %s: %w", ErrSpawnFailed, command, err)
	}
	// The child holds its own copies; ours must go or the drainers never see EOF.
	closeFiles(outW, errW)

	drainerOpts := []DrainerOption{WithDrainerLogger(r.logger)}
	if opts.Echo {
		drainerOpts = append(drainerOpts, WithEcho(newSyncWriter(r.console)))
	}
	if opts.Sink != nil {
		drainerOpts = append(drainerOpts, WithSink(newSyncWriter(opts.Sink)))
	}

	exe := &Execution{
		ID:        uuid.NewString(),
		Command:   command,
		Dir:       opts.Dir,
		Args:      argv,
		StartedAt: startedAt,
		cmd:       cmd,
		stdout:    NewDrainer(outR, LabelOutput, drainerOpts...),
		stderr:    NewDrainer(errR, LabelError, drainerOpts...),
		pipes:     []*os.File{outR, errR},
		waitDelay: r.waitDelay,
		logger:    r.logger,
		exited:    make(chan struct{}),
		done:      make(chan struct{}),
	}
	// Both streams are drained from the start; a full pipe on either one
	// blocks the child.
	exe.stdout.Start()
	exe.stderr.Start()
	go exe.supervise(ctx)
	return exe, nil
}

// Last returns the most recent execution, or nil if the last Run failed to
// start a process or none was made.
func (r *Runner) Last() *Execution {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

func (r *Runner) setLast(exe *Execution) {
	r.mu.Lock()
	r.last = exe
	r.mu.Unlock()
}

// Runtime returns the platform commands are dispatched for.
func (r *Runner) Runtime() Platform { return r.platform }

// CapturedOutput returns the latest execution's stdout text.
func (r *Runner) CapturedOutput() string {
	if exe := r.Last(); exe != nil {
		return exe.Output()
	}
	return ""
}

// CapturedError returns the latest execution's stderr text.
func (r *Runner) CapturedError() string {
	if exe := r.Last(); exe != nil {
		return exe.ErrorOutput()
	}
	return ""
}

// ExitCode returns the latest execution's exit status.
func (r *Runner) ExitCode() (int, error) {
	exe := r.Last()
	if exe == nil {
		return -1, ErrNoProcess
	}
	return exe.ExitCode()
}

// HasFinished reports whether the latest execution's process has exited. It is false
// when no process was started.
func (r *Runner) HasFinished() bool {
	exe := r.Last()
	return exe != nil && exe.Finished()
}

// HadError is false only when the latest execution finished with exit code 0.
func (r *Runner) HadError() bool {
	exe := r.Last()
	return exe == nil || exe.HadError()
}

// Status returns the latest execution's status.
func (r *Runner) Status() Status {
	exe := r.Last()
	if exe == nil {
		return StatusNotStarted
	}
	return exe.Status()
}

func checkDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidWorkingDirectory, dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrInvalidWorkingDirectory, dir)
	}
	return nil
}

func closeFiles(files ...*os.File) {
	for _, f := range files {
		f.Close()
	}
}

var _ CommandRunner = (*Runner)(nil)
