package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Status is the lifecycle position of an execution.
type Status int

const (
	StatusNotStarted Status = iota
	StatusRunning
	StatusSucceeded
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusNotStarted:
		return "not-started"
	case StatusRunning:
		return "running"
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Result is a snapshot of one execution.
type Result struct {
	ID         string
	Command    string
	Dir        string
	Stdout     string
	Stderr     string
	ExitCode   int
	Finished   bool
	StartedAt  time.Time
	FinishedAt time.Time
}

// Succeeded reports whether the command finished with exit code 0.
func (r Result) Succeeded() bool {
	return r.Finished && r.ExitCode == 0
}

// Duration is the wall time between start and finish, or zero if the command
// has not finished.
func (r Result) Duration() time.Duration {
	if !r.Finished || r.StartedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Execution is the handle for one spawned command.
//
// It is finished as soon as the child process has exited; Finished, ExitCode
// and Status follow the process alone. Done closes later, once both drainers
// have stopped, so captured text read after Done is complete. A background
// grandchild may keep the streams open after the child exits; the drainers
// then get waitDelay to reach end-of-stream before the read ends are closed.
type Execution struct {
	ID        string
	Command   string
	Dir       string
	Args      []string
	StartedAt time.Time

	cmd       *exec.Cmd
	stdout    *Drainer
	stderr    *Drainer
	pipes     []*os.File
	closeOnce sync.Once
	waitDelay time.Duration
	logger    zerolog.Logger
	exited    chan struct{}
	done      chan struct{}

	mu         sync.Mutex
	exitCode   int
	waitErr    error
	finishedAt time.Time
}

// Done is closed when the process has exited and its output is fully captured.
func (e *Execution) Done() <-chan struct{} { return e.done }

// Exited is closed when the process has exited.
func (e *Execution) Exited() <-chan struct{} { return e.exited }

// Finished reports, without blocking, whether the process has exited.
func (e *Execution) Finished() bool {
	select {
	case <-e.exited:
		return true
	default:
		return false
	}
}

// Wait blocks until the process has exited and its output is captured, or
// until ctx is cancelled.
func (e *Execution) Wait(ctx context.Context) (Result, error) {
	select {
	case <-e.done:
		return e.Result(), nil
	default:
	}
	select {
	case <-e.done:
		return e.Result(), nil
	case <-ctx.Done():
		return e.Result(), fmt.Errorf("%w: %s: %w", ErrWaitInterrupted, e.Command, ctx.Err())
	}
}

// Output returns the captured stdout text, partial while running.
func (e *Execution) Output() string { return e.stdout.Captured() }

// ErrorOutput returns the captured stderr text, partial while running.
func (e *Execution) ErrorOutput() string { return e.stderr.Captured() }

// ExitCode returns the child's exit status. It fails with ErrNotFinished
// while the execution is still running.
func (e *Execution) ExitCode() (int, error) {
	if !e.Finished() {
		return -1, ErrNotFinished
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.exitCode, nil
}

// HadError is true unless the execution finished with exit code 0. A running
// execution counts as an error; use Status to tell the two apart.
func (e *Execution) HadError() bool {
	code, err := e.ExitCode()
	return err != nil || code != 0
}

// Status reports running, succeeded or failed.
func (e *Execution) Status() Status {
	code, err := e.ExitCode()
	switch {
	case err != nil:
		return StatusRunning
	case code == 0:
		return StatusSucceeded
	default:
		return StatusFailed
	}
}

// Pid returns the child's process id.
func (e *Execution) Pid() int {
	if e.cmd == nil || e.cmd.Process == nil {
		return 0
	}
	return e.cmd.Process.Pid
}

// WaitErr returns the error reported by the OS wait, e.g. an *exec.ExitError
// for a non-zero exit. It is nil while running.
func (e *Execution) WaitErr() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.waitErr
}

// StreamErrors returns the read failures of either drainer.
func (e *Execution) StreamErrors() []error {
	var errs []error
	for _, d := range []*Drainer{e.stdout, e.stderr} {
		if err := d.Err(); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// Result returns a snapshot of the execution.
func (e *Execution) Result() Result {
	res := Result{
		ID:        e.ID,
		Command:   e.Command,
		Dir:       e.Dir,
		Stdout:    e.Output(),
		Stderr:    e.ErrorOutput(),
		ExitCode:  -1,
		StartedAt: e.StartedAt,
	}
	if e.Finished() {
		e.mu.Lock()
		res.ExitCode = e.exitCode
		res.FinishedAt = e.finishedAt
		e.mu.Unlock()
		res.Finished = true
	}
	return res
}

// supervise reaps the child and records its exit state, then waits for both
// drainers. If the streams are still open when waitDelay expires or ctx is
// cancelled, the read ends are closed so the drainers stop.
func (e *Execution) supervise(ctx context.Context) {
	defer close(e.done)

	waitErr := e.cmd.Wait()

	e.mu.Lock()
	e.waitErr = waitErr
	e.exitCode = exitCodeFrom(waitErr, e.cmd.ProcessState)
	e.finishedAt = time.Now()
	e.mu.Unlock()
	close(e.exited)

	drained := make(chan struct{})
	go func() {
		e.stdout.Wait()
		e.stderr.Wait()
		close(drained)
	}()

	var expired <-chan time.Time
	if e.waitDelay > 0 {
		timer := time.NewTimer(e.waitDelay)
		defer timer.Stop()
		expired = timer.C
	}
	select {
	case <-drained:
	case <-expired:
		e.logger.Debug().Str("id", e.ID).Dur("wait_delay", e.waitDelay).Msg("output still open after exit, closing streams")
		e.closePipes()
		<-drained
	case <-ctx.Done():
		e.closePipes()
		<-drained
	}
	e.closePipes()
}

// closePipes closes the read ends. The drainers are told first so the
// resulting read error counts as end-of-stream.
func (e *Execution) closePipes() {
	e.closeOnce.Do(func() {
		e.stdout.stop()
		e.stderr.stop()
		for _, f := range e.pipes {
			f.Close()
		}
	})
}

func exitCodeFrom(waitErr error, state *os.ProcessState) int {
	if state != nil {
		return state.ExitCode()
	}
	if waitErr == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) && exitErr.ProcessState != nil {
		return exitErr.ProcessState.ExitCode()
	}
	return -1
}
