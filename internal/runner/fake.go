package runner

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Call records a single invocation of a command.
type Call struct {
	Command string
	Dir     string
	Echo    bool
}

func (c Call) String() string {
	return c.Command
}

// Response is a pre-configured response for a command pattern. Stdout and
// Stderr are returned as captured text, so they should already carry the
// "OUTPUT> " / "ERROR> " prefixes when a test cares about them.
type Response struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Err      error
	// Delay simulates a command that runs this long. If ctx ends first the
	// run is reported as killed, the way Runner.Execute reports it.
	Delay time.Duration
}

// FakeRunner records command calls and returns pre-configured responses.
// Exported for use by session and command tests.
type FakeRunner struct {
	mu        sync.Mutex
	Calls     []Call
	responses map[string]Response // key: full command line
	fallback  Response
}

// NewFakeRunner creates a FakeRunner whose fallback is a successful empty run.
func NewFakeRunner() *FakeRunner {
	return &FakeRunner{
		responses: make(map[string]Response),
	}
}

// SetResponse configures a response for a specific command string.
func (f *FakeRunner) SetResponse(cmd string, resp Response) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[cmd] = resp
}

// SetFallback sets the default response for unmatched commands.
func (f *FakeRunner) SetFallback(resp Response) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fallback = resp
}

// Execute records the call and returns the matching response as a finished result.
func (f *FakeRunner) Execute(ctx context.Context, command string, opts RunOptions) (Result, error) {
	f.mu.Lock()
	f.Calls = append(f.Calls, Call{Command: command, Dir: opts.Dir, Echo: opts.Echo})
	id := fmt.Sprintf("fake%04d-%s", len(f.Calls), strings.ReplaceAll(strings.TrimSpace(command), " ", "-"))
	resp := f.match(command)
	f.mu.Unlock()

	if resp.Err != nil {
		return Result{Command: command, Dir: opts.Dir, ExitCode: -1}, resp.Err
	}

	res := Result{
		ID:        id,
		Command:   command,
		Dir:       opts.Dir,
		Stdout:    resp.Stdout,
		Stderr:    resp.Stderr,
		ExitCode:  resp.ExitCode,
		Finished:  true,
		StartedAt: time.Now(),
	}
	if resp.Delay > 0 {
		timer := time.NewTimer(resp.Delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			res.ExitCode = -1
			res.FinishedAt = time.Now()
			return res, fmt.Errorf("%w: %s: %w", ErrWaitInterrupted, command, ctx.Err())
		}
	}
	res.FinishedAt = time.Now()
	return res, nil
}

func (f *FakeRunner) match(command string) Response {
	if resp, ok := f.responses[command]; ok {
		return resp
	}
	// Fall back to the first word so tests can stub a whole program.
	if fields := strings.Fields(command); len(fields) > 0 {
		if resp, ok := f.responses[fields[0]]; ok {
			return resp
		}
	}
	return f.fallback
}

// Called returns true if a command matching the prefix was recorded.
func (f *FakeRunner) Called(prefix string) bool {
	return f.CallCount(prefix) > 0
}

// CallCount returns the number of times a command matching the prefix was called.
func (f *FakeRunner) CallCount(prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.Calls {
		if strings.HasPrefix(c.String(), prefix) {
			n++
		}
	}
	return n
}

// Reset clears all recorded calls.
func (f *FakeRunner) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = nil
}

var _ CommandRunner = (*FakeRunner)(nil)
