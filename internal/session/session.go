package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/ecairns22/shellrun/internal/runner"
	"github.com/ecairns22/shellrun/internal/state"
)

// ErrHistoryDisabled is returned by history operations when no store is configured.
var ErrHistoryDisabled = errors.New("run history is disabled")

// DetailTimedOut marks a recorded run that was killed by its timeout.
const DetailTimedOut = "timed_out"

// HistoryStore is the subset of *state.Store a Session needs.
type HistoryStore interface {
	InsertRun(ctx context.Context, run *state.Run) error
	FindRun(ctx context.Context, prefix string) (*state.Run, error)
	ListRuns(ctx context.Context, limit int) ([]*state.Run, error)
	DeleteRunsBefore(ctx context.Context, t time.Time) (int64, error)
	Trim(ctx context.Context, keep int) (int64, error)
}

// Session runs commands and keeps their history.
type Session struct {
	store  HistoryStore
	runner runner.CommandRunner
	logger zerolog.Logger
	keep   int
}

// Option configures a Session.
type Option func(*Session)

// WithKeep bounds the history to the newest n runs. Zero keeps everything.
func WithKeep(n int) Option {
	return func(s *Session) { s.keep = n }
}

// New creates a Session. store may be nil, in which case nothing is recorded.
func New(store HistoryStore, r runner.CommandRunner, logger zerolog.Logger, opts ...Option) *Session {
	s := &Session{
		store:  store,
		runner: r,
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Request holds the parameters for one run.
type Request struct {
	Command string
	Dir     string
	Echo    bool
	Timeout time.Duration // 0 = no limit
	Record  bool
}

// Outcome is the result of a run and whether it was written to history.
type Outcome struct {
	Result   runner.Result
	Recorded bool
	// TimedOut is set when the command was killed because Request.Timeout
	// expired. Result then holds the killed run.
	TimedOut bool
}

// Run executes req. A non-zero exit or an expired timeout is reported in the
// outcome, not as an error; errors mean the command could not be started or
// the caller's context ended.
func (s *Session) Run(ctx context.Context, req Request) (*Outcome, error) {
	return s.run(ctx, req, nil)
}

func (s *Session) run(ctx context.Context, req Request, detail map[string]string) (*Outcome, error) {
	runCtx := ctx
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	res, err := s.runner.Execute(runCtx, req.Command, runner.RunOptions{Dir: req.Dir, Echo: req.Echo})
	return s.complete(ctx, req, res, err, detail)
}

// Complete finishes a run that was executed outside Run, e.g. asynchronously,
// with the same timeout and history handling as Run. ctx is the caller's
// context, not the one bounded by req.Timeout.
func (s *Session) Complete(ctx context.Context, req Request, res runner.Result, runErr error) (*Outcome, error) {
	return s.complete(ctx, req, res, runErr, nil)
}

func (s *Session) complete(ctx context.Context, req Request, res runner.Result, runErr error, detail map[string]string) (*Outcome, error) {
	out := &Outcome{Result: res}
	if runErr != nil {
		if !timedOut(ctx, req, runErr) {
			return out, runErr
		}
		out.TimedOut = true
		s.logger.Warn().
			Str("id", res.ID).
			Dur("timeout", req.Timeout).
			Msg("command killed after timeout")
	} else {
		s.logger.Info().
			Str("id", res.ID).
			Int("exit", res.ExitCode).
			Dur("took", res.Duration()).
			Msg("command finished")
	}

	if req.Record {
		out.Recorded = s.save(ctx, res, req, out.TimedOut, detail)
	}
	return out, nil
}

// timedOut reports whether runErr is the request's own timeout rather than
// the caller's context ending.
func timedOut(ctx context.Context, req Request, runErr error) bool {
	return req.Timeout > 0 &&
		ctx.Err() == nil &&
		errors.Is(runErr, runner.ErrWaitInterrupted) &&
		errors.Is(runErr, context.DeadlineExceeded)
}

func (s *Session) save(ctx context.Context, res runner.Result, req Request, killed bool, detail map[string]string) bool {
	if s.store == nil || !res.Finished {
		return false
	}
	if detail == nil {
		detail = make(map[string]string)
	}
	if killed {
		detail[DetailTimedOut] = "true"
	}
	// The command has already run; a history failure is not its failure.
	if err := s.record(ctx, res, req, detail); err != nil {
		s.logger.Warn().Err(err).Str("id", res.ID).Msg("could not record run")
		return false
	}
	return true
}

func (s *Session) record(ctx context.Context, res runner.Result, req Request, detail map[string]string) error {
	if req.Timeout > 0 {
		detail["timeout"] = req.Timeout.String()
	}
	detail["duration_ms"] = strconv.FormatInt(res.Duration().Milliseconds(), 10)

	run := &state.Run{
		ID:         res.ID,
		Command:    res.Command,
		Dir:        res.Dir,
		ExitCode:   res.ExitCode,
		Finished:   res.Finished,
		Stdout:     res.Stdout,
		Stderr:     res.Stderr,
		StartedAt:  res.StartedAt,
		FinishedAt: res.FinishedAt,
		Detail:     detail,
	}
	if err := s.store.InsertRun(ctx, run); err != nil {
		return err
	}
	if s.keep > 0 {
		n, err := s.store.Trim(ctx, s.keep)
		if err != nil {
			return fmt.Errorf("trimming history: %w", err)
		}
		if n > 0 {
			s.logger.Debug().Int64("removed", n).Int("keep", s.keep).Msg("history trimmed")
		}
	}
	return nil
}

// Replay re-runs a recorded command in its recorded directory.
func (s *Session) Replay(ctx context.Context, id string, echo bool) (*Outcome, error) {
	prev, err := s.Show(ctx, id)
	if err != nil {
		return nil, err
	}
	req := Request{
		Command: prev.Command,
		Dir:     prev.Dir,
		Echo:    echo,
		Record:  true,
	}
	return s.run(ctx, req, map[string]string{"replay_of": prev.ID})
}

// History returns up to limit recorded runs, newest first.
func (s *Session) History(ctx context.Context, limit int) ([]*state.Run, error) {
	if s.store == nil {
		return nil, ErrHistoryDisabled
	}
	return s.store.ListRuns(ctx, limit)
}

// Show returns the run whose ID equals or starts with id.
func (s *Session) Show(ctx context.Context, id string) (*state.Run, error) {
	if s.store == nil {
		return nil, ErrHistoryDisabled
	}
	run, err := s.store.FindRun(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("looking up run %q: %w", id, err)
	}
	return run, nil
}

// Prune deletes runs started more than olderThan ago.
func (s *Session) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	if s.store == nil {
		return 0, ErrHistoryDisabled
	}
	if olderThan <= 0 {
		return 0, fmt.Errorf("prune age must be positive, got %s", olderThan)
	}
	n, err := s.store.DeleteRunsBefore(ctx, time.Now().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("pruning history: %w", err)
	}
	s.logger.Info().Int64("removed", n).Dur("older_than", olderThan).Msg("history pruned")
	return n, nil
}
