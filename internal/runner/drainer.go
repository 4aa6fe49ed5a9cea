package runner

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Labels for the two streams of a child process.
const (
	LabelOutput = "OUTPUT"
	LabelError  = "ERROR"
)

type flusher interface {
	Flush() error
}

// Drainer reads one stream to exhaustion on its own goroutine.
//
// Every line is appended to an internal buffer as "<label>> <line>\n". When a
// sink is configured the line is also written to it as "<label>><line>", and
// the same text goes to the console when echo is enabled. The two formats
// differ on purpose; callers parse both.
//
// A Drainer moves from created to running on Start and to finished when its
// source reports end-of-stream, is closed by its owner, or fails. It never restarts, and once
// finished its buffer no longer changes.
type Drainer struct {
	src     io.Reader
	label   string
	console io.Writer
	sink    io.Writer
	logger  zerolog.Logger

	startOnce sync.Once
	stopped   atomic.Bool
	done      chan struct{}

	mu    sync.Mutex
	buf   strings.Builder
	lines int
	err   error
}

// DrainerOption configures a Drainer.
type DrainerOption func(*Drainer)

// WithEcho writes each tagged line to console. A nil console disables echo.
func WithEcho(console io.Writer) DrainerOption {
	return func(d *Drainer) { d.console = console }
}

// WithSink forwards each tagged line to w and flushes w at end-of-stream
// when it has a Flush method.
func WithSink(w io.Writer) DrainerOption {
	return func(d *Drainer) { d.sink = w }
}

// WithDrainerLogger sets the logger used for read and sink failures.
func WithDrainerLogger(l zerolog.Logger) DrainerOption {
	return func(d *Drainer) { d.logger = l }
}

// NewDrainer creates a Drainer for src. It does not read until Start.
func NewDrainer(src io.Reader, label string, opts ...DrainerOption) *Drainer {
	d := &Drainer{
		src:    src,
		label:  label,
		logger: zerolog.Nop(),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Start launches the read loop. Calling Start more than once has no effect.
func (d *Drainer) Start() {
	d.startOnce.Do(func() {
		go d.run()
	})
}

// Label returns the stream label, e.g. "OUTPUT".
func (d *Drainer) Label() string { return d.label }

// Done is closed once the drainer has finished.
func (d *Drainer) Done() <-chan struct{} { return d.done }

// Finished reports whether the drainer has stopped reading.
func (d *Drainer) Finished() bool {
	select {
	case <-d.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the drainer has finished and returns its read error, if any.
func (d *Drainer) Wait() error {
	<-d.done
	return d.Err()
}

// Captured returns the text buffered so far. While the drainer is running the
// result is a partial snapshot.
func (d *Drainer) Captured() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.buf.String()
}

// Lines returns the number of lines buffered so far.
func (d *Drainer) Lines() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lines
}

// Err returns the error that stopped the drainer early, or nil.
func (d *Drainer) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.err
}

func (d *Drainer) run() {
	defer close(d.done)

	br := bufio.NewReader(d.src)
	for {
		line, err := br.ReadString('\n')
		if line != "" {
			d.emit(trimEOL(line))
		}
		if err == nil {
			continue
		}
		if errors.Is(err, io.EOF) || (d.stopped.Load() && errors.Is(err, os.ErrClosed)) {
			d.flushSink()
			return
		}
		d.fail(err)
		return
	}
}

// stop marks the source as closed by its owner. A read that then fails with
// os.ErrClosed ends the drainer like end-of-stream.
func (d *Drainer) stop() {
	d.stopped.Store(true)
}

func (d *Drainer) emit(line string) {
	tagged := d.label + ">" + line
	if d.sink != nil {
		if _, err := fmt.Fprintln(d.sink, tagged); err != nil {
			d.logger.Warn().Err(err).Str("stream", d.label).Msg("sink write failed, forwarding disabled")
			d.sink = nil
		}
	}
	if d.console != nil {
		fmt.Fprintln(d.console, tagged)
	}

	d.mu.Lock()
	d.buf.WriteString(d.label)
	d.buf.WriteString("> ")
	d.buf.WriteString(line)
	d.buf.WriteByte('\n')
	d.lines++
	d.mu.Unlock()
}

func (d *Drainer) flushSink() {
	f, ok := d.sink.(flusher)
	if !ok {
		return
	}
	if err := f.Flush(); err != nil {
		d.logger.Warn().Err(err).Str("stream", d.label).Msg("sink flush failed")
	}
}

func (d *Drainer) fail(err error) {
	d.logger.Error().Err(err).Str("stream", d.label).Msg("error reading command stream")
	d.mu.Lock()
	d.err = fmt.Errorf("%w: %s: %w", ErrStreamReadFailed, d.label, err)
	d.mu.Unlock()
}

// trimEOL strips a trailing "\n" or "\r\n".
func trimEOL(line string) string {
	line = strings.TrimSuffix(line, "\n")
	return strings.TrimSuffix(line, "\r")
}

// syncWriter serializes writes from the two drainers of one execution.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func newSyncWriter(w io.Writer) io.Writer {
	if w == nil {
		return nil
	}
	return &syncWriter{w: w}
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

func (s *syncWriter) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f, ok := s.w.(flusher); ok {
		return f.Flush()
	}
	return nil
}
