package runner

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"os"
	"strings"
	"testing"
	"testing/iotest"
	"time"
)

func TestDrainerBuffersLinesInOrder(t *testing.T) {
	d := NewDrainer(strings.NewReader("alpha\nbeta\r\ngamma"), LabelOutput)
	if d.Finished() {
		t.Fatal("drainer finished before Start")
	}

	d.Start()
	if err := d.Wait(); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	want := "OUTPUT> alpha\nOUTPUT> beta\nOUTPUT> gamma\n"
	if got := d.Captured(); got != want {
		t.Errorf("Captured() = %q, want %q", got, want)
	}
	if d.Lines() != 3 {
		t.Errorf("Lines() = %d, want 3", d.Lines())
	}
	if !d.Finished() {
		t.Error("drainer should be finished after Wait")
	}
}

func TestDrainerEmptyStream(t *testing.T) {
	d := NewDrainer(strings.NewReader(""), LabelError)
	d.Start()
	if err := d.Wait(); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if d.Captured() != "" || d.Lines() != 0 {
		t.Errorf("got %q with %d lines, want empty", d.Captured(), d.Lines())
	}
}

func TestDrainerKeepsBlankLines(t *testing.T) {
	d := NewDrainer(strings.NewReader("a\n\nb\n"), LabelOutput)
	d.Start()
	if err := d.Wait(); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if got, want := d.Captured(), "OUTPUT> a\nOUTPUT> \nOUTPUT> b\n"; got != want {
		t.Errorf("Captured() = %q, want %q", got, want)
	}
}

func TestDrainerSinkAndEchoOmitSpace(t *testing.T) {
	var sinkBuf, console bytes.Buffer
	// A large buffer proves the sink is flushed at end-of-stream.
	sink := bufio.NewWriterSize(&sinkBuf, 1<<16)

	d := NewDrainer(strings.NewReader("one\ntwo\n"), LabelError, WithSink(sink), WithEcho(&console))
	d.Start()
	if err := d.Wait(); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	if got := sinkBuf.String(); got != "ERROR>one\nERROR>two\n" {
		t.Errorf("sink = %q", got)
	}
	if got := console.String(); got != "ERROR>one\nERROR>two\n" {
		t.Errorf("console = %q", got)
	}
	if got := d.Captured(); got != "ERROR> one\nERROR> two\n" {
		t.Errorf("Captured() = %q", got)
	}
}

func TestDrainerNilEchoDisablesConsole(t *testing.T) {
	d := NewDrainer(strings.NewReader("x\n"), LabelOutput, WithEcho(nil))
	d.Start()
	if err := d.Wait(); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if got := d.Captured(); got != "OUTPUT> x\n" {
		t.Errorf("Captured() = %q", got)
	}
}

func TestDrainerReadFailureStopsEarly(t *testing.T) {
	boom := errors.New("boom")
	src := io.MultiReader(strings.NewReader("first\n"), iotest.ErrReader(boom))

	d := NewDrainer(src, LabelOutput)
	d.Start()
	err := d.Wait()

	if !errors.Is(err, ErrStreamReadFailed) || !errors.Is(err, boom) {
		t.Fatalf("Wait() = %v, want ErrStreamReadFailed wrapping boom", err)
	}
	if got := d.Captured(); got != "OUTPUT> first\n" {
		t.Errorf("Captured() = %q", got)
	}
}

func TestDrainerClosedByOwnerEndsCleanly(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	var console bytes.Buffer
	sink := bufio.NewWriterSize(&console, 1<<16)
	d := NewDrainer(r, LabelOutput, WithSink(sink))
	d.Start()

	if _, err := w.WriteString("before close\n"); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for d.Lines() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("line was not read")
		}
		time.Sleep(5 * time.Millisecond)
	}
	d.stop()
	r.Close()

	if err := d.Wait(); err != nil {
		t.Errorf("Wait() = %v, want nil after owner close", err)
	}
	if got := d.Captured(); got != "OUTPUT> before close\n" {
		t.Errorf("Captured() = %q", got)
	}
	if got := console.String(); got != "OUTPUT>before close\n" {
		t.Errorf("sink not flushed on close: %q", got)
	}
}

func TestDrainerUnexpectedCloseIsAnError(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	d := NewDrainer(r, LabelError)
	r.Close()
	d.Start()

	if err := d.Wait(); !errors.Is(err, ErrStreamReadFailed) {
		t.Errorf("Wait() = %v, want ErrStreamReadFailed", err)
	}
}

type failingWriter struct{ writes int }

func (w *failingWriter) Write(p []byte) (int, error) {
	w.writes++
	return 0, errors.New("sink closed")
}

func TestDrainerSinkFailureDoesNotStopCapture(t *testing.T) {
	sink := &failingWriter{}
	d := NewDrainer(strings.NewReader("a\nb\nc\n"), LabelOutput, WithSink(sink))
	d.Start()
	if err := d.Wait(); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	if sink.writes != 1 {
		t.Errorf("sink writes = %d, want 1 before forwarding is disabled", sink.writes)
	}
	if d.Lines() != 3 {
		t.Errorf("Lines() = %d, want 3", d.Lines())
	}
}

func TestDrainerStartIsIdempotent(t *testing.T) {
	d := NewDrainer(strings.NewReader("only\n"), LabelOutput)
	d.Start()
	d.Start()
	if err := d.Wait(); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	first, second := d.Captured(), d.Captured()
	if first != "OUTPUT> only\n" || first != second {
		t.Errorf("Captured() = %q then %q", first, second)
	}
}

func TestDrainerLongLine(t *testing.T) {
	long := strings.Repeat("x", 200_000)
	d := NewDrainer(strings.NewReader(long+"\n"), LabelOutput)
	d.Start()
	if err := d.Wait(); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if d.Captured() != "OUTPUT> "+long+"\n" {
		t.Errorf("long line was not captured whole (%d bytes)", len(d.Captured()))
	}
}
