package state

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/ecairns22/shellrun/internal/config"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("opening test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testRun(id string, started time.Time) *Run {
	return &Run{
		ID:         id,
		Command:    "echo " + id,
		Dir:        "/tmp",
		ExitCode:   0,
		Finished:   true,
		Stdout:     "OUTPUT> " + id + "\n",
		StartedAt:  started,
		FinishedAt: started.Add(10 * time.Millisecond),
	}
}

func TestSchemaCreation(t *testing.T) {
	s := openTestStore(t)
	runs, err := s.ListRuns(context.Background(), 0)
	if err != nil {
		t.Fatalf("listing runs: %v", err)
	}
	if len(runs) != 0 {
		t.Errorf("expected 0 runs, got %d", len(runs))
	}
}

func TestInsertAndGetRun(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	now := time.UnixMilli(time.Now().UnixMilli())
	run := testRun("3f2a9c1e-0000-4000-8000-000000000001", now)
	run.ExitCode = 2
	run.Stderr = "ERROR> bad\n"
	run.Detail = map[string]string{"shell": "bash"}

	if err := s.InsertRun(ctx, run); err != nil {
		t.Fatalf("InsertRun: %v", err)
	}
	if run.Seq == 0 {
		t.Error("Seq should be set after insert")
	}

	got, err := s.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Command != run.Command || got.Dir != "/tmp" {
		t.Errorf("got %+v", got)
	}
	if got.ExitCode != 2 || !got.Finished {
		t.Errorf("exit = %d finished = %v", got.ExitCode, got.Finished)
	}
	if got.Stdout != run.Stdout || got.Stderr != run.Stderr {
		t.Errorf("captured text mismatch: %q %q", got.Stdout, got.Stderr)
	}
	if !got.StartedAt.Equal(now) {
		t.Errorf("started_at = %v, want %v", got.StartedAt, now)
	}
	if got.Detail["shell"] != "bash" {
		t.Errorf("detail = %v", got.Detail)
	}
}

func TestGetRunNotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.GetRun(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestDuplicateIDRejected(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	if err := s.InsertRun(ctx, testRun("dup", time.Now())); err != nil {
		t.Fatal(err)
	}
	if err := s.InsertRun(ctx, testRun("dup", time.Now())); err == nil {
		t.Error("expected error inserting duplicate id")
	}
}

func TestUnfinishedRunHasNoFinishTime(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	run := testRun("pending", time.Now())
	run.Finished = false
	run.ExitCode = -1
	run.FinishedAt = time.Time{}
	run.Dir = ""
	if err := s.InsertRun(ctx, run); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetRun(ctx, "pending")
	if err != nil {
		t.Fatal(err)
	}
	if got.Finished || !got.FinishedAt.IsZero() || got.Dir != "" {
		t.Errorf("got %+v", got)
	}
}

func TestFindRunByPrefix(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	for _, id := range []string{"abcd1111", "abcd2222", "ffff0000"} {
		if err := s.InsertRun(ctx, testRun(id, now)); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.FindRun(ctx, "ffff")
	if err != nil {
		t.Fatalf("FindRun: %v", err)
	}
	if got.ID != "ffff0000" {
		t.Errorf("got %s, want ffff0000", got.ID)
	}

	if _, err := s.FindRun(ctx, "abcd"); !errors.Is(err, ErrAmbiguousID) {
		t.Errorf("expected ErrAmbiguousID, got %v", err)
	}
	if _, err := s.FindRun(ctx, "abc"); !errors.Is(err, ErrNotFound) {
		t.Errorf("short prefix should not match, got %v", err)
	}
	if _, err := s.FindRun(ctx, "9999"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	got, err = s.FindRun(ctx, "abcd2222")
	if err != nil || got.ID != "abcd2222" {
		t.Errorf("exact id lookup failed: %v", err)
	}
}

func TestListRunsNewestFirst(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Now()

	for i, id := range []string{"r1", "r2", "r3"} {
		if err := s.InsertRun(ctx, testRun(id, base.Add(time.Duration(i)*time.Second))); err != nil {
			t.Fatal(err)
		}
	}

	runs, err := s.ListRuns(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].ID != "r3" || runs[1].ID != "r2" {
		t.Errorf("order = %s, %s; want r3, r2", runs[0].ID, runs[1].ID)
	}

	all, err := s.ListRuns(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Errorf("expected 3 runs, got %d", len(all))
	}
}

func TestDeleteRunsBefore(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	s.InsertRun(ctx, testRun("old", now.Add(-48*time.Hour)))
	s.InsertRun(ctx, testRun("new", now))

	n, err := s.DeleteRunsBefore(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("deleted %d, want 1", n)
	}
	if _, err := s.GetRun(ctx, "old"); !errors.Is(err, ErrNotFound) {
		t.Errorf("old run should be gone, got %v", err)
	}
	if _, err := s.GetRun(ctx, "new"); err != nil {
		t.Errorf("new run should remain: %v", err)
	}
}

func TestTrimKeepsNewest(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	for _, id := range []string{"a", "b", "c", "d", "e"} {
		if err := s.InsertRun(ctx, testRun(id, now)); err != nil {
			t.Fatal(err)
		}
	}

	n, err := s.Trim(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Errorf("trimmed %d, want 3", n)
	}
	count, _ := s.CountRuns(ctx)
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}
	runs, _ := s.ListRuns(ctx, 0)
	if runs[0].ID != "e" || runs[1].ID != "d" {
		t.Errorf("kept %s, %s; want e, d", runs[0].ID, runs[1].ID)
	}

	// Nothing to trim when under the limit.
	n, err = s.Trim(ctx, 10)
	if err != nil || n != 0 {
		t.Errorf("Trim under limit = %d, %v", n, err)
	}
	if _, err := s.Trim(ctx, -1); err == nil {
		t.Error("negative keep should fail")
	}
}

func TestOpenCreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "history.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()
	if err := s.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
}

func TestOpenFromConfigSQLite(t *testing.T) {
	cfg := config.Default()
	cfg.History.Path = filepath.Join(t.TempDir(), "h.db")

	s, err := OpenFromConfig(context.Background(), cfg)
	if err != nil {
		t.Fatalf("OpenFromConfig: %v", err)
	}
	defer s.Close()

	if err := s.InsertRun(context.Background(), testRun("x", time.Now())); err != nil {
		t.Fatal(err)
	}
}

func TestOpenFromConfigUnknownDriver(t *testing.T) {
	cfg := config.Default()
	cfg.History.Driver = "postgres"
	if _, err := OpenFromConfig(context.Background(), cfg); err == nil {
		t.Error("expected error for unknown driver")
	}
}

func TestFindRunTreatsWildcardsLiterally(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.InsertRun(ctx, testRun("7c9e6679-7425-40de-944b-e07fc1f90ae7", time.Now())); err != nil {
		t.Fatal(err)
	}
	if err := s.InsertRun(ctx, testRun("a_b%c!d-0001", time.Now())); err != nil {
		t.Fatal(err)
	}

	for _, prefix := range []string{"____", "%%%%", "7c9_", "7%9e"} {
		if _, err := s.FindRun(ctx, prefix); !errors.Is(err, ErrNotFound) {
			t.Errorf("FindRun(%q) should not match as a pattern, got %v", prefix, err)
		}
	}

	got, err := s.FindRun(ctx, "a_b%c!")
	if err != nil {
		t.Fatalf("FindRun with literal wildcard characters: %v", err)
	}
	if got.ID != "a_b%c!d-0001" {
		t.Errorf("got %s", got.ID)
	}
}
