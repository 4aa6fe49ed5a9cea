package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

var (
	// ErrNotFound is returned when a queried run does not exist.
	ErrNotFound = errors.New("run not found")
	// ErrAmbiguousID is returned when an ID prefix matches several runs.
	ErrAmbiguousID = errors.New("run id prefix is ambiguous")
)

// minPrefix is the shortest ID prefix FindRun accepts.
const minPrefix = 4

// likeEscaper makes user input literal inside a LIKE pattern using '!' as the
// escape character, which SQLite and MySQL both read without backslash rules.
var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

// Run is one recorded command execution.
type Run struct {
	Seq        int64
	ID         string
	Command    string
	Dir        string
	ExitCode   int
	Finished   bool
	Stdout     string
	Stderr     string
	StartedAt  time.Time
	FinishedAt time.Time
	Detail     map[string]string
}

// Store wraps a SQL database holding run history.
type Store struct {
	db *sql.DB
}

// Open creates or opens a SQLite database at the given path with WAL mode.
// Use ":memory:" for in-memory databases in tests.
func Open(dbPath string) (*Store, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("creating state dir for %s: %w", dbPath, err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening state db %s: %w", dbPath, err)
	}

	// WAL mode for better concurrent reads
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}

	// SQLite handles one writer at a time
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// InsertRun records a run.
func (s *Store) InsertRun(ctx context.Context, run *Run) error {
	detail, err := marshalJSON(run.Detail)
	if err != nil {
		return err
	}
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, command, dir, exit_code, finished, stdout, stderr, started_at, finished_at, detail)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Command, nullString(run.Dir), run.ExitCode, run.Finished,
		run.Stdout, run.Stderr,
		run.StartedAt.UnixMilli(), nullTime(run.FinishedAt), detail,
	)
	if err != nil {
		return fmt.Errorf("inserting run %s: %w", run.ID, err)
	}
	if seq, err := result.LastInsertId(); err == nil {
		run.Seq = seq
	}
	return nil
}

// GetRun retrieves a run by its full ID.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, selectRuns+` WHERE id = ?`, id)

	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting run %s: %w", id, err)
	}
	return run, nil
}

// FindRun resolves a full ID or a unique prefix of at least four characters.
func (s *Store) FindRun(ctx context.Context, prefix string) (*Run, error) {
	run, err := s.GetRun(ctx, prefix)
	if !errors.Is(err, ErrNotFound) || len(prefix) < minPrefix {
		return run, err
	}

	rows, err := s.db.QueryContext(ctx, selectRuns+` WHERE id LIKE ? ESCAPE '!' ORDER BY seq DESC LIMIT 2`, likeEscaper.Replace(prefix)+"%")
	if err != nil {
		return nil, fmt.Errorf("finding run %s: %w", prefix, err)
	}
	defer rows.Close()

	var found []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		found = append(found, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	switch len(found) {
	case 0:
		return nil, ErrNotFound
	case 1:
		return found[0], nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrAmbiguousID, prefix)
	}
}

// ListRuns returns up to limit runs, newest first. limit <= 0 returns all.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	query := selectRuns + ` ORDER BY seq DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// CountRuns returns the number of recorded runs.
func (s *Store) CountRuns(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting runs: %w", err)
	}
	return n, nil
}

// DeleteRunsBefore removes runs started before t and returns how many went.
func (s *Store) DeleteRunsBefore(ctx context.Context, t time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE started_at < ?`, t.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("deleting runs before %s: %w", t.Format(time.RFC3339), err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}

// Trim keeps the newest keep runs and deletes the rest.
func (s *Store) Trim(ctx context.Context, keep int) (int64, error) {
	if keep < 0 {
		return 0, fmt.Errorf("trim: keep must not be negative")
	}
	// Find the newest run that falls outside the window. A LIMIT inside an
	// IN subquery would be simpler but MySQL rejects it.
	var cutoff int64
	err := s.db.QueryRowContext(ctx,
		`SELECT seq FROM runs ORDER BY seq DESC LIMIT 1 OFFSET ?`, keep).Scan(&cutoff)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("finding trim cutoff: %w", err)
	}
	result, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE seq <= ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("trimming runs: %w", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}

const selectRuns = `SELECT seq, id, command, dir, exit_code, finished, stdout, stderr, started_at, finished_at, detail FROM runs`

type scanner interface {
	Scan(dest ...any) error
}

// scanRun scans a single row from *sql.Row or *sql.Rows into a Run.
func scanRun(sc scanner) (*Run, error) {
	var run Run
	var dir, detail sql.NullString
	var finishedAt sql.NullInt64
	var startedAt int64

	err := sc.Scan(
		&run.Seq, &run.ID, &run.Command, &dir,
		&run.ExitCode, &run.Finished, &run.Stdout, &run.Stderr,
		&startedAt, &finishedAt, &detail,
	)
	if err != nil {
		return nil, err
	}

	run.Dir = dir.String
	run.StartedAt = time.UnixMilli(startedAt)
	if finishedAt.Valid {
		run.FinishedAt = time.UnixMilli(finishedAt.Int64)
	}
	if detail.Valid && detail.String != "" {
		if err := json.Unmarshal([]byte(detail.String), &run.Detail); err != nil {
			return nil, fmt.Errorf("unmarshaling run detail: %w", err)
		}
	}
	return &run, nil
}

func marshalJSON(v map[string]string) (sql.NullString, error) {
	if len(v) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("marshaling JSON: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t time.Time) sql.NullInt64 {
	if t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}
