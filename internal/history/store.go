package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"tutorcast/internal/api"
	"tutorcast/internal/config"
	"tutorcast/internal/pipeline"
)

// Store persists observations in a SQLite database under the state
// directory.
type Store struct {
	db   *sql.DB
	path string
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

const schemaVersion = 1

// timeLayout is fixed-width so stored timestamps sort lexicographically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const schemaSQL = `
CREATE TABLE schema_version (
    version INTEGER NOT NULL
);

CREATE TABLE recordings (
    recording_id TEXT PRIMARY KEY,
    title        TEXT NOT NULL DEFAULT '',
    status       TEXT NOT NULL DEFAULT '',
    current_step TEXT NOT NULL DEFAULT '',
    uploaded     INTEGER NOT NULL DEFAULT 0,
    first_seen   TEXT NOT NULL,
    last_seen    TEXT NOT NULL
);

CREATE INDEX idx_recordings_last_seen ON recordings(last_seen DESC);
`

// ErrSchemaMismatch indicates the database was written by an incompatible
// version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

// Open initializes or connects to the history database in the configured
// state directory.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := filepath.Join(cfg.Paths.StateDir, "history.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) initSchema(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}

	if tableExists == 0 {
		return s.createSchema(ctx)
	}

	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (delete %s)",
			ErrSchemaMismatch, version, schemaVersion, s.path)
	}
	return nil
}

func (s *Store) createSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func (s *Store) execWithRetry(ctx context.Context, query string, args ...any) error {
	return retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, query, args...)
		return err
	})
}

// Observation is one locally known recording.
type Observation struct {
	RecordingID string
	Title       string
	Status      pipeline.Status
	CurrentStep pipeline.Step
	Uploaded    bool
	FirstSeen   time.Time
	LastSeen    time.Time
}

// RecordUpload notes a recording this client created.
func (s *Store) RecordUpload(ctx context.Context, recordingID, title string, status pipeline.Status) error {
	if strings.TrimSpace(recordingID) == "" {
		return errors.New("recording id is required")
	}
	now := time.Now().UTC().Format(timeLayout)
	err := s.execWithRetry(ctx,
		`INSERT INTO recordings (recording_id, title, status, uploaded, first_seen, last_seen)
         VALUES (?, ?, ?, 1, ?, ?)
         ON CONFLICT(recording_id) DO UPDATE SET
             title = excluded.title,
             status = excluded.status,
             uploaded = 1,
             last_seen = excluded.last_seen`,
		recordingID, title, string(status), now, now)
	if err != nil {
		return fmt.Errorf("record upload: %w", err)
	}
	return nil
}

// Observe updates the locally known state from a fetched snapshot.
func (s *Store) Observe(ctx context.Context, rec *api.Recording) error {
	if rec == nil || strings.TrimSpace(rec.ID) == "" {
		return errors.New("recording snapshot is required")
	}
	now := time.Now().UTC().Format(timeLayout)
	err := s.execWithRetry(ctx,
		`INSERT INTO recordings (recording_id, title, status, current_step, first_seen, last_seen)
         VALUES (?, ?, ?, ?, ?, ?)
         ON CONFLICT(recording_id) DO UPDATE SET
             title = excluded.title,
             status = excluded.status,
             current_step = excluded.current_step,
             last_seen = excluded.last_seen`,
		rec.ID, rec.Title, string(rec.Status), string(rec.CurrentStep), now, now)
	if err != nil {
		return fmt.Errorf("observe recording: %w", err)
	}
	return nil
}

// Forget removes one recording from the local history.
func (s *Store) Forget(ctx context.Context, recordingID string) error {
	if err := s.execWithRetry(ctx, "DELETE FROM recordings WHERE recording_id = ?", recordingID); err != nil {
		return fmt.Errorf("forget recording: %w", err)
	}
	return nil
}

// List returns observations ordered most recently seen first. limit <= 0
// returns everything.
func (s *Store) List(ctx context.Context, limit int) ([]Observation, error) {
	query := `SELECT recording_id, title, status, current_step, uploaded, first_seen, last_seen
              FROM recordings ORDER BY last_seen DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	var out []Observation
	for rows.Next() {
		var (
			obs       Observation
			status    string
			step      string
			uploaded  int
			firstSeen string
			lastSeen  string
		)
		if err := rows.Scan(&obs.RecordingID, &obs.Title, &status, &step, &uploaded, &firstSeen, &lastSeen); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		obs.Status = pipeline.Status(status)
		obs.CurrentStep = pipeline.Step(step)
		obs.Uploaded = uploaded != 0
		if parsed, parseErr := time.Parse(timeLayout, firstSeen); parseErr == nil {
			obs.FirstSeen = parsed
		}
		if parsed, parseErr := time.Parse(timeLayout, lastSeen); parseErr == nil {
			obs.LastSeen = parsed
		}
		out = append(out, obs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history rows: %w", err)
	}
	return out, nil
}
