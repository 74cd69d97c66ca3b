// Package registry persists one row per engine launch, so later CLI
// invocations can find the live run, resume its session at the right
// command index and log offset, and keep history for listing.
package registry

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/gredman/run-loop/internal/observability"
)

// Run statuses
const (
	StatusLive    = "live"
	StatusStopped = "stopped"
	StatusFailed  = "failed"
)

// ErrNoLiveRun is returned when no run is currently marked live.
var ErrNoLiveRun = errors.New("no live run")

// Record is one tracked engine run.
type Record struct {
	ID           string
	RunID        string // supervisor's short run id
	Target       string
	PID          int
	Dir          string
	PipePath     string
	LogPath      string
	ScriptPath   string
	CommandIndex int
	Offset       int64
	Status       string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Registry stores run records in sqlite.
type Registry struct {
	db  *sql.DB
	log zerolog.Logger
}

// Config holds registry configuration.
type Config struct {
	DBPath string
	Logger zerolog.Logger
}

// Open opens the registry database, creating the schema when absent.
func Open(cfg Config) (*Registry, error) {
	observability.EnsureRegistered()

	if cfg.DBPath == "" {
		return nil, errors.New("database path is required")
	}

	db, err := sql.Open("sqlite3", cfg.DBPath+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL keeps overlapping CLI invocations from tripping over each other
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	r := &Registry{db: db, log: cfg.Logger}
	if err := r.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return r, nil
}

// Close closes the database.
func (r *Registry) Close() error {
	return r.db.Close()
}

// initSchema creates database tables
func (r *Registry) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			run_id TEXT NOT NULL,
			target TEXT NOT NULL,
			pid INTEGER NOT NULL,
			dir TEXT NOT NULL,
			pipe_path TEXT NOT NULL,
			log_path TEXT NOT NULL,
			script_path TEXT NOT NULL,
			command_index INTEGER NOT NULL,
			consumed_offset INTEGER NOT NULL,
			status TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
		CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at);
	`

	_, err := r.db.Exec(schema)
	return err
}

// Create inserts a new record, filling ID, session fields, status, and
// timestamps. The record is mutated in place.
func (r *Registry) Create(rec *Record) error {
	if rec.Target == "" {
		return errors.New("target is required")
	}

	rec.ID = uuid.NewString()
	rec.CommandIndex = 1
	rec.Offset = 0
	rec.Status = StatusLive
	now := time.Now()
	rec.CreatedAt = now
	rec.UpdatedAt = now

	_, err := r.db.Exec(`
		INSERT INTO runs (
			id, run_id, target, pid, dir, pipe_path, log_path, script_path,
			command_index, consumed_offset, status, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.RunID, rec.Target, rec.PID, rec.Dir, rec.PipePath,
		rec.LogPath, rec.ScriptPath, rec.CommandIndex, rec.Offset,
		rec.Status, rec.CreatedAt.Unix(), rec.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	r.refreshActiveRuns()
	return nil
}

const recordColumns = `id, run_id, target, pid, dir, pipe_path, log_path,
	script_path, command_index, consumed_offset, status, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var rec Record
	var created, updated int64

	err := row.Scan(
		&rec.ID, &rec.RunID, &rec.Target, &rec.PID, &rec.Dir, &rec.PipePath,
		&rec.LogPath, &rec.ScriptPath, &rec.CommandIndex, &rec.Offset,
		&rec.Status, &created, &updated,
	)
	if err != nil {
		return nil, err
	}

	rec.CreatedAt = time.Unix(created, 0)
	rec.UpdatedAt = time.Unix(updated, 0)
	return &rec, nil
}

// Live returns the newest record still marked live.
func (r *Registry) Live() (*Record, error) {
	row := r.db.QueryRow(`
		SELECT `+recordColumns+`
		FROM runs
		WHERE status = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT 1`, StatusLive)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoLiveRun
	}
	if err != nil {
		return nil, fmt.Errorf("query live run: %w", err)
	}
	return rec, nil
}

// List returns records newest first, up to limit when limit > 0.
func (r *Registry) List(limit int) ([]*Record, error) {
	query := `
		SELECT ` + recordColumns + `
		FROM runs
		ORDER BY created_at DESC, rowid DESC`
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// SaveSession persists the session cursor after command traffic.
func (r *Registry) SaveSession(id string, commandIndex int, offset int64) error {
	result, err := r.db.Exec(`
		UPDATE runs
		SET command_index = ?, consumed_offset = ?, updated_at = ?
		WHERE id = ?`,
		commandIndex, offset, time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}

	return requireOneRow(result, id)
}

// SetStatus updates a run's status.
func (r *Registry) SetStatus(id, status string) error {
	result, err := r.db.Exec(`
		UPDATE runs
		SET status = ?, updated_at = ?
		WHERE id = ?`,
		status, time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("set status: %w", err)
	}
	if err := requireOneRow(result, id); err != nil {
		return err
	}

	r.refreshActiveRuns()
	return nil
}

func requireOneRow(result sql.Result, id string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("run %s not found", id)
	}
	return nil
}

// refreshActiveRuns pushes the live-run count to the metrics gauge.
func (r *Registry) refreshActiveRuns() {
	var count int
	if err := r.db.QueryRow(
		`SELECT COUNT(*) FROM runs WHERE status = ?`, StatusLive,
	).Scan(&count); err != nil {
		r.log.Warn().Err(err).Msg("count live runs")
		return
	}
	observability.SetActiveRuns(count)
}
