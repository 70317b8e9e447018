package results

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Run summarizes one image's pass through the pipeline.
type Run struct {
	RunID      string
	Image      string
	Rig        string
	FinalState string
	Partial    bool
	Err        string
	FinishedAt time.Time
}

// RunRecorder is implemented by sinks that keep per-image run summaries.
type RunRecorder interface {
	RecordRun(ctx context.Context, run Run) error
}

// Measurement is one stored row.
type Measurement struct {
	RunID    string
	Image    string
	Kind     Kind
	Block    string
	Position int
	Label    string
	Value    string
}

// SQLiteSink stores every row as a measurement in a SQLite database.
type SQLiteSink struct {
	mu sync.Mutex
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path and brings its schema
// up to date.
func OpenSQLite(path string) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	if err := migrateUp(db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteSink{db: db}, nil
}

func migrateUp(db *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}

	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create sqlite driver: %w", err)
	}

	// Not closed: closing the migrate instance closes db.
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

func (s *SQLiteSink) Write(ctx context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO measurements (run_id, image, kind, block, position, label, value, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	recorded := rec.Time
	if recorded.IsZero() {
		recorded = time.Now()
	}

	for _, b := range rec.Blocks {
		for pos, r := range b.Rows {
			if _, err := stmt.ExecContext(ctx, rec.RunID, rec.Image, string(rec.Kind), b.Header, pos,
				r.Label, FormatValue(r.Value), recorded.UTC()); err != nil {
				return fmt.Errorf("failed to store %s/%s: %w", b.Header, r.Label, err)
			}
		}
	}
	return tx.Commit()
}

func (s *SQLiteSink) RecordRun(ctx context.Context, run Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errText sql.NullString
	if run.Err != "" {
		errText = sql.NullString{String: run.Err, Valid: true}
	}
	finished := run.FinishedAt
	if finished.IsZero() {
		finished = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO runs (run_id, image, rig, final_state, partial, error, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.RunID, run.Image, run.Rig, run.FinalState, run.Partial, errText, finished.UTC())
	return err
}

// Measurements returns the stored rows for an image in insertion order.
func (s *SQLiteSink) Measurements(ctx context.Context, image string) ([]Measurement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, image, kind, block, position, label, value
		FROM measurements WHERE image = ? ORDER BY measurement_id`, image)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Measurement
	for rows.Next() {
		var m Measurement
		var kind string
		if err := rows.Scan(&m.RunID, &m.Image, &kind, &m.Block, &m.Position, &m.Label, &m.Value); err != nil {
			return nil, err
		}
		m.Kind = Kind(kind)
		out = append(out, m)
	}
	return out, rows.Err()
}

// Runs returns the stored run summaries ordered by image.
func (s *SQLiteSink) Runs(ctx context.Context) ([]Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, image, rig, final_state, partial, COALESCE(error, '')
		FROM runs ORDER BY image`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.RunID, &r.Image, &r.Rig, &r.FinalState, &r.Partial, &r.Err); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteSink) Close() error {
	return s.db.Close()
}
