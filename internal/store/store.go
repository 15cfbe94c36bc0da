// Package store mirrors emitted aggregates into a SQLite database so that
// several batch jobs can be compared without re-reading their CSV output.
package store

import (
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/vardis.report/internal/monitoring"
	"github.com/banshee-data/vardis.report/internal/stats"
	"github.com/banshee-data/vardis.report/internal/sweep"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store is an open results database.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path and applies pending
// migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// Pragmas are per connection.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`PRAGMA foreign_keys = ON; PRAGMA busy_timeout = 5000`); err != nil {
		db.Close()
		return nil, fmt.Errorf("set pragmas: %w", err)
	}

	s := &Store{db: db}
	if err := s.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// MigrateUp runs all pending migrations up to the latest version.
// Returns nil if no migrations were needed (already at latest version).
func (s *Store) MigrateUp() error {
	m, err := s.newMigrate()
	if err != nil {
		return err
	}
	// Closing m would close the shared connection.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// MigrateVersion returns the current migration version and dirty state.
func (s *Store) MigrateVersion() (version uint, dirty bool, err error) {
	m, err := s.newMigrate()
	if err != nil {
		return 0, false, err
	}
	version, dirty, err = m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

func (s *Store) newMigrate() (*migrate.Migrate, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.Log = &migrateLogger{}
	return m, nil
}

// migrateLogger implements migrate.Logger interface
type migrateLogger struct{}

func (l *migrateLogger) Printf(format string, v ...interface{}) {
	monitoring.Logf("[migrate] "+format, v...)
}

func (l *migrateLogger) Verbose() bool {
	return false
}

// Job records the rows of one batch run. It implements sweep.RowWriter.
type Job struct {
	ID      string
	db      *sql.DB
	columns []string
	closed  bool
}

// BeginJob registers a new job. columns fixes the order of the point
// values stored with each row.
func (s *Store) BeginJob(experiment string, formula stats.Formula, columns []string) (*Job, error) {
	cols, err := json.Marshal(columns)
	if err != nil {
		return nil, err
	}
	id := uuid.NewString()
	if _, err := s.db.Exec(
		`INSERT INTO jobs (job_id, experiment, formula, columns) VALUES (?, ?, ?, ?)`,
		id, experiment, string(formula), string(cols),
	); err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}
	return &Job{ID: id, db: s.db, columns: columns}, nil
}

// WriteRow inserts r. Each insert commits on its own so an interrupted job
// keeps everything written so far.
func (j *Job) WriteRow(r sweep.Row) error {
	if j.closed {
		return fmt.Errorf("job %s is finished", j.ID)
	}
	values, err := r.Point.Values(j.columns)
	if err != nil {
		return err
	}
	point := make(map[string]string, len(values))
	for i, c := range j.columns {
		point[c] = values[i]
	}
	pointJSON, err := json.Marshal(point)
	if err != nil {
		return err
	}

	_, err = j.db.Exec(
		`INSERT INTO aggregates (job_id, table_name, metric, node_pos, point_json, mean, stddev, cnt)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		j.ID, r.Table().String(), string(r.Metric), string(r.Position), string(pointJSON),
		nullFloat(r.Stat.Mean), nullFloat(r.Stat.Stddev), r.Stat.Count,
	)
	if err != nil {
		return fmt.Errorf("insert aggregate: %w", err)
	}
	return nil
}

// nullFloat maps NaN to NULL.
func nullFloat(v float64) sql.NullFloat64 {
	return sql.NullFloat64{Float64: v, Valid: !math.IsNaN(v)}
}

// Close stamps the job as finished. It does not close the store.
func (j *Job) Close() error {
	if j.closed {
		return nil
	}
	j.closed = true
	_, err := j.db.Exec(`UPDATE jobs SET finished_at = CURRENT_TIMESTAMP WHERE job_id = ?`, j.ID)
	return err
}
