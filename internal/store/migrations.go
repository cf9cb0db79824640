package store

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"strconv"
	"strings"
	"time"
)

//go:embed schema/*.sql
var schemaFS embed.FS

// Migration is one schema file, named NNN_description.sql.
type Migration struct {
	Version     int
	Description string
	Up          string
}

// migrations lists the embedded schema files in version order.
var migrations = mustLoadMigrations(schemaFS)

func mustLoadMigrations(fsys fs.FS) []Migration {
	m, err := loadMigrations(fsys)
	if err != nil {
		panic(err)
	}
	return m
}

func loadMigrations(fsys fs.FS) ([]Migration, error) {
	names, err := fs.Glob(fsys, "schema/*.sql")
	if err != nil {
		return nil, err
	}

	out := make([]Migration, 0, len(names))
	for i, name := range names {
		base := strings.TrimSuffix(path.Base(name), ".sql")
		num, desc, ok := strings.Cut(base, "_")
		version, err := strconv.Atoi(num)
		if !ok || err != nil {
			return nil, fmt.Errorf("migration %s: name must be NNN_description.sql", name)
		}
		if version != i+1 {
			return nil, fmt.Errorf("migration %s: expected version %d", name, i+1)
		}
		body, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, err
		}
		out = append(out, Migration{
			Version:     version,
			Description: strings.ReplaceAll(desc, "_", " "),
			Up:          string(body),
		})
	}
	return out, nil
}

// MigrateDB applies every pending migration, each in its own transaction.
func MigrateDB(db *sql.DB) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version     INTEGER PRIMARY KEY,
			applied_at  INTEGER NOT NULL,
			description TEXT
		)
	`); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	current, err := schemaVersion(db)
	if err != nil {
		return err
	}
	for _, m := range migrations[min(current, len(migrations)):] {
		if err := apply(db, m); err != nil {
			return err
		}
	}
	return nil
}

func schemaVersion(db *sql.DB) (int, error) {
	var v int
	if err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&v); err != nil {
		return 0, fmt.Errorf("get schema version: %w", err)
	}
	return v, nil
}

func apply(db *sql.DB, m Migration) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin migration %d: %w", m.Version, err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(m.Up); err != nil {
		return fmt.Errorf("apply migration %d (%s): %w", m.Version, m.Description, err)
	}
	if _, err := tx.Exec(
		"INSERT INTO schema_migrations (version, applied_at, description) VALUES (?, ?, ?)",
		m.Version, time.Now().UnixNano(), m.Description,
	); err != nil {
		return fmt.Errorf("record migration %d: %w", m.Version, err)
	}
	return tx.Commit()
}

// Stats summarises the database for status output.
type Stats struct {
	SchemaVersion int       `json:"schema_version" yaml:"schema_version"`
	LatestVersion int       `json:"latest_version" yaml:"latest_version"`
	Runs          int       `json:"runs" yaml:"runs"`
	Trials        int       `json:"trials" yaml:"trials"`
	Benches       int       `json:"benches" yaml:"benches"`
	LastRun       time.Time `json:"last_run,omitzero" yaml:"last_run,omitempty"`
}

// Stats counts the stored rows and reports the schema version.
func (s *Store) Stats() (*Stats, error) {
	st := &Stats{LatestVersion: len(migrations)}

	var err error
	if st.SchemaVersion, err = schemaVersion(s.db); err != nil {
		return nil, err
	}

	var last sql.NullInt64
	if err := s.db.QueryRow("SELECT COUNT(*), MAX(created_at) FROM runs").Scan(&st.Runs, &last); err != nil {
		return nil, fmt.Errorf("count runs: %w", err)
	}
	if last.Valid {
		st.LastRun = time.Unix(0, last.Int64).UTC()
	}
	if err := s.db.QueryRow(
		"SELECT COUNT(*), COUNT(DISTINCT bench_id) FROM bench_trials",
	).Scan(&st.Trials, &st.Benches); err != nil {
		return nil, fmt.Errorf("count trials: %w", err)
	}
	return st, nil
}
