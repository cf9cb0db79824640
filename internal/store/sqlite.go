package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"plainid/internal/analysis"
)

// Store represents the SQLite history database.
type Store struct {
	db *sql.DB
}

// Open opens or creates the SQLite database at the given path and runs migrations.
func Open(path string) (*Store, error) {
	return OpenWithTimeout(path, 5*time.Second)
}

// OpenWithTimeout is Open with an explicit SQLite busy timeout.
func OpenWithTimeout(path string, busy time.Duration) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=%d", path, busy.Milliseconds())
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// A single connection serialises writers from concurrent bench workers.
	db.SetMaxOpenConns(1)

	if err := MigrateDB(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// DB exposes the underlying handle for schema inspection.
func (s *Store) DB() *sql.DB {
	return s.db
}

// InsertRun records an analysis.
func (s *Store) InsertRun(r *Run) error {
	removed, err := json.Marshal(r.Removed)
	if err != nil {
		return fmt.Errorf("marshal removed offsets: %w", err)
	}
	if r.Removed == nil {
		removed = []byte("[]")
	}

	_, err = s.db.Exec(`
		INSERT INTO runs (id, created_at, source, cipher_hash, cipher_len, outcome, stage, answer, std_dev, attempts, removed, elapsed_ns, expected)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.CreatedAt.UnixNano(), r.Source, r.CipherHash[:], r.CipherLen,
		string(r.Outcome), string(r.Stage), r.Index, r.StdDev, r.Attempts,
		string(removed), int64(r.Elapsed), r.Expected,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

const runColumns = `id, created_at, source, cipher_hash, cipher_len, outcome, stage, answer, std_dev, attempts, removed, elapsed_ns, expected`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var r Run
	var createdAt, elapsed int64
	var hash []byte
	var outcome, stage, removed string
	var expected sql.NullInt64

	if err := row.Scan(&r.ID, &createdAt, &r.Source, &hash, &r.CipherLen, &outcome, &stage,
		&r.Index, &r.StdDev, &r.Attempts, &removed, &elapsed, &expected); err != nil {
		return nil, err
	}

	r.CreatedAt = time.Unix(0, createdAt).UTC()
	copy(r.CipherHash[:], hash)
	r.Outcome = analysis.Outcome(outcome)
	r.Stage = analysis.Stage(stage)
	r.Elapsed = time.Duration(elapsed)
	if expected.Valid {
		n := int(expected.Int64)
		r.Expected = &n
	}
	if err := json.Unmarshal([]byte(removed), &r.Removed); err != nil {
		return nil, fmt.Errorf("unmarshal removed offsets: %w", err)
	}
	return &r, nil
}

// GetRun retrieves a run by ID. It returns nil, nil when there is none.
func (s *Store) GetRun(id string) (*Run, error) {
	r, err := scanRun(s.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get run: %w", err)
	}
	return r, nil
}

// ListRuns returns the most recent runs, newest first. A limit <= 0
// returns them all.
func (s *Store) ListRuns(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.Query(`
		SELECT `+runColumns+`
		FROM runs
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	return scanRuns(rows)
}

// RunsForCipher returns the runs recorded for a ciphertext, oldest first.
func (s *Store) RunsForCipher(hash Fingerprint) ([]Run, error) {
	rows, err := s.db.Query(`
		SELECT `+runColumns+`
		FROM runs
		WHERE cipher_hash = ?
		ORDER BY created_at ASC, rowid ASC`, hash[:],
	)
	if err != nil {
		return nil, fmt.Errorf("query runs by cipher: %w", err)
	}
	defer rows.Close()

	return scanRuns(rows)
}

func scanRuns(rows *sql.Rows) ([]Run, error) {
	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// InsertTrial records a bench trial and returns its ID.
func (s *Store) InsertTrial(t *Trial) (int64, error) {
	created := t.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}

	result, err := s.db.Exec(`
		INSERT INTO bench_trials (bench_id, key_length, expected, got, correct, outcome, noise, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.BenchID, t.KeyLength, t.Expected, t.Got, t.Correct, string(t.Outcome), t.Noise, created.UnixNano(),
	)
	if err != nil {
		return 0, fmt.Errorf("insert trial: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get last insert id: %w", err)
	}
	return id, nil
}

// Trials returns the trials of a bench session in insertion order.
func (s *Store) Trials(benchID string) ([]Trial, error) {
	rows, err := s.db.Query(`
		SELECT id, bench_id, key_length, expected, got, correct, outcome, noise, created_at
		FROM bench_trials
		WHERE bench_id = ?
		ORDER BY id ASC`, benchID,
	)
	if err != nil {
		return nil, fmt.Errorf("query trials: %w", err)
	}
	defer rows.Close()

	var trials []Trial
	for rows.Next() {
		var t Trial
		var outcome string
		var created int64
		if err := rows.Scan(&t.ID, &t.BenchID, &t.KeyLength, &t.Expected, &t.Got, &t.Correct, &outcome, &t.Noise, &created); err != nil {
			return nil, fmt.Errorf("scan trial: %w", err)
		}
		t.Outcome = analysis.Outcome(outcome)
		t.CreatedAt = time.Unix(0, created).UTC()
		trials = append(trials, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trials: %w", err)
	}
	return trials, nil
}

// Accuracy groups trials by key length. An empty benchID covers every
// session.
func (s *Store) Accuracy(benchID string) ([]Accuracy, error) {
	rows, err := s.db.Query(`
		SELECT key_length, COUNT(*), COALESCE(SUM(correct), 0)
		FROM bench_trials
		WHERE ? = '' OR bench_id = ?
		GROUP BY key_length
		ORDER BY key_length ASC`, benchID, benchID,
	)
	if err != nil {
		return nil, fmt.Errorf("query accuracy: %w", err)
	}
	defer rows.Close()

	var out []Accuracy
	for rows.Next() {
		var a Accuracy
		if err := rows.Scan(&a.KeyLength, &a.Trials, &a.Correct); err != nil {
			return nil, fmt.Errorf("scan accuracy: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate accuracy: %w", err)
	}
	return out, nil
}
