package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"github.com/san-kum/celltx/internal/trajectory"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	model TEXT NOT NULL,
	created_at TEXT NOT NULL,
	entities TEXT NOT NULL,
	meta BLOB NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS samples (
	run_id TEXT NOT NULL REFERENCES runs(id),
	step INTEGER NOT NULL,
	time REAL NOT NULL,
	col INTEGER NOT NULL,
	entity TEXT NOT NULL,
	magnitude REAL NOT NULL,
	PRIMARY KEY (run_id, step, col)
)`,
}

// SQLiteStore keeps all runs in one database with one row per sample and
// entity.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

func OpenSQLite(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// a single connection keeps ":memory:" databases shared
	db.SetMaxOpenConns(1)
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("create tables: %w", err)
		}
	}
	return &SQLiteStore{db: db, path: path}, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) Path() string { return s.path }

func (s *SQLiteStore) Save(meta RunMetadata, tr *trajectory.Trajectory) (id string, retErr error) {
	meta = newRun(meta)
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return "", err
	}
	entities, err := json.Marshal(tr.Labels())
	if err != nil {
		return "", err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return "", err
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err := tx.Exec(`INSERT INTO runs(id, model, created_at, entities, meta) VALUES(?,?,?,?,?)`,
		meta.ID, meta.Model, meta.Timestamp.Format("2006-01-02T15:04:05.000000000Z07:00"), string(entities), metaJSON); err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO samples(run_id, step, time, col, entity, magnitude) VALUES(?,?,?,?,?,?)`)
	if err != nil {
		return "", err
	}
	defer stmt.Close()

	labels := tr.Labels()
	for i := 0; i < tr.Len(); i++ {
		t := tr.Time(i)
		for j, v := range tr.State(i) {
			if _, err := stmt.Exec(meta.ID, i, t, j, labels[j], v); err != nil {
				return "", fmt.Errorf("insert sample %d: %w", i, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}
	return meta.ID, nil
}

func (s *SQLiteStore) List() ([]RunMetadata, error) {
	rows, err := s.db.Query(`SELECT meta FROM runs ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("select runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	runs := make([]RunMetadata, 0)
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		var meta RunMetadata
		if err := json.Unmarshal(raw, &meta); err != nil {
			return nil, fmt.Errorf("decode run: %w", err)
		}
		runs = append(runs, meta)
	}
	return runs, rows.Err()
}

func (s *SQLiteStore) Load(runID string) (*RunMetadata, error) {
	var raw []byte
	err := s.db.QueryRow(`SELECT meta FROM runs WHERE id = ?`, runID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, runID)
	}
	if err != nil {
		return nil, err
	}
	var meta RunMetadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("decode run: %w", err)
	}
	return &meta, nil
}

func (s *SQLiteStore) LoadTrajectory(runID string) (*trajectory.Trajectory, error) {
	var raw string
	err := s.db.QueryRow(`SELECT entities FROM runs WHERE id = ?`, runID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, runID)
	}
	if err != nil {
		return nil, err
	}
	var labels []string
	if err := json.Unmarshal([]byte(raw), &labels); err != nil {
		return nil, fmt.Errorf("decode entities: %w", err)
	}

	rows, err := s.db.Query(`SELECT step, time, col, magnitude FROM samples WHERE run_id = ? ORDER BY step, col`, runID)
	if err != nil {
		return nil, fmt.Errorf("select samples: %w", err)
	}
	defer func() { _ = rows.Close() }()

	tr := trajectory.New(labels)
	row := make([]float64, len(labels))
	current, currentT := -1, 0.0
	flush := func() error {
		if current < 0 {
			return nil
		}
		return tr.Append(currentT, row)
	}
	for rows.Next() {
		var (
			step, col int
			t, v      float64
		)
		if err := rows.Scan(&step, &t, &col, &v); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		if col < 0 || col >= len(labels) {
			return nil, fmt.Errorf("storage: run %s sample %d has column %d of %d", runID, step, col, len(labels))
		}
		if step != current {
			if err := flush(); err != nil {
				return nil, err
			}
			current, currentT = step, t
		}
		row[col] = v
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return tr, nil
}
