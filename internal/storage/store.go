// Package storage persists finished runs: metadata plus the trajectory with
// entity identities as column keys.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/san-kum/celltx/internal/trajectory"
)

var ErrNotFound = errors.New("storage: run not found")

type RunMetadata struct {
	ID         string             `json:"id"`
	Model      string             `json:"model"`
	Timestamp  time.Time          `json:"timestamp"`
	Dt         float64            `json:"dt"`
	Duration   float64            `json:"duration"`
	Integrator string             `json:"integrator"`
	Adaptive   bool               `json:"adaptive"`
	Negativity string             `json:"negativity"`
	Params     map[string]float64 `json:"params,omitempty"`
	Metrics    map[string]float64 `json:"metrics,omitempty"`
	Steps      int                `json:"steps"`
	Rejected   int                `json:"rejected"`
	Clamps     int                `json:"clamps"`
}

// Backend is implemented by Store and SQLiteStore.
type Backend interface {
	Save(meta RunMetadata, tr *trajectory.Trajectory) (string, error)
	List() ([]RunMetadata, error)
	Load(runID string) (*RunMetadata, error)
	LoadTrajectory(runID string) (*trajectory.Trajectory, error)
	Close() error
}

// Open returns the backend named by kind ("fs" or "sqlite") rooted at dir.
func Open(kind, dir string) (Backend, error) {
	switch kind {
	case "", "fs":
		s := New(dir)
		if err := s.Init(); err != nil {
			return nil, err
		}
		return s, nil
	case "sqlite":
		return OpenSQLite(filepath.Join(dir, "runs.db"))
	}
	return nil, fmt.Errorf("storage: unknown backend %q", kind)
}

// newRun fills in the id and timestamp of meta.
func newRun(meta RunMetadata) RunMetadata {
	meta.ID = uuid.NewString()
	meta.Timestamp = time.Now().UTC()
	return meta
}

// Store keeps one directory per run holding metadata.json and
// trajectory.csv.
type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

func (s *Store) Close() error { return nil }

func (s *Store) Save(meta RunMetadata, tr *trajectory.Trajectory) (string, error) {
	meta = newRun(meta)
	runDir := filepath.Join(s.baseDir, meta.ID)

	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	metaFile, err := os.Create(filepath.Join(runDir, "metadata.json"))
	if err != nil {
		return "", err
	}
	defer metaFile.Close()

	enc := json.NewEncoder(metaFile)
	enc.SetIndent("", "  ")
	if err := enc.Encode(meta); err != nil {
		return "", err
	}

	csvFile, err := os.Create(filepath.Join(runDir, "trajectory.csv"))
	if err != nil {
		return "", err
	}
	defer csvFile.Close()

	if err := tr.WriteCSV(csvFile); err != nil {
		return "", err
	}
	return meta.ID, nil
}

// List returns saved runs, newest first. Directories without readable
// metadata are skipped.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}

	sort.Slice(runs, func(i, j int) bool { return runs[i].Timestamp.After(runs[j].Timestamp) })
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, "metadata.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, runID)
		}
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

func (s *Store) LoadTrajectory(runID string) (*trajectory.Trajectory, error) {
	file, err := os.Open(filepath.Join(s.baseDir, runID, "trajectory.csv"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, runID)
		}
		return nil, err
	}
	defer file.Close()

	return trajectory.ReadCSV(file)
}
