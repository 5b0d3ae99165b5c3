// Package state persists the learned core state across restarts: bandit
// arms, golden templates and trial ground metadata in one JSON snapshot.
// Writes are atomic (temp file plus rename); a missing snapshot means a
// cold start, never an error.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/mindforge-ai/mindforge/internal/golden"
	"github.com/mindforge-ai/mindforge/internal/mab"
	"github.com/mindforge-ai/mindforge/internal/trial"
)

// SchemaVersion guards against loading snapshots written by an
// incompatible layout.
const SchemaVersion = 1

// Snapshot is the full persistable core state.
type Snapshot struct {
	SchemaVersion   int                        `json:"schema_version"`
	SavedAt         time.Time                  `json:"saved_at"`
	Arms            map[string]mab.Arm         `json:"arms"`
	TotalSelections int                        `json:"total_selections"`
	Golden          map[string]golden.Template `json:"golden_templates"`
	Trial           trial.Metadata             `json:"trial_ground"`
}

// Store reads and writes snapshots at a fixed path.
type Store struct {
	path string
	log  zerolog.Logger
}

// NewStore builds a store. The parent directory is created on first save.
func NewStore(path string, log zerolog.Logger) *Store {
	return &Store{path: path, log: log}
}

// Path returns the snapshot location.
func (s *Store) Path() string { return s.path }

// Save writes the snapshot atomically.
func (s *Store) Save(snap Snapshot) error {
	snap.SchemaVersion = SchemaVersion
	snap.SavedAt = time.Now()

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".state-*.json")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close state file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace state file: %w", err)
	}

	s.log.Debug().
		Str("path", s.path).
		Int("arms", len(snap.Arms)).
		Int("templates", len(snap.Golden)).
		Msg("state saved")
	return nil
}

// Load reads the snapshot. A missing file returns (nil, nil): cold start.
func (s *Store) Load() (*Snapshot, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read state: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parse state: %w", err)
	}
	if snap.SchemaVersion != SchemaVersion {
		return nil, fmt.Errorf("state schema version %d, want %d", snap.SchemaVersion, SchemaVersion)
	}
	return &snap, nil
}
