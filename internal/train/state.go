// Package train implements the retraining orchestrator: watermark
// checks, drift evaluation, candidate training and selection, model
// versioning, the training log and the state file.
package train

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// StateStore persists the training watermark as a small JSON file.
type StateStore struct {
	path string
}

// NewStateStore creates a store for the given file path.
func NewStateStore(path string) *StateStore {
	return &StateStore{path: path}
}

// Load reads the watermark. A missing file yields the zero state, so a
// fresh deployment trains from row zero.
func (s *StateStore) Load() (domain.TrainingState, error) {
	var state domain.TrainingState

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return state, nil
	}
	if err != nil {
		return state, fmt.Errorf("read state file: %w", err)
	}
	if err := json.Unmarshal(data, &state); err != nil {
		return state, fmt.Errorf("parse state file: %w", err)
	}
	return state, nil
}

// Save rewrites the watermark. Called exactly once per successful run,
// after the model artifacts and log row are persisted.
func (s *StateStore) Save(state domain.TrainingState) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("write state file: %w", err)
	}
	return nil
}
