package jsonstore

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/natefinch/atomic"
)

// JSON-backed local UI state. Single file, human-readable, portable.
// Writes replace the file atomically; the last writer wins.

const dataFileName = "state.json"

// State is what the client remembers between runs.
type State struct {
	LastListID string `json:"last_list_id,omitempty"`
}

// Store keeps State under Dir.
type Store struct {
	Dir string
}

// New returns a store rooted at dir.
func New(dir string) *Store { return &Store{Dir: dir} }

func (s *Store) dataPath() string { return filepath.Join(s.Dir, dataFileName) }

// Load returns the saved state; a missing file is an empty state.
func (s *Store) Load() (State, error) {
	b, err := os.ReadFile(s.dataPath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return State{}, nil
		}
		return State{}, fmt.Errorf("read file: %w", err)
	}
	var st State
	if err := json.Unmarshal(b, &st); err != nil {
		return State{}, fmt.Errorf("json unmarshal: %w", err)
	}
	return st, nil
}

// Save replaces the saved state.
func (s *Store) Save(st State) error {
	if err := os.MkdirAll(s.Dir, 0o700); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	b, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("json marshal: %w", err)
	}
	if err := atomic.WriteFile(s.dataPath(), bytes.NewReader(b)); err != nil {
		return fmt.Errorf("write file: %w", err)
	}
	return nil
}

// LastList is the list viewed most recently, "" when none.
func (s *Store) LastList() (string, error) {
	st, err := s.Load()
	return st.LastListID, err
}

// RememberList records listID as the last viewed list.
func (s *Store) RememberList(listID string) error {
	st, err := s.Load()
	if err != nil {
		return err
	}
	if st.LastListID == listID {
		return nil
	}
	st.LastListID = listID
	return s.Save(st)
}
