package state

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/afero"

	"mesactl/internal/util"
)

// Store handles history file persistence.
type Store struct {
	path string
	fs   afero.Fs
}

// NewStore creates a store for the history file at path. A nil fs means the
// OS filesystem.
func NewStore(fs afero.Fs, path string) *Store {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Store{
		path: path,
		fs:   fs,
	}
}

// Load loads history from the file, creating a new history if the file doesn't exist.
func (s *Store) Load() (*History, error) {
	data, err := afero.ReadFile(s.fs, s.path)
	if os.IsNotExist(err) {
		h := New()
		h.SetPath(s.path)
		return h, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading history file: %w", err)
	}

	var h History
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("parsing history JSON: %w", err)
	}
	if h.Runs == nil {
		h.Runs = []RunRecord{}
	}

	h.SetPath(s.path)
	return &h, nil
}

// Save replaces the history file with h.
func (s *Store) Save(h *History) error {
	data, err := json.MarshalIndent(h, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling history: %w", err)
	}
	if err := util.WriteFileAtomic(s.fs, s.path, data); err != nil {
		return fmt.Errorf("saving history: %w", err)
	}
	h.SetPath(s.path)
	return nil
}

// Path returns the store's file path.
func (s *Store) Path() string {
	return s.path
}

// Exists returns true if the history file exists.
func (s *Store) Exists() bool {
	_, err := s.fs.Stat(s.path)
	return err == nil
}

// Update loads the history, applies fn and saves the result.
func (s *Store) Update(fn func(*History) error) error {
	h, err := s.Load()
	if err != nil {
		return err
	}

	if err := fn(h); err != nil {
		return err
	}

	return s.Save(h)
}

// Record stores rec, replacing any earlier version of it.
func (s *Store) Record(rec RunRecord) error {
	return s.Update(func(h *History) error {
		h.Put(rec)
		return nil
	})
}
