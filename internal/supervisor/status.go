// Package supervisor publishes run progress for outside observers: a JSONL
// event log, a compact status file and user hooks.
package supervisor

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"sync"
	"time"

	"github.com/spf13/afero"

	"mesactl/internal/util"
)

// Status is the snapshot kept in the status file. Done counts inlists that
// finished with a model; Current is empty between runs.
type Status struct {
	Done      int    `json:"done"`
	Total     int    `json:"total"`
	Current   string `json:"current,omitempty"`
	RunID     string `json:"runId,omitempty"`
	StartedAt string `json:"startedAt,omitempty"`
	Elapsed   int    `json:"elapsed,omitempty"`
	LastModel int    `json:"lastModel,omitempty"`
	Failed    bool   `json:"failed"`
	UpdatedAt string `json:"updatedAt"`
}

// StatusWriter keeps the status of the running sequence and rewrites the
// status file on every change. A nil writer or an empty path does nothing.
type StatusWriter struct {
	fs   afero.Fs
	path string

	mu      sync.Mutex
	cur     Status
	started time.Time
}

func NewStatusWriter(fs afero.Fs, path string) *StatusWriter {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &StatusWriter{fs: fs, path: path}
}

func (w *StatusWriter) Path() string { return w.path }

// Enabled reports whether updates reach a file.
func (w *StatusWriter) Enabled() bool {
	return w != nil && w.path != ""
}

// StartSequence resets the snapshot for a sequence of total inlists.
func (w *StatusWriter) StartSequence(total int) error {
	return w.update(func(s *Status) {
		*s = Status{Total: total}
		w.started = time.Time{}
	})
}

// StartRun marks label as the inlist or photo being run.
func (w *StatusWriter) StartRun(label, runID string) error {
	return w.update(func(s *Status) {
		w.started = time.Now()
		s.Current = label
		s.RunID = runID
		s.StartedAt = w.started.UTC().Format(time.RFC3339)
		s.Failed = false
	})
}

// FinishRun records the outcome of the current run. A failed run stays
// current so the file shows where the sequence stopped.
func (w *StatusWriter) FinishRun(ok bool, lastModel int) error {
	return w.update(func(s *Status) {
		s.LastModel = lastModel
		if !ok {
			s.Failed = true
			return
		}
		s.Done++
		s.Current = ""
		s.RunID = ""
		s.StartedAt = ""
		w.started = time.Time{}
	})
}

func (w *StatusWriter) update(fn func(*Status)) error {
	if !w.Enabled() {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	fn(&w.cur)
	if !w.started.IsZero() {
		w.cur.Elapsed = int(time.Since(w.started).Seconds())
	} else {
		w.cur.Elapsed = 0
	}
	snapshot := w.cur
	return w.Write(&snapshot)
}

// Write replaces the status file with st as given.
func (w *StatusWriter) Write(st *Status) error {
	if !w.Enabled() {
		return nil
	}
	if st.UpdatedAt == "" {
		st.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	}
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshaling status: %w", err)
	}
	return util.WriteFileAtomic(w.fs, w.path, data)
}

// Read loads the status file. It returns nil, nil when nothing has been
// written yet.
func (w *StatusWriter) Read() (*Status, error) {
	data, err := afero.ReadFile(w.fs, w.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	st := new(Status)
	if err := json.Unmarshal(data, st); err != nil {
		return nil, fmt.Errorf("reading %s: %w", w.path, err)
	}
	return st, nil
}

// Clear removes the status file.
func (w *StatusWriter) Clear() error {
	if !w.Enabled() {
		return nil
	}
	err := w.fs.Remove(w.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}
