// Package state persists the history of runs made in a MESA work directory.
package state

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// RunStatus represents the outcome of a run.
type RunStatus string

const (
	StatusRunning     RunStatus = "running"
	StatusComplete    RunStatus = "complete"
	StatusFailed      RunStatus = "failed"
	StatusInterrupted RunStatus = "interrupted"
)

// RunKind tells which executable a record is for.
type RunKind string

const (
	KindRun     RunKind = "run"
	KindRestart RunKind = "restart"
	KindMake    RunKind = "make"
)

// RunRecord records one invocation of star, re or mk.
type RunRecord struct {
	ID          string            `json:"id"`
	Kind        RunKind           `json:"kind"`
	Inlist      string            `json:"inlist,omitempty"`
	Photo       string            `json:"photo,omitempty"`
	Model       string            `json:"model,omitempty"`
	Overrides   map[string]string `json:"overrides,omitempty"`
	Status      RunStatus         `json:"status"`
	StartedAt   string            `json:"startedAt"`
	Duration    float64           `json:"duration,omitempty"` // seconds
	ExitCode    int               `json:"exitCode,omitempty"`
	Termination string            `json:"termination,omitempty"`
	LastModel   int               `json:"lastModel,omitempty"`
	LogPath     string            `json:"logPath,omitempty"`
	Error       string            `json:"error,omitempty"`
}

// Elapsed returns the run duration.
func (r RunRecord) Elapsed() time.Duration {
	return time.Duration(r.Duration * float64(time.Second))
}

// NewRecord starts a record with a fresh ID.
func NewRecord(kind RunKind) RunRecord {
	return RunRecord{
		ID:        uuid.NewString(),
		Kind:      kind,
		Status:    StatusRunning,
		StartedAt: time.Now().Format(time.RFC3339),
	}
}

// History is the run history of one work directory.
type History struct {
	CreatedAt string      `json:"createdAt"`
	Runs      []RunRecord `json:"runs"`

	// Internal tracking
	path string
}

// New creates an empty History.
func New() *History {
	return &History{
		CreatedAt: time.Now().Format(time.RFC3339),
		Runs:      []RunRecord{},
	}
}

// Put adds rec, replacing an existing record with the same ID.
func (h *History) Put(rec RunRecord) {
	for i := range h.Runs {
		if h.Runs[i].ID == rec.ID {
			h.Runs[i] = rec
			return
		}
	}
	h.Runs = append(h.Runs, rec)
}

// Find returns the record whose ID starts with prefix. Ambiguous or
// unknown prefixes return false.
func (h *History) Find(prefix string) (RunRecord, bool) {
	var found RunRecord
	n := 0
	for _, r := range h.Runs {
		if r.ID == prefix {
			return r, true
		}
		if prefix != "" && strings.HasPrefix(r.ID, prefix) {
			found = r
			n++
		}
	}
	return found, n == 1
}

// Last returns the most recent record of kind, or nil if none.
func (h *History) Last(kind RunKind) *RunRecord {
	for i := len(h.Runs) - 1; i >= 0; i-- {
		if h.Runs[i].Kind == kind {
			return &h.Runs[i]
		}
	}
	return nil
}

// LastInlist returns the inlist of the most recent run, or "" if none.
func (h *History) LastInlist() string {
	if r := h.Last(KindRun); r != nil {
		return r.Inlist
	}
	return ""
}

// Completed returns the records that finished successfully.
func (h *History) Completed() []RunRecord {
	var out []RunRecord
	for _, r := range h.Runs {
		if r.Status == StatusComplete {
			out = append(out, r)
		}
	}
	return out
}

// Trim keeps the newest max records. Zero or negative max keeps all.
func (h *History) Trim(max int) {
	if max > 0 && len(h.Runs) > max {
		h.Runs = h.Runs[len(h.Runs)-max:]
	}
}

// Path returns the file path the history was loaded from.
func (h *History) Path() string {
	return h.path
}

// SetPath sets the file path for the history.
func (h *History) SetPath(path string) {
	h.path = path
}
