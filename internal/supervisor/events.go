package supervisor

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/afero"

	"mesactl/internal/module"
)

// maxEventLine bounds a single JSONL record when reading the log back.
const maxEventLine = 1 << 20

// EventWriter appends run events to a JSONL log and hands each one to the
// hook dispatcher. The log is opened lazily and reopened after Close, so a
// writer can span several commands in one process.
type EventWriter struct {
	fs    afero.Fs
	path  string
	hooks *module.Dispatcher

	mu  sync.Mutex
	out afero.File
	enc *json.Encoder
}

// NewEventWriter returns a writer for path. With an empty path events only
// reach hooks; hooks may be nil.
func NewEventWriter(fsys afero.Fs, path string, hooks *module.Dispatcher) *EventWriter {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	return &EventWriter{fs: fsys, path: path, hooks: hooks}
}

func (w *EventWriter) Path() string { return w.path }

// Enabled reports whether events are logged to a file.
func (w *EventWriter) Enabled() bool {
	return w != nil && w.path != ""
}

// Write dispatches event to hooks and appends it to the log.
func (w *EventWriter) Write(event *module.Event) error {
	if w == nil {
		return nil
	}
	w.hooks.Dispatch(event)
	if w.path == "" {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.out == nil {
		if err := w.fs.MkdirAll(filepath.Dir(w.path), 0755); err != nil {
			return fmt.Errorf("creating event log directory: %w", err)
		}
		f, err := w.fs.OpenFile(w.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("opening event log: %w", err)
		}
		w.out, w.enc = f, json.NewEncoder(f)
	}
	if err := w.enc.Encode(event); err != nil {
		return fmt.Errorf("appending %s event: %w", event.Type, err)
	}
	return w.out.Sync()
}

// Close releases the log file. Later writes reopen it in append mode.
func (w *EventWriter) Close() error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.out == nil {
		return nil
	}
	err := w.out.Close()
	w.out, w.enc = nil, nil
	return err
}

// Clear closes and deletes the log.
func (w *EventWriter) Clear() error {
	if !w.Enabled() {
		return nil
	}
	w.Close()
	if err := w.fs.Remove(w.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (w *EventWriter) WriteSequenceStart(inlists []string) error {
	return w.Write(module.SequenceStartEvent(inlists))
}

func (w *EventWriter) WriteSequenceComplete(completed, total int, duration time.Duration) error {
	return w.Write(module.SequenceCompleteEvent(completed, total, duration))
}

func (w *EventWriter) WriteRunStart(runID, inlist, model string) error {
	return w.Write(module.RunStartEvent(runID, inlist, model))
}

func (w *EventWriter) WriteRunComplete(runID, inlist, model string, duration time.Duration) error {
	return w.Write(module.RunCompleteEvent(runID, inlist, model, duration))
}

func (w *EventWriter) WriteRunFailed(runID, inlist, reason string) error {
	return w.Write(module.RunFailedEvent(runID, inlist, reason))
}

// WriteFile records a new profile or photo seen during a run.
func (w *EventWriter) WriteFile(kind module.EventType, runID, path string) error {
	return w.Write(module.FileWrittenEvent(kind, runID, path))
}

func (w *EventWriter) WriteBuild(runID string, ok bool, duration time.Duration) error {
	return w.Write(module.BuildEvent(runID, ok, duration))
}

// ReadEvents loads the log at path in write order. A missing log reads as
// empty; blank lines are skipped.
func ReadEvents(fsys afero.Fs, path string) ([]module.Event, error) {
	f, err := fsys.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var events []module.Event
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), maxEventLine)
	for n := 1; sc.Scan(); n++ {
		raw := sc.Bytes()
		if len(raw) == 0 {
			continue
		}
		var ev module.Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, n, err)
		}
		events = append(events, ev)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return events, nil
}
