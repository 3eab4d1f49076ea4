// Package module runs user hook executables on run events.
package module

import (
	"encoding/json"
	"slices"
	"time"
)

// EventType names a point in the life of a run or sequence.
type EventType string

const (
	EventSequenceStart    EventType = "sequence_start"
	EventRunStart         EventType = "run_start"
	EventRunComplete      EventType = "run_complete"
	EventRunFailed        EventType = "run_failed"
	EventProfileWritten   EventType = "profile_written"
	EventPhotoWritten     EventType = "photo_written"
	EventBuild            EventType = "build"
	EventSequenceComplete EventType = "sequence_complete"
)

var eventTypes = []EventType{
	EventSequenceStart,
	EventRunStart,
	EventRunComplete,
	EventRunFailed,
	EventProfileWritten,
	EventPhotoWritten,
	EventBuild,
	EventSequenceComplete,
}

// AllEventTypes lists the event types in the order they occur in a sequence.
func AllEventTypes() []EventType {
	return slices.Clone(eventTypes)
}

func (t EventType) Valid() bool {
	return slices.Contains(eventTypes, t)
}

// Event is one line of the event log and the stdin payload of a hook.
type Event struct {
	Type      EventType      `json:"type"`
	Timestamp string         `json:"timestamp"`
	RunID     string         `json:"runId,omitempty"`
	Inlist    string         `json:"inlist,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

func NewEvent(t EventType) *Event {
	return &Event{
		Type:      t,
		Timestamp: time.Now().Format(time.RFC3339),
		Data:      map[string]any{},
	}
}

func (e *Event) WithRun(runID string) *Event {
	e.RunID = runID
	return e
}

func (e *Event) WithInlist(name string) *Event {
	e.Inlist = name
	return e
}

func (e *Event) WithData(key string, value any) *Event {
	e.Data[key] = value
	return e
}

func (e *Event) JSON() ([]byte, error) {
	return json.Marshal(e)
}

// Environ returns the MESACTL_* variables a hook sees for e.
func (e *Event) Environ() []string {
	return []string{
		"MESACTL_EVENT=" + string(e.Type),
		"MESACTL_RUN_ID=" + e.RunID,
		"MESACTL_INLIST=" + e.Inlist,
	}
}

// Hook is an executable notified of events.
type Hook struct {
	Name   string
	Path   string
	Events []EventType // empty subscribes to everything
}

func (h *Hook) HandlesEvent(t EventType) bool {
	return len(h.Events) == 0 || slices.Contains(h.Events, t)
}

func SequenceStartEvent(inlists []string) *Event {
	return NewEvent(EventSequenceStart).
		WithData("inlists", inlists).
		WithData("total", len(inlists))
}

func SequenceCompleteEvent(completed, total int, took time.Duration) *Event {
	return NewEvent(EventSequenceComplete).
		WithData("completed", completed).
		WithData("total", total).
		WithData("duration", seconds(took))
}

func RunStartEvent(runID, inlist, model string) *Event {
	return NewEvent(EventRunStart).WithRun(runID).WithInlist(inlist).
		WithData("model", model)
}

func RunCompleteEvent(runID, inlist, model string, took time.Duration) *Event {
	return NewEvent(EventRunComplete).WithRun(runID).WithInlist(inlist).
		WithData("model", model).
		WithData("duration", seconds(took))
}

func RunFailedEvent(runID, inlist, reason string) *Event {
	return NewEvent(EventRunFailed).WithRun(runID).WithInlist(inlist).
		WithData("reason", reason)
}

// FileWrittenEvent reports a profile or photo that appeared during a run.
func FileWrittenEvent(t EventType, runID, path string) *Event {
	return NewEvent(t).WithRun(runID).WithData("path", path)
}

func BuildEvent(runID string, ok bool, took time.Duration) *Event {
	return NewEvent(EventBuild).WithRun(runID).
		WithData("ok", ok).
		WithData("duration", seconds(took))
}

// SampleEvent builds an event of type t filled with placeholder values, for
// trying hooks out without running star.
func SampleEvent(t EventType) *Event {
	const id, inlist, model = "test", "inlist_test", "test.mod"
	switch t {
	case EventSequenceStart:
		return SequenceStartEvent([]string{inlist})
	case EventSequenceComplete:
		return SequenceCompleteEvent(1, 1, time.Minute)
	case EventRunStart:
		return RunStartEvent(id, inlist, model)
	case EventRunComplete:
		return RunCompleteEvent(id, inlist, model, time.Minute)
	case EventRunFailed:
		return RunFailedEvent(id, inlist, "model file not written")
	case EventProfileWritten:
		return FileWrittenEvent(t, id, "LOGS/profile1.data")
	case EventPhotoWritten:
		return FileWrittenEvent(t, id, "photos/x100")
	case EventBuild:
		return BuildEvent(id, true, time.Minute)
	}
	return NewEvent(t)
}

func seconds(d time.Duration) int { return int(d.Seconds()) }
