package orchestrator

import (
	"errors"
	"fmt"

	"mesactl/internal/classify"
)

var (
	// ErrStarMissing is returned when the work directory has no built star
	// executable. Run make first.
	ErrStarMissing = errors.New("star executable not found; build it first")

	// ErrNoPhoto is returned when a restart finds no photo to start from.
	ErrNoPhoto = errors.New("photo not found")

	// ErrNoInlist is returned when a restart has no inlist to copy into place.
	ErrNoInlist = errors.New("no inlist to restart with")
)

// RunFailedError reports a run that finished without writing its model file.
type RunFailedError struct {
	Inlist      string
	Model       string
	Termination string
	Category    classify.Category
	Summary     string
	Err         error
}

func (e *RunFailedError) Error() string {
	msg := fmt.Sprintf("failed to run %s: model %s was not written", e.Inlist, e.Model)
	if e.Termination != "" {
		msg += fmt.Sprintf(" (termination code: %s)", e.Termination)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Category != "" && e.Category != classify.CategoryUnknown {
		msg += fmt.Sprintf(" [%s]", e.Category)
	}
	return msg
}

func (e *RunFailedError) Unwrap() error { return e.Err }
