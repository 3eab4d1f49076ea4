package inlist

import (
	"errors"
	"fmt"
)

var (
	// ErrNotInFile is returned by Set when the inlist has no assignment for
	// the parameter. Use Insert to add one explicitly.
	ErrNotInFile = errors.New("parameter is not set in the inlist")

	// ErrGroupNotFound is returned by Insert when the inlist lacks the
	// namelist group that owns the parameter.
	ErrGroupNotFound = errors.New("namelist group not found")
)

// KeyNotFoundError reports a parameter unknown to both the inlist and the
// defaults registry.
type KeyNotFoundError struct {
	Name string
	Path string
}

func (e *KeyNotFoundError) Error() string {
	return fmt.Sprintf("parameter %s is neither set in %s nor a known default", e.Name, e.Path)
}
