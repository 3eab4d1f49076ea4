package defaults

import (
	"fmt"

	"mesactl/internal/namelist"
)

// EnvironmentError reports that the installation root was not configured.
type EnvironmentError struct {
	Var string
}

func (e *EnvironmentError) Error() string {
	return fmt.Sprintf("%s is not set in your environment, be sure to set it properly", e.Var)
}

// NotFoundError reports a missing installation or defaults location.
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s does not exist", e.Path)
}

// TypeMismatchError reports a value whose kind differs from the default's.
type TypeMismatchError struct {
	Name string
	Want namelist.Kind
	Got  namelist.Kind
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("type of value for parameter %s is wrong: expected %s, got %s", e.Name, e.Want, e.Got)
}
