package namelist

import "fmt"

// ConversionError reports text that matches no value encoding, or a value
// kind that has no text encoding.
type ConversionError struct {
	Text   string
	Kind   Kind
	Reason string
}

func (e *ConversionError) Error() string {
	msg := fmt.Sprintf("cannot convert %q to a known type", e.Text)
	if e.Text == "" {
		msg = fmt.Sprintf("cannot convert value of kind %s", e.Kind)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// ValidationError reports a broken grammar invariant inside the parser.
// It signals a programming error, never bad user data.
type ValidationError struct {
	Line    int
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("namelist grammar violated at line %d: %s", e.Line, e.Message)
}
