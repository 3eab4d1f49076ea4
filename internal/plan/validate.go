package plan

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/afero"

	"mesactl/internal/defaults"
	"mesactl/internal/namelist"
)

// ValidationError represents a plan validation error.
type ValidationError struct {
	Step    string
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	if e.Step != "" {
		return fmt.Sprintf("%s.%s: %s", e.Step, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationResult holds the results of plan validation.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
}

// IsValid returns true if there are no errors.
func (r *ValidationResult) IsValid() bool {
	return len(r.Errors) == 0
}

// HasWarnings returns true if there are warnings.
func (r *ValidationResult) HasWarnings() bool {
	return len(r.Warnings) > 0
}

// AddError adds a validation error.
func (r *ValidationResult) AddError(step, field, message string) {
	r.Errors = append(r.Errors, ValidationError{Step: step, Field: field, Message: message})
}

// AddWarning adds a validation warning.
func (r *ValidationResult) AddWarning(step, field, message string) {
	r.Warnings = append(r.Warnings, ValidationError{Step: step, Field: field, Message: message})
}

// Err joins the errors into one, or returns nil.
func (r *ValidationResult) Err() error {
	if r.IsValid() {
		return nil
	}
	msgs := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		msgs[i] = e.Error()
	}
	return fmt.Errorf("invalid plan: %s", strings.Join(msgs, "; "))
}

var namePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_%]*(\s*\(\s*[0-9:,\s]*\s*\))?$`)

// Env is what validation checks a plan against.
type Env struct {
	Fs afero.Fs

	// WorkDir holds the inlists
	WorkDir string

	// ActiveInlist is the name star reads; steps may not use it
	ActiveInlist string

	// Registry is optional; without it parameter names are not checked
	Registry *defaults.Registry
}

// Validate checks the plan for errors and likely mistakes.
func (p *Plan) Validate(env Env) *ValidationResult {
	result := &ValidationResult{}

	if len(p.Steps) == 0 {
		result.AddError("", "steps", "at least one step required")
	}

	archives := make(map[string]string)
	for i := range p.Steps {
		step := &p.Steps[i]
		label := step.Label()
		if label == "" {
			label = fmt.Sprintf("steps[%d]", i)
		}
		p.validateStep(step, label, env, archives, result)
	}

	return result
}

// validateStep validates a single step.
func (p *Plan) validateStep(step *Step, label string, env Env, archives map[string]string, result *ValidationResult) {
	switch {
	case step.Inlist == "":
		result.AddError(label, "inlist", "required")
	case filepath.Base(step.Inlist) == env.ActiveInlist:
		result.AddError(label, "inlist", fmt.Sprintf("'%s' is overwritten before each run; use a named copy", env.ActiveInlist))
	case env.Fs != nil:
		if _, err := env.Fs.Stat(filepath.Join(env.WorkDir, step.Inlist)); err != nil {
			result.AddError(label, "inlist", fmt.Sprintf("'%s' not found in %s", step.Inlist, env.WorkDir))
		}
	}

	seen := make(map[string]int)
	for _, ov := range step.Set {
		field := fmt.Sprintf("set.%s", ov.Name)
		if !namePattern.MatchString(ov.Name) {
			result.AddError(label, field, "not a valid parameter name")
			continue
		}

		key := namelist.Key(ov.Name)
		if line, dup := seen[key]; dup {
			result.AddWarning(label, field, fmt.Sprintf("also set on line %d; the last value wins", line))
		}
		seen[key] = ov.Line

		if env.Registry == nil {
			continue
		}
		res, err := env.Registry.Resolve(ov.Name, ov.Value)
		switch {
		case err != nil:
			result.AddError(label, field, err.Error())
		case !res.Known():
			result.AddWarning(label, field, "not a known default; the inlist must already set it")
		}
	}

	if step.Archive != "" {
		if filepath.IsAbs(step.Archive) || strings.Contains(step.Archive, "..") {
			result.AddError(label, "archive", "must be a relative path inside the work directory")
		}
		if prev, dup := archives[step.Archive]; dup {
			result.AddWarning(label, "archive", fmt.Sprintf("same directory as step %s", prev))
		}
		archives[step.Archive] = label
	}
}
