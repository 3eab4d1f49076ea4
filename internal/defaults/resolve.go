package defaults

import (
	"regexp"

	"mesactl/internal/namelist"
)

// indexedPattern matches a single array element such as x_ctrl(5).
var indexedPattern = regexp.MustCompile(`^(\w+)\s*\(\s*([0-9]+)\s*\)$`)

// xCtrls are the user array controls declared over 1:num_x_ctrls.
var xCtrls = map[string]bool{
	"x_ctrl":         true,
	"x_integer_ctrl": true,
	"x_logical_ctrl": true,
}

// Resolution is the outcome of resolving a parameter name.
type Resolution struct {
	// Section owning the parameter, empty when the name is unknown.
	Section string
	// Key is the registry key that matched, possibly a rewritten range form.
	Key string
	// Value is the default, or the caller's value for unknown names.
	Value namelist.Value
}

// Known reports whether the name was found in a section.
func (r Resolution) Known() bool { return r.Section != "" }

// Resolve finds the section owning name. When value is non-zero its kind
// must equal the default's kind.
//
// Indexed names fall back to the array's declared range: x_ctrl(5) resolves
// through x_ctrl(1:num_x_ctrls), other names through name(:). The index
// itself is not checked against the declared bounds.
//
// Names unknown to every section resolve to an empty Section and the given
// value unchanged; callers treat that as an unknown parameter, not an error.
func (r *Registry) Resolve(name string, value namelist.Value) (Resolution, error) {
	key := namelist.Key(name)
	if res, ok, err := r.match(key, value); ok || err != nil {
		return res, err
	}

	if alt, ok := rangeKey(key); ok {
		if res, ok, err := r.match(alt, value); ok || err != nil {
			return res, err
		}
	}

	return Resolution{Value: value}, nil
}

func (r *Registry) match(key string, value namelist.Value) (Resolution, bool, error) {
	for _, s := range r.sections {
		def, ok := s.values[key]
		if !ok {
			continue
		}
		if !value.IsZero() && value.Kind() != def.Kind() {
			return Resolution{}, true, &TypeMismatchError{Name: key, Want: def.Kind(), Got: value.Kind()}
		}
		return Resolution{Section: s.name, Key: key, Value: def}, true, nil
	}
	return Resolution{}, false, nil
}

// rangeKey rewrites an indexed key to its array declaration key.
func rangeKey(key string) (string, bool) {
	m := indexedPattern.FindStringSubmatch(key)
	if m == nil {
		return "", false
	}
	if xCtrls[m[1]] {
		return m[1] + "(1:num_x_ctrls)", true
	}
	return m[1] + "(:)", true
}
