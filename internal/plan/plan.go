// Package plan loads run plans: ordered lists of inlists to run, each with
// parameter overrides applied after the inlist is copied into place.
package plan

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"mesactl/internal/defaults"
	"mesactl/internal/namelist"
)

// Override sets one parameter before a step runs.
type Override struct {
	Name  string
	Value namelist.Value

	// Line in the plan file, for messages
	Line int
}

// Overrides keeps the order overrides were written in.
type Overrides []Override

// UnmarshalYAML decodes a mapping of parameter name to scalar value.
func (o *Overrides) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: set must be a mapping of parameter to value", node.Line)
	}

	out := make(Overrides, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, val := node.Content[i], node.Content[i+1]
		if val.Kind != yaml.ScalarNode {
			return fmt.Errorf("line %d: value of %s must be a scalar", val.Line, key.Value)
		}

		var raw any
		if err := val.Decode(&raw); err != nil {
			return fmt.Errorf("line %d: %w", val.Line, err)
		}
		if raw == nil {
			return fmt.Errorf("line %d: %s has no value", val.Line, key.Value)
		}
		v, err := namelist.FromAny(raw)
		if err != nil {
			return fmt.Errorf("line %d: %w", val.Line, err)
		}
		out = append(out, Override{Name: key.Value, Value: v, Line: key.Line})
	}

	*o = out
	return nil
}

// MarshalYAML writes overrides back as a mapping.
func (o Overrides) MarshalYAML() (interface{}, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, ov := range o {
		val := &yaml.Node{}
		if err := val.Encode(ov.Value.Interface()); err != nil {
			return nil, err
		}
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: ov.Name},
			val)
	}
	return node, nil
}

// Step is one inlist in a plan.
type Step struct {
	Name   string    `yaml:"name,omitempty"`
	Inlist string    `yaml:"inlist"`
	Set    Overrides `yaml:"set,omitempty"`

	// Archive copies LOGS into this directory after a successful run
	Archive string `yaml:"archive,omitempty"`

	// Pgstar and Pause override the configured defaults for this step
	Pgstar *bool `yaml:"pgstar,omitempty"`
	Pause  *bool `yaml:"pause,omitempty"`
}

// Label returns the step name, falling back to the inlist.
func (s *Step) Label() string {
	if s.Name != "" {
		return s.Name
	}
	return s.Inlist
}

// Plan is an ordered sequence of runs.
type Plan struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
	Steps       []Step `yaml:"steps"`

	// Internal tracking
	path string
}

// Load loads a plan from the given file path.
func Load(fs afero.Fs, path string) (*Plan, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("reading plan file: %w", err)
	}

	p, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing plan %s: %w", path, err)
	}
	p.path = path
	return p, nil
}

// Parse decodes a plan from YAML.
func Parse(data []byte) (*Plan, error) {
	var p Plan
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return &p, nil
}

// FromInlists builds a plan that runs the given inlists without overrides.
func FromInlists(inlists ...string) *Plan {
	p := &Plan{Name: strings.Join(inlists, ", ")}
	for _, name := range inlists {
		p.Steps = append(p.Steps, Step{Inlist: name})
	}
	return p
}

// Path returns the file the plan was loaded from.
func (p *Plan) Path() string {
	return p.path
}

// Inlists returns the inlist of every step in order.
func (p *Plan) Inlists() []string {
	names := make([]string, len(p.Steps))
	for i, s := range p.Steps {
		names[i] = s.Inlist
	}
	return names
}

// Marshal encodes the plan as YAML.
func (p *Plan) Marshal() ([]byte, error) {
	return yaml.Marshal(p)
}

// Resolve converts override values to the kinds the registry records for
// them. Text written for a numeric or logical parameter is read as a
// namelist literal, so "1d-3" and ".true." work as plan values. Unknown
// parameters are left alone.
func (p *Plan) Resolve(reg *defaults.Registry) error {
	for si := range p.Steps {
		step := &p.Steps[si]
		for oi := range step.Set {
			ov := &step.Set[oi]
			res, err := reg.Resolve(ov.Name, namelist.Value{})
			if err != nil {
				return err
			}
			if !res.Known() {
				continue
			}

			want := res.Value.Kind()
			v := ov.Value
			if s, ok := v.Text(); ok && want != namelist.KindText {
				if v, err = namelist.ParseAs(s, want); err != nil {
					return fmt.Errorf("step %s, %s (line %d): %w", step.Label(), ov.Name, ov.Line, err)
				}
			}
			if c, ok := namelist.Coerce(v, want); ok {
				v = c
			}
			if _, err := reg.Resolve(ov.Name, v); err != nil {
				return fmt.Errorf("step %s (line %d): %w", step.Label(), ov.Line, err)
			}
			ov.Value = v
		}
	}
	return nil
}

// OverrideNames returns the distinct override names across all steps, sorted.
func (p *Plan) OverrideNames() []string {
	seen := make(map[string]bool)
	var names []string
	for _, s := range p.Steps {
		for _, ov := range s.Set {
			key := namelist.Key(ov.Name)
			if !seen[key] {
				seen[key] = true
				names = append(names, ov.Name)
			}
		}
	}
	sort.Strings(names)
	return names
}
