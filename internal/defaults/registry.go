// Package defaults loads the parameter defaults shipped with a MESA
// installation and resolves parameter names against them.
package defaults

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/afero"

	"mesactl/internal/namelist"
)

// EnvVar names the environment variable holding the installation root.
const EnvVar = "MESA_DIR"

// Subdir is the location of the defaults files below the installation root.
const Subdir = "star/defaults"

// SectionFile names a defaults file relative to Subdir.
type SectionFile struct {
	Name string
	File string
}

// StarSections are the star module's namelists in resolver search order.
var StarSections = []SectionFile{
	{Name: "star_job", File: "star_job.defaults"},
	{Name: "controls", File: "controls.defaults"},
	{Name: "pgstar", File: "pgstar.defaults"},
}

// Section holds the parameters of one defaults file in file order.
type Section struct {
	name   string
	keys   []string
	values map[string]namelist.Value
}

// Name returns the section name.
func (s *Section) Name() string { return s.name }

// Keys returns the parameter keys in file order.
func (s *Section) Keys() []string { return s.keys }

// Len returns the number of parameters.
func (s *Section) Len() int { return len(s.keys) }

// Get returns the default value for key.
func (s *Section) Get(key string) (namelist.Value, bool) {
	v, ok := s.values[key]
	return v, ok
}

// Options configures Load.
type Options struct {
	// Root is the MESA installation directory.
	Root string
	// Fs defaults to the OS filesystem.
	Fs afero.Fs
	// Sections defaults to StarSections.
	Sections []SectionFile
	Logger   *slog.Logger
}

// Registry is the read-only set of default sections. It is safe for
// concurrent use once loaded.
type Registry struct {
	root     string
	sections []*Section
	byName   map[string]*Section
}

// Load reads every defaults section below opts.Root.
func Load(opts Options) (*Registry, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	fsys := opts.Fs
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	files := opts.Sections
	if len(files) == 0 {
		files = StarSections
	}

	if opts.Root == "" {
		return nil, &EnvironmentError{Var: EnvVar}
	}
	if err := requireDir(fsys, opts.Root); err != nil {
		return nil, err
	}
	dir := filepath.Join(opts.Root, Subdir)
	if err := requireDir(fsys, dir); err != nil {
		return nil, err
	}

	r := &Registry{
		root:   opts.Root,
		byName: make(map[string]*Section, len(files)),
	}
	for _, f := range files {
		sec, err := loadSection(fsys, f.Name, filepath.Join(dir, f.File))
		if err != nil {
			return nil, err
		}
		r.sections = append(r.sections, sec)
		r.byName[sec.name] = sec
		logger.Debug("loaded defaults section", "section", sec.name, "parameters", sec.Len())
	}
	return r, nil
}

func requireDir(fsys afero.Fs, dir string) error {
	info, err := fsys.Stat(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &NotFoundError{Path: dir}
		}
		return fmt.Errorf("checking %s: %w", dir, err)
	}
	if !info.IsDir() {
		return &NotFoundError{Path: dir}
	}
	return nil
}

func loadSection(fsys afero.Fs, name, file string) (*Section, error) {
	data, err := afero.ReadFile(fsys, file)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &NotFoundError{Path: file}
		}
		return nil, fmt.Errorf("reading defaults %s: %w", file, err)
	}

	doc, err := namelist.Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("parsing defaults %s: %w", file, err)
	}

	params := doc.Params()
	sec := &Section{
		name:   name,
		keys:   params.Keys(),
		values: make(map[string]namelist.Value, params.Len()),
	}
	for _, key := range params.Keys() {
		raw, _ := params.Get(key)
		v, err := namelist.Decode(raw)
		if err != nil {
			return nil, fmt.Errorf("defaults %s, parameter %s: %w", file, key, err)
		}
		sec.values[key] = v
	}
	return sec, nil
}

// Root returns the installation directory the registry was loaded from.
func (r *Registry) Root() string { return r.root }

// Sections returns the sections in search order.
func (r *Registry) Sections() []*Section { return r.sections }

// Section returns the named section.
func (r *Registry) Section(name string) (*Section, bool) {
	s, ok := r.byName[name]
	return s, ok
}

// Lookup returns the first section defining name and its default value.
func (r *Registry) Lookup(name string) (string, namelist.Value, bool) {
	key := namelist.Key(name)
	for _, s := range r.sections {
		if v, ok := s.values[key]; ok {
			return s.name, v, true
		}
	}
	return "", namelist.Value{}, false
}

// IsKnown reports whether any section defines name.
func (r *Registry) IsKnown(name string) bool {
	_, _, ok := r.Lookup(name)
	return ok
}

// Entry is a single default parameter.
type Entry struct {
	Section string
	Key     string
	Value   namelist.Value
}

// Search returns the defaults whose key matches a glob pattern such as
// "*mass*" or "x_ctrl*", sorted by section order then key.
func (r *Registry) Search(pattern string) ([]Entry, error) {
	pattern = namelist.Key(pattern)
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid pattern %q", pattern)
	}

	var out []Entry
	for _, s := range r.sections {
		var matched []string
		for _, key := range s.keys {
			if ok, _ := doublestar.Match(pattern, key); ok {
				matched = append(matched, key)
			}
		}
		sort.Strings(matched)
		for _, key := range matched {
			out = append(out, Entry{Section: s.name, Key: key, Value: s.values[key]})
		}
	}
	return out, nil
}
