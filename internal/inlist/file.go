// Package inlist reads and edits a live MESA inlist in place.
package inlist

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/afero"

	"mesactl/internal/defaults"
	"mesactl/internal/namelist"
	"mesactl/internal/util"
)

// DefaultName is the inlist MESA reads at startup.
const DefaultName = "inlist"

// Options configures Open.
type Options struct {
	// Path of the inlist, DefaultName when empty.
	Path     string
	Fs       afero.Fs
	Registry *defaults.Registry
	Logger   *slog.Logger
}

// File gives typed access to the parameters of one inlist. Every operation
// re-reads the file; nothing is cached between calls.
type File struct {
	path     string
	fs       afero.Fs
	registry *defaults.Registry
	logger   *slog.Logger
}

// Open checks that the inlist exists and returns an accessor for it.
func Open(opts Options) (*File, error) {
	if opts.Registry == nil {
		return nil, errors.New("inlist: registry is required")
	}
	f := &File{
		path:     opts.Path,
		fs:       opts.Fs,
		registry: opts.Registry,
		logger:   opts.Logger,
	}
	if f.path == "" {
		f.path = DefaultName
	}
	if f.fs == nil {
		f.fs = afero.NewOsFs()
	}
	if f.logger == nil {
		f.logger = slog.Default()
	}

	if _, err := f.fs.Stat(f.path); err != nil {
		return nil, fmt.Errorf("opening inlist: %w", err)
	}
	return f, nil
}

// Path returns the inlist path.
func (f *File) Path() string { return f.path }

// Load reads and parses the current file contents.
func (f *File) Load() (*namelist.Document, error) {
	data, err := afero.ReadFile(f.fs, f.path)
	if err != nil {
		return nil, fmt.Errorf("reading inlist %s: %w", f.path, err)
	}
	doc, err := namelist.Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("parsing inlist %s: %w", f.path, err)
	}
	return doc, nil
}

// Get returns the value of name from the file, falling back to the default
// when the file does not set it.
func (f *File) Get(name string) (namelist.Value, error) {
	doc, err := f.Load()
	if err != nil {
		return namelist.Value{}, err
	}

	if a, ok := doc.Lookup(name); ok {
		v, err := namelist.Decode(a.Raw)
		if err != nil {
			return namelist.Value{}, fmt.Errorf("%s line %d: %w", f.path, a.Line, err)
		}
		return v, nil
	}

	res, err := f.registry.Resolve(name, namelist.Value{})
	if err != nil {
		return namelist.Value{}, err
	}
	if !res.Known() {
		return namelist.Value{}, &KeyNotFoundError{Name: name, Path: f.path}
	}
	return res.Value, nil
}

// Set replaces the value of an assignment already present in the file. Only
// the value text changes; every other byte of the file is kept.
func (f *File) Set(name string, v namelist.Value) error {
	before, after, err := f.render(name, v, false)
	if err != nil {
		return err
	}
	return f.commit(name, before, after)
}

// Insert adds an assignment for a parameter the file does not set yet. The
// new line goes at the end of the namelist group owning the parameter.
func (f *File) Insert(name string, v namelist.Value) error {
	before, after, err := f.render(name, v, true)
	if err != nil {
		return err
	}
	return f.commit(name, before, after)
}

// Upsert sets name, inserting it when the file does not contain it.
func (f *File) Upsert(name string, v namelist.Value) error {
	err := f.Set(name, v)
	if errors.Is(err, ErrNotInFile) {
		return f.Insert(name, v)
	}
	return err
}

// Preview returns the file text before and after setting name, without
// writing anything. With insert, absent parameters are added as by Insert.
func (f *File) Preview(name string, v namelist.Value, insert bool) (string, string, error) {
	return f.render(name, v, insert)
}

func (f *File) render(name string, v namelist.Value, insert bool) (string, string, error) {
	res, err := f.registry.Resolve(name, v)
	if err != nil {
		return "", "", err
	}
	encoded, err := namelist.Encode(v)
	if err != nil {
		return "", "", err
	}

	doc, err := f.Load()
	if err != nil {
		return "", "", err
	}

	a, found := doc.Lookup(name)
	switch {
	case found:
		if insert {
			return "", "", fmt.Errorf("%s already sets %s on line %d", f.path, name, a.Line)
		}
		return doc.Text(), doc.Replace(a, encoded), nil
	case !insert:
		return "", "", fmt.Errorf("%s: %w", name, ErrNotInFile)
	case !res.Known():
		return "", "", &KeyNotFoundError{Name: name, Path: f.path}
	}

	g, ok := doc.Group(res.Section)
	if !ok || g.Close < 0 {
		return "", "", fmt.Errorf("%s: &%s: %w", f.path, res.Section, ErrGroupNotFound)
	}
	indent := "    "
	if last, ok := doc.LastInGroup(res.Section); ok {
		indent = doc.Indent(last)
	}
	line := fmt.Sprintf("%s%s = %s", indent, name, encoded)
	return doc.Text(), doc.InsertLine(g, line), nil
}

func (f *File) commit(name, before, after string) error {
	if before == after {
		f.logger.Debug("inlist unchanged", "path", f.path, "parameter", name)
		return nil
	}
	if err := WriteAtomic(f.fs, f.path, []byte(after)); err != nil {
		return err
	}
	f.logger.Debug("inlist updated", "path", f.path, "parameter", name)
	return nil
}

// WriteAtomic replaces path with data without leaving a half-written inlist
// behind if the process dies mid-write.
func WriteAtomic(fs afero.Fs, path string, data []byte) error {
	return util.WriteFileAtomic(fs, path, data)
}

// Entry describes one parameter set by the file.
type Entry struct {
	Name    string
	Key     string
	Group   string
	Section string
	Value   namelist.Value
	Default namelist.Value
	Line    int
}

// Entries lists the effective assignments of the file in file order, each
// with the section and default it resolves to.
func (f *File) Entries() ([]Entry, error) {
	doc, err := f.Load()
	if err != nil {
		return nil, err
	}

	params := doc.Params()
	entries := make([]Entry, 0, params.Len())
	for _, key := range params.Keys() {
		a, _ := doc.Lookup(key)
		v, err := namelist.Decode(a.Raw)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", f.path, a.Line, err)
		}
		e := Entry{Name: a.Name, Key: key, Group: a.Group, Value: v, Line: a.Line}
		if res, err := f.registry.Resolve(key, namelist.Value{}); err == nil && res.Known() {
			e.Section = res.Section
			e.Default = res.Value
		}
		entries = append(entries, e)
	}
	return entries, nil
}
