package inlist

import (
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/afero"
)

// listPattern matches candidate inlist file names.
const listPattern = DefaultName + "*"

// List returns the inlists in dir that can be run or edited: files whose
// name starts with "inlist", other than the active inlist itself and the
// pgstar inlists. Names are sorted.
func List(fs afero.Fs, dir string) ([]string, error) {
	infos, err := afero.ReadDir(fs, dir)
	if err != nil {
		return nil, fmt.Errorf("listing inlists in %s: %w", dir, err)
	}

	var names []string
	for _, info := range infos {
		name := info.Name()
		if info.IsDir() || name == DefaultName || strings.Contains(name, "pgstar") {
			continue
		}
		if ok, _ := doublestar.Match(listPattern, name); ok {
			names = append(names, name)
		}
	}
	return names, nil
}
