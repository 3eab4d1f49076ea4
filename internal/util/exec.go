package util

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// IsExecutable reports whether path is a regular file with an execute bit.
func IsExecutable(fs afero.Fs, path string) bool {
	info, err := fs.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return false
	}
	return info.Mode().Perm()&0111 != 0
}

// MesaVersion returns the release recorded in data/version_number under
// root, or "unknown".
func MesaVersion(fs afero.Fs, root string) string {
	if root == "" {
		return "unknown"
	}
	data, err := afero.ReadFile(fs, filepath.Join(root, "data", "version_number"))
	if err != nil {
		return "unknown"
	}
	if v := strings.TrimSpace(string(data)); v != "" {
		return v
	}
	return "unknown"
}

// RemoveFile removes path if it is a regular file. Missing files are not an
// error.
func RemoveFile(fs afero.Fs, path string) error {
	info, err := fs.Stat(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if info.IsDir() {
		return nil
	}
	return fs.Remove(path)
}
