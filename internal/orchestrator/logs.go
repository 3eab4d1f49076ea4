package orchestrator

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/afero"

	"mesactl/internal/inlist"
	"mesactl/internal/namelist"
)

// CleanReport counts what CleanLogs removed.
type CleanReport struct {
	Images   int
	Profiles int
	Photos   int
}

// Total returns the number of files removed.
func (c CleanReport) Total() int {
	return c.Images + c.Profiles + c.Photos
}

// CleanLogs removes rendered images (png/*.png), log data (LOGS/*.data)
// and every photo. Missing directories are skipped.
func (r *Runner) CleanLogs() (CleanReport, error) {
	var report CleanReport
	var err error

	if report.Images, err = r.removeMatching(r.cfg.PngDir, "*.png"); err != nil {
		return report, err
	}
	if report.Profiles, err = r.removeMatching(r.cfg.LogsDir, "*.data"); err != nil {
		return report, err
	}
	if report.Photos, err = r.removeMatching(r.cfg.PhotosDir, "*"); err != nil {
		return report, err
	}

	r.logger.Info("cleaned logs",
		"images", report.Images,
		"profiles", report.Profiles,
		"photos", report.Photos)
	return report, nil
}

// removeMatching deletes the files directly in dir whose names match pattern.
func (r *Runner) removeMatching(dir, pattern string) (int, error) {
	full := r.path(dir)
	infos, err := afero.ReadDir(r.fs, full)
	if os.IsNotExist(err) {
		r.logger.Debug("nothing to clean", "dir", full)
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading %s: %w", full, err)
	}

	n := 0
	for _, info := range infos {
		if info.IsDir() {
			continue
		}
		if ok, _ := doublestar.Match(pattern, info.Name()); !ok {
			continue
		}
		if err := r.fs.Remove(filepath.Join(full, info.Name())); err != nil {
			return n, fmt.Errorf("removing %s: %w", info.Name(), err)
		}
		n++
	}
	return n, nil
}

// CopyLogs copies the LOGS directory into dest and moves the terminal
// profile (filename_for_profile_when_terminate) there as well. An empty
// profile name is read from the active inlist.
func (r *Runner) CopyLogs(dest, profile string) error {
	if dest == "" {
		return fmt.Errorf("copy logs: destination required")
	}
	if profile == "" && r.reg != nil {
		if f, err := r.openActive(); err == nil {
			if v, err := f.Get("filename_for_profile_when_terminate"); err == nil {
				profile = namelistText(v)
			}
		}
	}

	src := r.path(r.cfg.LogsDir)
	dst := r.path(dest)
	if _, err := r.fs.Stat(src); os.IsNotExist(err) {
		r.logger.Warn("no logs to copy", "dir", src)
		if err := r.fs.MkdirAll(dst, 0755); err != nil {
			return err
		}
	} else if err := copyTree(r.fs, src, dst); err != nil {
		return fmt.Errorf("copying %s to %s: %w", src, dst, err)
	}

	if profile != "" {
		from := r.path(profile)
		if _, err := r.fs.Stat(from); err == nil {
			if err := r.fs.Rename(from, filepath.Join(dst, filepath.Base(profile))); err != nil {
				return fmt.Errorf("moving %s: %w", profile, err)
			}
		}
	}

	r.logger.Info("copied logs", "from", src, "to", dst, "profile", profile)
	return nil
}

// copyTree copies the directory src into dst, merging with existing files.
func copyTree(fs afero.Fs, src, dst string) error {
	return afero.Walk(fs, src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if info.IsDir() {
			return fs.MkdirAll(target, info.Mode().Perm()|0700)
		}
		return copyFile(fs, path, target)
	})
}

// copyFile copies one file, keeping its permission bits.
func copyFile(fs afero.Fs, src, dst string) error {
	in, err := fs.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := fs.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// LatestProfile returns the newest profile in the log directory named by
// the active inlist (log_directory, profile_data_prefix).
func (r *Runner) LatestProfile() (string, error) {
	logDir, prefix := r.logSettings()

	path, err := r.newest(logDir, prefix+"*.data", prefix)
	if err != nil {
		return "", err
	}
	if path == "" {
		return "", fmt.Errorf("no %s*.data profiles in %s", prefix, r.path(logDir))
	}
	return path, nil
}

// logSettings returns log_directory and profile_data_prefix from the active
// inlist, or LOGS_DIR and "profile" when it cannot be read.
func (r *Runner) logSettings() (dir, prefix string) {
	dir, prefix = r.cfg.LogsDir, "profile"
	if r.reg == nil {
		return dir, prefix
	}
	f, err := r.openActive()
	if err != nil {
		return dir, prefix
	}
	return textParam(f, "log_directory", dir), textParam(f, "profile_data_prefix", prefix)
}

// LatestPhoto returns the name of the most recently written photo.
func (r *Runner) LatestPhoto() (string, error) {
	path, err := r.newest(r.cfg.PhotosDir, "*", "")
	if err != nil {
		return "", err
	}
	if path == "" {
		return "", fmt.Errorf("%w in %s", ErrNoPhoto, r.path(r.cfg.PhotosDir))
	}
	return filepath.Base(path), nil
}

// newest returns the most recently modified file in dir matching pattern.
// Ties go to the higher number following prefix, so profile10.data beats
// profile9.data.
func (r *Runner) newest(dir, pattern, prefix string) (string, error) {
	full := r.path(dir)
	infos, err := afero.ReadDir(r.fs, full)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", full, err)
	}

	type candidate struct {
		name string
		mod  time.Time
		num  int
	}
	var found []candidate
	for _, info := range infos {
		if info.IsDir() || strings.HasPrefix(info.Name(), ".") {
			continue
		}
		if ok, _ := doublestar.Match(pattern, info.Name()); !ok {
			continue
		}
		found = append(found, candidate{
			name: info.Name(),
			mod:  info.ModTime(),
			num:  trailingNumber(info.Name(), prefix),
		})
	}
	if len(found) == 0 {
		return "", nil
	}

	sort.Slice(found, func(i, j int) bool {
		if !found[i].mod.Equal(found[j].mod) {
			return found[i].mod.After(found[j].mod)
		}
		return found[i].num > found[j].num
	})
	return filepath.Join(full, found[0].name), nil
}

// trailingNumber parses the digits following prefix in name, or -1.
func trailingNumber(name, prefix string) int {
	rest := strings.TrimPrefix(name, prefix)
	end := 0
	for end < len(rest) && rest[end] >= '0' && rest[end] <= '9' {
		end++
	}
	n, err := strconv.Atoi(rest[:end])
	if err != nil {
		return -1
	}
	return n
}

func textParam(f *inlist.File, name, fallback string) string {
	v, err := f.Get(name)
	if err != nil {
		return fallback
	}
	if s, ok := v.Text(); ok && s != "" {
		return s
	}
	return fallback
}

// namelistText returns the text of v, or "" for other kinds.
func namelistText(v namelist.Value) string {
	s, _ := v.Text()
	return s
}
