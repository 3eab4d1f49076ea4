// Package util provides shared utilities for mesactl.
package util

import (
	"regexp"
	"strings"
	"time"
)

var (
	nonSlug   = regexp.MustCompile(`[^a-z0-9._]+`)
	dashes    = regexp.MustCompile(`-+`)
	stampForm = "20060102-150405"
)

// Slugify converts a string to a file-name-friendly slug.
// It lowercases, replaces runs of other characters with dashes, and trims
// leading/trailing dashes. Dots and underscores are kept since inlist and
// model names use them.
func Slugify(s string, maxLen int) string {
	slug := strings.ToLower(s)
	slug = nonSlug.ReplaceAllString(slug, "-")
	slug = dashes.ReplaceAllString(slug, "-")
	slug = strings.Trim(slug, "-")

	if maxLen > 0 && len(slug) > maxLen {
		slug = slug[:maxLen]
		slug = strings.TrimSuffix(slug, "-")
	}

	return slug
}

// ArchiveName returns a directory name for archiving the logs of a run of
// inlist started at t, e.g. "LOGS_inlist_1m_20261019-153000".
func ArchiveName(logsDir, inlist string, t time.Time) string {
	name := logsDir
	if slug := Slugify(inlist, 48); slug != "" {
		name += "_" + slug
	}
	return name + "_" + t.Format(stampForm)
}
