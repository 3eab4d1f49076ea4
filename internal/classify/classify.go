// Package classify sorts the output of failed star, re and mk runs into
// failure categories with a hint on what to look at.
package classify

import (
	"fmt"
	"regexp"
	"strings"
)

// Category represents a failure category.
type Category string

const (
	CategoryConvergence Category = "convergence"
	CategoryNumerical   Category = "numerical"
	CategoryInlist      Category = "inlist"
	CategoryEnvironment Category = "environment"
	CategoryBuild       Category = "build"
	CategoryUnknown     Category = "unknown"
)

// rule ties a compiled pattern to the category it votes for.
type rule struct {
	re  *regexp.Regexp
	cat Category
}

// Classifier scores output against per-category patterns.
type Classifier struct {
	rules []rule
}

// DefaultPatterns are the built-in patterns, grouped by category. Group order
// decides ties.
var DefaultPatterns = []struct {
	Category Category
	Patterns []string
}{
	{CategoryConvergence, []string{
		`(?i)cannot find acceptable model`,
		`(?i)terminated evolution: hydro_failed`,
		`(?i)dt < min_timestep_limit`,
		`(?i)timestep limit`,
		`(?i)max_number_retries`,
		`(?i)max_model_number`,
		`(?i)solver.*failed`,
		`(?i)\bretry\b`,
		`(?i)\bbackup\b`,
	}},
	{CategoryNumerical, []string{
		`\bNaN\b`,
		`(?i)\binfinity\b`,
		`(?i)floating[- ]point exception`,
		`(?i)SIGFPE`,
		`(?i)bad_neg_xa|negative abundance`,
		`(?i)Program received signal`,
	}},
	{CategoryInlist, []string{
		`(?i)cannot match namelist object name`,
		`(?i)failed (in|to) read.*(inlist|namelist)`,
		`(?i)error reading namelist`,
		`(?i)bad value during .* read`,
		`(?i)failed in read_star_job|failed in read_controls`,
		`(?i)namelist read error`,
	}},
	{CategoryEnvironment, []string{
		`(?i)MESA_DIR`,
		`(?i)no such file or directory`,
		`(?i)permission denied`,
		`(?i)command not found`,
		`(?i)cannot open file`,
		`(?i)failed to open`,
		`(?i)out of memory|cannot allocate memory`,
		`(?i)disk quota exceeded|no space left on device`,
		`(?im)^killed$`,
	}},
	{CategoryBuild, []string{
		`make(\[\d+\])?: \*\*\*`,
		`(?i)compilation terminated`,
		`(?m)^Error: `,
		`(?i)undefined reference to`,
		`(?i)gfortran: error`,
		`(?i)fatal error:`,
	}},
}

// NewClassifier returns a classifier loaded with DefaultPatterns.
func NewClassifier() *Classifier {
	c := &Classifier{}
	for _, group := range DefaultPatterns {
		for _, p := range group.Patterns {
			c.rules = append(c.rules, rule{regexp.MustCompile(p), group.Category})
		}
	}
	return c
}

// AddPattern appends a pattern for category.
func (c *Classifier) AddPattern(pattern string, category Category) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return fmt.Errorf("pattern %q: %w", pattern, err)
	}
	c.rules = append(c.rules, rule{re, category})
	return nil
}

// AddPatternsFromString adds patterns written as "regex:category,...".
// The category follows the last colon, so a regex may contain colons.
// Entries without a category are ignored.
func (c *Classifier) AddPatternsFromString(s string) error {
	for _, entry := range strings.Split(s, ",") {
		i := strings.LastIndex(entry, ":")
		if i < 0 {
			continue
		}
		pattern := strings.TrimSpace(entry[:i])
		if pattern == "" {
			continue
		}
		if err := c.AddPattern(pattern, Category(strings.TrimSpace(entry[i+1:]))); err != nil {
			return err
		}
	}
	return nil
}

// Classify returns the category whose patterns match output most often.
func (c *Classifier) Classify(output string) Category {
	cat, _ := c.ClassifyWithMatches(output)
	return cat
}

// ClassifyWithMatches is Classify plus the matching patterns. Ties go to the
// category that matched first.
func (c *Classifier) ClassifyWithMatches(output string) (Category, []string) {
	votes := map[Category]int{}
	var seen []Category
	var matched []string
	for _, r := range c.rules {
		if !r.re.MatchString(output) {
			continue
		}
		if votes[r.cat] == 0 {
			seen = append(seen, r.cat)
		}
		votes[r.cat]++
		matched = append(matched, r.re.String())
	}

	best := CategoryUnknown
	for _, cat := range seen {
		if votes[cat] > votes[best] {
			best = cat
		}
	}
	return best, matched
}

// errorLine matches lines that read like an error report.
var errorLine = regexp.MustCompile(`(?i)^(error|fatal|failed|stop\b|terminated evolution|Program received signal)|failed:`)

// ExtractErrorMessage attempts to extract a concise error message from output.
func ExtractErrorMessage(output string, maxLen int) string {
	lines := strings.Split(output, "\n")

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" && errorLine.MatchString(line) {
			return truncate(line, maxLen)
		}
	}

	// Fall back to last non-empty line
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return truncate(line, maxLen)
		}
	}

	return "no output"
}

func truncate(s string, maxLen int) string {
	if maxLen > 0 && len(s) > maxLen {
		return s[:maxLen] + "..."
	}
	return s
}

// Suggestions returns a hint for a category.
func Suggestions(category Category) string {
	switch category {
	case CategoryConvergence:
		return "Try: loosen mesh_delta_coeff or varcontrol_target, raise max_number_retries, or check the last photo"
	case CategoryNumerical:
		return "Try: restart from an earlier photo with smaller timesteps and check the abundances near the failure"
	case CategoryInlist:
		return "Try: check parameter names and values with 'mesactl show' and 'mesactl defaults'"
	case CategoryEnvironment:
		return "Try: check MESA_DIR, MESASDK_ROOT, file paths and free disk space"
	case CategoryBuild:
		return "Try: run ./clean then ./mk and read the first compiler error"
	default:
		return "Try: read the end of the run log"
	}
}

// IsRetryable reports whether restarting from a photo may get past the failure.
func IsRetryable(category Category) bool {
	switch category {
	case CategoryConvergence, CategoryNumerical:
		return true
	default:
		return false
	}
}
