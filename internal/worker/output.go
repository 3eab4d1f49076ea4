package worker

import (
	"regexp"
	"strconv"
	"strings"
)

// Patterns for the status lines star prints to the terminal
var (
	terminationPattern = regexp.MustCompile(`(?m)^\s*termination code:\s*(\S+)`)
	stopPattern        = regexp.MustCompile(`(?m)^\s*stop because\s+(.+?)\s*$`)
	savePattern        = regexp.MustCompile(`(?m)^\s*save\s+(\S+)\s+for model\s+(\d+)`)
)

// ParseOutput extracts structured data from star output.
func ParseOutput(output string) *Result {
	result := &Result{
		Output: output,
	}

	if matches := terminationPattern.FindAllStringSubmatch(output, -1); len(matches) > 0 {
		result.Termination = matches[len(matches)-1][1]
	}

	if matches := stopPattern.FindAllStringSubmatch(output, -1); len(matches) > 0 {
		result.StopReason = matches[len(matches)-1][1]
	}

	for _, match := range savePattern.FindAllStringSubmatch(output, -1) {
		file := match[1]
		if model, err := strconv.Atoi(match[2]); err == nil && model > result.LastModel {
			result.LastModel = model
		}
		switch {
		case strings.HasSuffix(file, ".data"):
			result.Profiles = append(result.Profiles, file)
		case strings.Contains(file, "photo"):
			result.Photos = append(result.Photos, file)
		}
	}

	return result
}

// ExtractTermination extracts just the termination code from output.
func ExtractTermination(output string) string {
	if matches := terminationPattern.FindAllStringSubmatch(output, -1); len(matches) > 0 {
		return matches[len(matches)-1][1]
	}
	return ""
}
