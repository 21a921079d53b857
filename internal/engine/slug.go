package engine

import (
	"regexp"
	"strings"
)

var (
	slugDisallowed = regexp.MustCompile(`[^a-z0-9\s-]`)
	slugWhitespace = regexp.MustCompile(`\s+`)
	slugHyphenRuns = regexp.MustCompile(`-+`)
)

// Slugify derives a repository name from a project name. It must be pure and
// deterministic: the architecture and techstack handlers recompute it later
// to find the repository the github task created.
func Slugify(name string) string {
	s := strings.ToLower(name)
	s = slugDisallowed.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)
	s = slugWhitespace.ReplaceAllString(s, "-")
	s = slugHyphenRuns.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if len(s) > 100 {
		s = strings.Trim(s[:100], "-")
	}
	return s
}
