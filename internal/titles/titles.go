package titles

import (
	"regexp"
	"strings"
)

var (
	tagRE        = regexp.MustCompile(`[\[{(].*?[\]})]`)
	underscoreRE = regexp.MustCompile(`_+`)
	multiSpaceRE = regexp.MustCompile(`\s{2,}`)
)

// Clean strips bracketed release tags like "[EPUB]" or "(2019)" and
// collapses underscore/space runs to single spaces.
func Clean(s string) string {
	s = tagRE.ReplaceAllString(s, "")
	s = underscoreRE.ReplaceAllString(s, " ")
	s = multiSpaceRE.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Normalize is the comparison form used when matching a user's selection
// against catalog entries.
func Normalize(s string) string {
	return strings.ToLower(Clean(s))
}

// MatchesExt reports whether name ends with one of exts, case-insensitively.
func MatchesExt(name string, exts []string) bool {
	lower := strings.ToLower(name)
	for _, ext := range exts {
		if strings.HasSuffix(lower, strings.ToLower(ext)) {
			return true
		}
	}
	return false
}

// StripExt removes the matching extension from name, if any.
func StripExt(name string, exts []string) string {
	lower := strings.ToLower(name)
	for _, ext := range exts {
		if strings.HasSuffix(lower, strings.ToLower(ext)) {
			return name[:len(name)-len(ext)]
		}
	}
	return name
}
