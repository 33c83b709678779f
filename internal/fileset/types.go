package fileset

import (
	"fmt"
	"regexp"
	"strings"
)

// TypePattern names a recognized file type and the regex identifying it.
// Patterns are evaluated in declared order and the first match wins, so more
// specific patterns must be listed before general ones.
type TypePattern struct {
	Name    string
	Pattern *regexp.Regexp
}

// DefaultTypes returns the fallback type list: a single type matching
// every filename.
func DefaultTypes() []TypePattern {
	return []TypePattern{
		{Name: "DEFAULT", Pattern: regexp.MustCompile(`.*`)},
	}
}

// Classify returns the name of the first pattern whose regex matches
// filename (substring match). The second return value reports whether any
// pattern matched.
func Classify(filename string, patterns []TypePattern) (string, bool) {
	for _, p := range patterns {
		if p.Pattern.MatchString(filename) {
			return p.Name, true
		}
	}
	return "", false
}

// ParsePatterns builds an ordered type list from NAME=REGEX specs, as
// passed on the command line. Order of the specs is preserved.
func ParsePatterns(specs []string) ([]TypePattern, error) {
	patterns := make([]TypePattern, 0, len(specs))
	for _, spec := range specs {
		name, expr, found := strings.Cut(spec, "=")
		if !found || name == "" {
			return nil, fmt.Errorf("invalid file type spec %q, expected NAME=REGEX", spec)
		}
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("invalid regex for file type %q: %w", name, err)
		}
		patterns = append(patterns, TypePattern{Name: name, Pattern: re})
	}
	return patterns, nil
}
