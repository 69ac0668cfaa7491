package grading

import "strings"

// normalize trims surrounding whitespace, collapses inner runs of
// whitespace and casefolds, so "  New  York " matches "new york".
func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
