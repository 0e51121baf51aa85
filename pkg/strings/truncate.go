// Package strings holds text helpers for terminal and tool output.
package strings

import (
	"strings"
)

// DescriptionWidth is the column width used for tool descriptions.
const DescriptionWidth = 60

// ellipsis marks text that was cut.
const ellipsis = "..."

// minWidth leaves room for one character and the ellipsis.
const minWidth = len(ellipsis) + 1

// SingleLine collapses every run of whitespace, newlines included, into a
// single space.
func SingleLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Truncate returns s on a single line, cut to at most width runes. Cut text
// ends in "...". Widths below 4 are treated as 4.
func Truncate(s string, width int) string {
	width = max(width, minWidth)

	s = SingleLine(s)
	runes := []rune(s)
	if len(runes) <= width {
		return s
	}
	return string(runes[:width-len(ellipsis)]) + ellipsis
}

// Excerpt returns up to radius runes on each side of the first
// case-insensitive occurrence of query in s. Cut ends are marked with
// "...". When query does not occur, the excerpt is the start of s.
func Excerpt(s, query string, radius int) string {
	runes := []rune(s)
	lower := []rune(strings.ToLower(s))
	needle := []rune(strings.ToLower(query))

	// Lower-casing can change the rune count for a few scripts; positions
	// would no longer line up, so fall back to the head of s.
	idx := -1
	if len(lower) == len(runes) {
		idx = indexRunes(lower, needle)
	}
	if idx < 0 {
		if len(runes) <= 2*radius {
			return s
		}
		return string(runes[:2*radius]) + ellipsis
	}

	start := max(0, idx-radius)
	end := min(len(runes), idx+len(needle)+radius)

	var b strings.Builder
	if start > 0 {
		b.WriteString(ellipsis)
	}
	b.WriteString(string(runes[start:end]))
	if end < len(runes) {
		b.WriteString(ellipsis)
	}
	return b.String()
}

func indexRunes(haystack, needle []rune) int {
	if len(needle) == 0 {
		return 0
	}
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if string(haystack[i:i+len(needle)]) == string(needle) {
			return i
		}
	}
	return -1
}
