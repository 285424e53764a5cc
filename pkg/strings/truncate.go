// Package strings holds small text helpers shared by the CLI and the log
// views.
package strings

import (
	"strings"
)

// MinTruncateLen is the smallest width Truncate honours; it leaves room for
// one character plus "...".
const MinTruncateLen = 4

// Truncate flattens s onto one line and shortens it to at most maxLen runes,
// ending with "..." when cut. Runs of whitespace, newlines included, become
// single spaces.
func Truncate(s string, maxLen int) string {
	if maxLen < MinTruncateLen {
		maxLen = MinTruncateLen
	}
	s = strings.Join(strings.Fields(s), " ")

	runes := []rune(s)
	if len(runes) > maxLen {
		return string(runes[:maxLen-3]) + "..."
	}
	return s
}

// LastLines returns the final n lines of lines; n <= 0 or n >= len(lines)
// returns all of them.
func LastLines(lines []string, n int) []string {
	if n <= 0 || n >= len(lines) {
		return lines
	}
	return lines[len(lines)-n:]
}
