package utils

import "github.com/charmbracelet/x/ansi"

// Truncate shortens s to at most maxLen terminal cells, appending an ellipsis
// when anything was cut. Escape sequences take no width and wide runes are
// never split.
func Truncate(s string, maxLen int) string {
	if ansi.StringWidth(s) <= maxLen {
		return s
	}
	return ansi.Truncate(s, maxLen, "") + "..."
}

// FirstLine returns s up to its first line break.
func FirstLine(s string) string {
	for i, r := range s {
		if r == '\n' || r == '\r' {
			return s[:i]
		}
	}
	return s
}
