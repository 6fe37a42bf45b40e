// Package util holds small text helpers shared by the command-line output.
package util

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
)

const ellipsis = "…"

// Truncate shortens s to at most width terminal columns, ending with an
// ellipsis when anything was cut. Escape sequences in s are preserved and do
// not count toward the width.
func Truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	if lipgloss.Width(s) <= width {
		return s
	}
	if width == 1 {
		return ellipsis
	}
	return ansi.Truncate(s, width, ellipsis)
}

// ShortID returns the first eight characters of a step or run id.
func ShortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
