package cmd

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/Iron-Ham/questline/internal/logging"
	"github.com/Iron-Ham/questline/internal/quest"
)

var (
	primaryColor = lipgloss.Color("#A78BFA")
	greenColor   = lipgloss.Color("#10B981")
	amberColor   = lipgloss.Color("#F59E0B")
	redColor     = lipgloss.Color("#F87171")
	blueColor    = lipgloss.Color("#60A5FA")
	mutedColor   = lipgloss.Color("#9CA3AF")
	borderColor  = lipgloss.Color("#6B7280")

	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(primaryColor)
	mutedStyle = lipgloss.NewStyle().Foreground(mutedColor)
	okStyle    = lipgloss.NewStyle().Foreground(greenColor)
	warnStyle  = lipgloss.NewStyle().Foreground(amberColor)
	errStyle   = lipgloss.NewStyle().Foreground(redColor)
	headStyle  = lipgloss.NewStyle().Bold(true).Foreground(mutedColor)

	summaryBox = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(borderColor).
			Padding(0, 1)
)

// levelStyle colors a log line by level.
func levelStyle(level string) lipgloss.Style {
	switch strings.ToUpper(level) {
	case logging.LevelError:
		return errStyle
	case logging.LevelWarn:
		return warnStyle
	case logging.LevelDebug:
		return mutedStyle
	default:
		return lipgloss.NewStyle()
	}
}

// statusStyle colors a step status.
func statusStyle(s quest.StepStatus) lipgloss.Style {
	switch s {
	case quest.StepComplete:
		return okStyle
	case quest.StepInProgress:
		return lipgloss.NewStyle().Foreground(blueColor)
	case quest.StepPartiallyComplete, quest.StepBlocked:
		return warnStyle
	case quest.StepFailed:
		return errStyle
	default:
		return mutedStyle
	}
}

// statusMarker is the single-rune status column of the status table.
func statusMarker(s quest.StepStatus, ready bool) string {
	switch {
	case s == quest.StepComplete:
		return okStyle.Render("✓")
	case s == quest.StepFailed:
		return errStyle.Render("✗")
	case s == quest.StepInProgress:
		return statusStyle(s).Render("●")
	case s == quest.StepBlocked:
		return warnStyle.Render("!")
	case ready:
		return titleStyle.Render("▶")
	default:
		return mutedStyle.Render("·")
	}
}
