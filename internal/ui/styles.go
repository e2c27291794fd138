// Package ui renders CLI output.
package ui

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

func init() {
	if !IsTerminal() {
		lipgloss.SetColorProfile(termenv.Ascii)
		return
	}
	lipgloss.SetColorProfile(termenv.EnvColorProfile())
}

// IsTerminal reports whether stdout is a terminal.
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// IsInteractive reports whether both stdin and stdout are terminals.
func IsInteractive() bool {
	return IsTerminal() && term.IsTerminal(int(os.Stdin.Fd()))
}

var (
	ColorAccent = lipgloss.AdaptiveColor{Light: "#D9480F", Dark: "#FF922B"}
	ColorPass   = lipgloss.AdaptiveColor{Light: "#2B8A3E", Dark: "#69DB7C"}
	ColorWarn   = lipgloss.AdaptiveColor{Light: "#E67700", Dark: "#FFD43B"}
	ColorFail   = lipgloss.AdaptiveColor{Light: "#C92A2A", Dark: "#FF6B6B"}
	ColorMuted  = lipgloss.AdaptiveColor{Light: "#868E96", Dark: "#868E96"}

	AccentStyle = lipgloss.NewStyle().Foreground(ColorAccent).Bold(true)
	PassStyle   = lipgloss.NewStyle().Foreground(ColorPass)
	WarnStyle   = lipgloss.NewStyle().Foreground(ColorWarn)
	FailStyle   = lipgloss.NewStyle().Foreground(ColorFail).Bold(true)
	MutedStyle  = lipgloss.NewStyle().Foreground(ColorMuted)

	BadgeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#1A1A1A")).
			Background(ColorAccent).
			Padding(0, 1).
			Bold(true)
)

// RenderAccent renders s as a heading.
func RenderAccent(s string) string { return AccentStyle.Render(s) }

// RenderPass renders s as a success.
func RenderPass(s string) string { return PassStyle.Render(s) }

// RenderWarn renders s as a warning.
func RenderWarn(s string) string { return WarnStyle.Render(s) }

// RenderFail renders s as an error.
func RenderFail(s string) string { return FailStyle.Render(s) }

// RenderMuted renders secondary text.
func RenderMuted(s string) string { return MutedStyle.Render(s) }

// RenderBadge renders s as an inline badge.
func RenderBadge(s string) string { return BadgeStyle.Render(s) }

// TierIcon returns the medal glyph for an achievement tier.
func TierIcon(tier string) string {
	switch tier {
	case "gold":
		return "🥇"
	case "silver":
		return "🥈"
	case "bronze":
		return "🥉"
	default:
		return "🏅"
	}
}
