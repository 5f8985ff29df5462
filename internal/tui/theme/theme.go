// Package theme provides the Catppuccin colours used by the watch view.
package theme

import (
	"github.com/charmbracelet/lipgloss"
)

// Theme defines a color scheme for the TUI.
type Theme struct {
	Mauve  lipgloss.Color // Titles
	Blue   lipgloss.Color // Labels
	Green  lipgloss.Color // Running, off
	Yellow lipgloss.Color // Unresponsive
	Red    lipgloss.Color // Errors, Caps-Lock on

	Text    lipgloss.Color
	Subtext lipgloss.Color
	Surface lipgloss.Color

	Name   string
	IsDark bool
}

// FlavorName represents a Catppuccin flavor.
type FlavorName string

const (
	FlavorMocha FlavorName = "mocha"
	FlavorLatte FlavorName = "latte"
)

// Current holds the active theme.
var Current = Mocha()

// SetTheme sets the current theme by flavor name. Unknown names select Mocha.
func SetTheme(flavor FlavorName) {
	switch flavor {
	case FlavorLatte:
		Current = Latte()
	default:
		Current = Mocha()
	}
}

// Mocha returns the Catppuccin Mocha theme (dark).
func Mocha() *Theme {
	return &Theme{
		Name:   "Catppuccin Mocha",
		IsDark: true,

		Mauve:  lipgloss.Color("#cba6f7"),
		Blue:   lipgloss.Color("#89b4fa"),
		Green:  lipgloss.Color("#a6e3a1"),
		Yellow: lipgloss.Color("#f9e2af"),
		Red:    lipgloss.Color("#f38ba8"),

		Text:    lipgloss.Color("#cdd6f4"),
		Subtext: lipgloss.Color("#a6adc8"),
		Surface: lipgloss.Color("#313244"),
	}
}

// Latte returns the Catppuccin Latte theme (light).
func Latte() *Theme {
	return &Theme{
		Name:   "Catppuccin Latte",
		IsDark: false,

		Mauve:  lipgloss.Color("#8839ef"),
		Blue:   lipgloss.Color("#1e66f5"),
		Green:  lipgloss.Color("#40a02b"),
		Yellow: lipgloss.Color("#df8e1d"),
		Red:    lipgloss.Color("#d20f39"),

		Text:    lipgloss.Color("#4c4f69"),
		Subtext: lipgloss.Color("#6c6f85"),
		Surface: lipgloss.Color("#ccd0da"),
	}
}

// IndicatorColor returns the colour for a Caps-Lock state.
func (t *Theme) IndicatorColor(on bool) lipgloss.Color {
	if on {
		return t.Red
	}
	return t.Green
}

// DaemonColor returns the colour for a daemon status string.
func (t *Theme) DaemonColor(status string) lipgloss.Color {
	switch status {
	case "running":
		return t.Green
	case "unresponsive":
		return t.Yellow
	case "not running":
		return t.Red
	default:
		return t.Text
	}
}
