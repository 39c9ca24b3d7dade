// Package ui provides the visual styling for the hivemind interactive console.
package ui

import (
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	// Light Mode Colors (Default)
	LightBackground = lipgloss.Color("#faf7f0")
	LightForeground = lipgloss.Color("#2b2118")
	LightPrimary    = lipgloss.Color("#2b2118")
	LightAccent     = lipgloss.Color("#e8a117") // Honey amber
	LightMuted      = lipgloss.Color("#b3a894")
	LightBorder     = lipgloss.Color("#d9d0bf")

	// Dark Mode Colors
	DarkBackground = lipgloss.Color("#1c1917")
	DarkForeground = lipgloss.Color("#f2ede3")
	DarkPrimary    = lipgloss.Color("#ffc53d") // Honey amber (flipped)
	DarkAccent     = lipgloss.Color("#e8a117")
	DarkMuted      = lipgloss.Color("#6b6257")
	DarkBorder     = lipgloss.Color("#3c362f")

	// Semantic Colors (same in both modes)
	Destructive = lipgloss.Color("#e53935")
	Success     = lipgloss.Color("#8BC34A")
	Warning     = lipgloss.Color("#FFC107")
	Info        = lipgloss.Color("#2196F3")
)

// Theme holds the current color scheme
type Theme struct {
	Background lipgloss.Color
	Foreground lipgloss.Color
	Primary    lipgloss.Color
	Accent     lipgloss.Color
	Muted      lipgloss.Color
	Border     lipgloss.Color
	IsDark     bool
}

// LightTheme returns the light mode theme
func LightTheme() Theme {
	return Theme{
		Background: LightBackground,
		Foreground: LightForeground,
		Primary:    LightPrimary,
		Accent:     LightAccent,
		Muted:      LightMuted,
		Border:     LightBorder,
		IsDark:     false,
	}
}

// DarkTheme returns the dark mode theme
func DarkTheme() Theme {
	return Theme{
		Background: DarkBackground,
		Foreground: DarkForeground,
		Primary:    DarkPrimary,
		Accent:     DarkAccent,
		Muted:      DarkMuted,
		Border:     DarkBorder,
		IsDark:     true,
	}
}

// DetectTheme picks dark or light from the environment. HIVEMIND_THEME wins;
// otherwise COLORFGBG's background index decides; the fallback is dark, the
// common case for terminals.
func DetectTheme() Theme {
	switch strings.ToLower(os.Getenv("HIVEMIND_THEME")) {
	case "light":
		return LightTheme()
	case "dark":
		return DarkTheme()
	}

	colorTerm := os.Getenv("COLORFGBG")
	if parts := strings.Split(colorTerm, ";"); len(parts) == 2 {
		if bgIdx, err := strconv.Atoi(parts[1]); err == nil {
			if bgIdx >= 7 && bgIdx != 8 {
				return LightTheme()
			}
		}
	}
	return DarkTheme()
}

// Styles bundles every lipgloss style the console renders with
type Styles struct {
	Theme Theme

	// Layout
	Header  lipgloss.Style
	Footer  lipgloss.Style
	Content lipgloss.Style

	// Text
	Title lipgloss.Style
	Muted lipgloss.Style
	Bold  lipgloss.Style

	// Interactive
	Prompt    lipgloss.Style
	UserInput lipgloss.Style

	// Status
	Success lipgloss.Style
	Error   lipgloss.Style
	Warning lipgloss.Style
	Info    lipgloss.Style

	// Components
	Spinner lipgloss.Style
	Divider lipgloss.Style
	Badge   lipgloss.Style
}

// NewStyles creates a new Styles instance with the given theme
func NewStyles(theme Theme) Styles {
	return Styles{
		Theme: theme,

		Header: lipgloss.NewStyle().
			Bold(true).
			Foreground(theme.Background).
			Background(theme.Accent).
			Padding(0, 1),
		Footer: lipgloss.NewStyle().
			Foreground(theme.Muted),
		Content: lipgloss.NewStyle().
			Padding(0, 1),

		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(theme.Accent),
		Muted: lipgloss.NewStyle().
			Foreground(theme.Muted),
		Bold: lipgloss.NewStyle().
			Bold(true),

		Prompt: lipgloss.NewStyle().
			Foreground(theme.Accent),
		UserInput: lipgloss.NewStyle().
			Foreground(theme.Foreground),

		Success: lipgloss.NewStyle().
			Foreground(Success),
		Error: lipgloss.NewStyle().
			Foreground(Destructive),
		Warning: lipgloss.NewStyle().
			Foreground(Warning),
		Info: lipgloss.NewStyle().
			Foreground(Info),

		Spinner: lipgloss.NewStyle().
			Foreground(theme.Accent),
		Divider: lipgloss.NewStyle().
			Foreground(theme.Border),
		Badge: lipgloss.NewStyle().
			Foreground(theme.Background).
			Background(theme.Primary).
			Padding(0, 1),
	}
}

// DefaultStyles returns styles for the detected theme
func DefaultStyles() Styles {
	return NewStyles(DetectTheme())
}

// RenderDivider draws a horizontal rule of the given width
func (s Styles) RenderDivider(width int) string {
	if width <= 0 {
		width = 80
	}
	return s.Divider.Render(strings.Repeat("─", width))
}
