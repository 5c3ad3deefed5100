package tui

import "github.com/charmbracelet/lipgloss"

// Color palette, lifted from the same codeNERD brand guidelines the
// rest of this project's tooling uses.
var (
	colorBackground = lipgloss.Color("#141d2b")
	colorForeground = lipgloss.Color("#f2f2f2")
	colorPrimary    = lipgloss.Color("#8BC34A")
	colorMuted      = lipgloss.Color("#2a3850")
	colorBorder     = lipgloss.Color("#2a3850")

	colorGood = lipgloss.Color("#8BC34A")
	colorBad  = lipgloss.Color("#e53935")
	colorWarn = lipgloss.Color("#FFC107")
)

// Styles holds the dashboard's styled components.
type Styles struct {
	App     lipgloss.Style
	Header  lipgloss.Style
	Footer  lipgloss.Style
	Content lipgloss.Style

	Title lipgloss.Style
	Body  lipgloss.Style
	Muted lipgloss.Style
	Bold  lipgloss.Style

	Good lipgloss.Style
	Bad  lipgloss.Style
	Warn lipgloss.Style

	Divider lipgloss.Style
	Inspect lipgloss.Style
}

// NewStyles builds the dashboard's default (dark) style set.
func NewStyles() Styles {
	return Styles{
		App: lipgloss.NewStyle().
			Background(colorBackground).
			Foreground(colorForeground),

		Header: lipgloss.NewStyle().
			Background(colorPrimary).
			Foreground(lipgloss.Color("#101F38")).
			Padding(0, 2).
			Bold(true),

		Footer: lipgloss.NewStyle().
			Foreground(colorMuted).
			Padding(0, 2),

		Content: lipgloss.NewStyle().
			Padding(1, 2),

		Title: lipgloss.NewStyle().
			Foreground(colorPrimary).
			Bold(true),

		Body: lipgloss.NewStyle().
			Foreground(colorForeground),

		Muted: lipgloss.NewStyle().
			Foreground(colorMuted),

		Bold: lipgloss.NewStyle().
			Foreground(colorForeground).
			Bold(true),

		Good: lipgloss.NewStyle().Foreground(colorGood).Bold(true),
		Bad:  lipgloss.NewStyle().Foreground(colorBad).Bold(true),
		Warn: lipgloss.NewStyle().Foreground(colorWarn).Bold(true),

		Divider: lipgloss.NewStyle().Foreground(colorBorder),

		Inspect: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(0, 1),
	}
}
