// Package cli provides styled terminal output for the spendlens commands.
package cli

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

// Palette. Inflows share the positive hue and outflows get their own so
// amounts read at a glance.
var (
	accent   = lipgloss.Color("#5B8DEF")
	positive = lipgloss.Color("#3DBE8B")
	negative = lipgloss.Color("#E5534B")
	caution  = lipgloss.Color("#F0B429")
	outflow  = lipgloss.Color("#F08C2E")
	neutral  = lipgloss.Color("#8FB8DE")
	muted    = lipgloss.Color("#7A7A7A")
	rule     = lipgloss.Color("#3A3A3A")
)

var (
	// TitleStyle renders report titles.
	TitleStyle = lipgloss.NewStyle().Bold(true).Foreground(accent)
	// SubtitleStyle renders section headings inside a report.
	SubtitleStyle = lipgloss.NewStyle().Foreground(muted).Underline(true)
	SuccessStyle  = lipgloss.NewStyle().Foreground(positive)
	ErrorStyle    = lipgloss.NewStyle().Foreground(negative)
	InfoStyle     = lipgloss.NewStyle().Foreground(neutral)
	SubtleStyle   = lipgloss.NewStyle().Foreground(muted)
	BoldStyle     = lipgloss.NewStyle().Bold(true)

	// TableHeaderStyle underlines a column header row.
	TableHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				BorderStyle(lipgloss.NormalBorder()).
				BorderBottom(true).
				BorderForeground(rule)

	cautionStyle = lipgloss.NewStyle().Foreground(caution)
	panelStyle   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(rule).
			Padding(0, 1)
)

// Report glyphs.
const (
	TrophyIcon = "🏆"
	BankIcon   = "🏦"
)

func tagged(style lipgloss.Style, glyph, message string) string {
	return style.Render(glyph + " " + message)
}

// FormatSuccess renders a confirmation line.
func FormatSuccess(message string) string { return tagged(SuccessStyle, "✓", message) }

// FormatWarning renders a caution line.
func FormatWarning(message string) string { return tagged(cautionStyle, "!", message) }

// FormatInfo renders a neutral status line.
func FormatInfo(message string) string { return tagged(InfoStyle, "·", message) }

// FormatTitle renders a report title followed by a blank line.
func FormatTitle(title string) string {
	return TitleStyle.MarginBottom(1).Render("💷 " + title)
}

// FormatAmount colors a signed amount by direction.
func FormatAmount(amount float64, currency string) string {
	color := positive
	if amount < 0 {
		color = outflow
	}
	return lipgloss.NewStyle().Foreground(color).Render(fmt.Sprintf("%+.2f %s", amount, currency))
}

// RenderBox draws content under a title inside a rounded panel.
func RenderBox(title, content string) string {
	return panelStyle.Render(lipgloss.JoinVertical(lipgloss.Left, TitleStyle.Render(title), content))
}
