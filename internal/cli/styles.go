// Package cli provides styled terminal output and interactive prompts.
package cli

import (
	"github.com/Veraticus/spice-sms/internal/model"
	"github.com/charmbracelet/lipgloss"
)

// Band colors follow the review queue: green is trusted, amber wants a glance,
// red must be checked by hand.
var (
	AutoAcceptColor   = lipgloss.Color("#4ECDC4")
	LightReviewColor  = lipgloss.Color("#FFE66D")
	ManualReviewColor = lipgloss.Color("#FF6B6B")

	// DebitColor and CreditColor tint amounts by direction.
	DebitColor  = lipgloss.Color("#FF8C69")
	CreditColor = lipgloss.Color("#95E1D3")

	SubtleColor = lipgloss.Color("#666666")
	BorderColor = lipgloss.Color("#333")
)

var (
	// SuccessStyle, WarningStyle and ErrorStyle share the band colors so a
	// status line reads the same as a score.
	SuccessStyle = lipgloss.NewStyle().Foreground(AutoAcceptColor)
	WarningStyle = lipgloss.NewStyle().Foreground(LightReviewColor)
	ErrorStyle   = lipgloss.NewStyle().Foreground(ManualReviewColor)

	DebitStyle  = lipgloss.NewStyle().Foreground(DebitColor)
	CreditStyle = lipgloss.NewStyle().Foreground(CreditColor)

	SubtleStyle = lipgloss.NewStyle().Foreground(SubtleColor)
	BoldStyle   = lipgloss.NewStyle().Bold(true)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ManualReviewColor)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(BorderColor).
			Padding(1, 2)

	// TableHeaderStyle underlines column headers in list output.
	TableHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				BorderStyle(lipgloss.NormalBorder()).
				BorderBottom(true).
				BorderForeground(BorderColor)

	promptStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ManualReviewColor)
)

// bandStyles colors a review band.
var bandStyles = map[model.Band]lipgloss.Style{
	model.BandAutoAccept:   SuccessStyle,
	model.BandLightReview:  WarningStyle,
	model.BandManualReview: ErrorStyle,
}

var bandLabels = map[model.Band]string{
	model.BandAutoAccept:   "auto-accept",
	model.BandLightReview:  "light review",
	model.BandManualReview: "manual review",
}

// Icons.
const (
	SuccessIcon = "✓"
	ErrorIcon   = "✗"
	ChartIcon   = "📊"

	warningIcon = "⚠️"
	infoIcon    = "ℹ️"
)

// FormatSuccess formats a success message with icon.
func FormatSuccess(message string) string {
	return SuccessStyle.Render(SuccessIcon + " " + message)
}

// FormatError formats an error message with icon.
func FormatError(message string) string {
	return ErrorStyle.Render(ErrorIcon + " " + message)
}

// FormatWarning formats a warning message with icon.
func FormatWarning(message string) string {
	return WarningStyle.Render(warningIcon + "  " + message)
}

// FormatInfo formats an info message with icon.
func FormatInfo(message string) string {
	return CreditStyle.Render(infoIcon + "  " + message)
}

// FormatTitle formats a section title.
func FormatTitle(title string) string {
	return titleStyle.MarginBottom(1).Render(title)
}

// FormatPrompt formats a user prompt.
func FormatPrompt(prompt string) string {
	return promptStyle.Render(prompt + " → ")
}

// RenderBox renders content in a bordered box under a title.
func RenderBox(title, content string) string {
	return boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, titleStyle.Render(title), content))
}
