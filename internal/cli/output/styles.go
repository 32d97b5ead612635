package output

import "github.com/charmbracelet/lipgloss"

// Palette.
var (
	ColorPrimary = lipgloss.Color("#20B9B4")
	ColorBright  = lipgloss.Color("#2CD7C7")
	ColorSuccess = lipgloss.Color("#2CD7C7")
	ColorWarning = lipgloss.Color("#F4D03F")
	ColorError   = lipgloss.Color("#E74C3C")
	ColorMuted   = lipgloss.Color("#6C8A94")
)

// Styles holds the lipgloss styles of a renderer. Styles are bound to the
// renderer's writer, so colors are dropped when it is not a terminal.
type Styles struct {
	Header1 lipgloss.Style
	Header2 lipgloss.Style
	Bold    lipgloss.Style
	Muted   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Name    lipgloss.Style

	StatusOK      lipgloss.Style
	StatusWarning lipgloss.Style
	StatusError   lipgloss.Style
}

func newStyles(r *lipgloss.Renderer) *Styles {
	return &Styles{
		Header1: r.NewStyle().Bold(true).Foreground(ColorBright),
		Header2: r.NewStyle().Bold(true).Foreground(ColorPrimary),
		Bold:    r.NewStyle().Bold(true),
		Muted:   r.NewStyle().Foreground(ColorMuted),
		Success: r.NewStyle().Foreground(ColorSuccess),
		Warning: r.NewStyle().Foreground(ColorWarning),
		Error:   r.NewStyle().Foreground(ColorError),
		Name:    r.NewStyle().Foreground(ColorPrimary),

		StatusOK:      r.NewStyle().SetString("✓").Foreground(ColorSuccess),
		StatusWarning: r.NewStyle().SetString("⚠").Foreground(ColorWarning),
		StatusError:   r.NewStyle().SetString("✗").Foreground(ColorError),
	}
}
