package styles

import "github.com/charmbracelet/lipgloss"

var (
	// Color palette
	Primary   = lipgloss.Color("#FF6B9D")
	Secondary = lipgloss.Color("#C792EA")
	Success   = lipgloss.Color("#C3E88D")
	Warning   = lipgloss.Color("#FFCB6B")
	Error     = lipgloss.Color("#F07178")
	Info      = lipgloss.Color("#82AAFF")
	Muted     = lipgloss.Color("#546E7A")
)

var (
	TitleStyle = lipgloss.NewStyle().
			Foreground(Primary).
			Bold(true).
			MarginBottom(1)

	MutedStyle = lipgloss.NewStyle().
			Foreground(Muted)

	StatusRunning = lipgloss.NewStyle().
			Foreground(Info).
			Bold(true)

	StatusDone = lipgloss.NewStyle().
			Foreground(Success).
			Bold(true)

	StatusSkipped = lipgloss.NewStyle().
			Foreground(Warning)

	StatusError = lipgloss.NewStyle().
			Foreground(Error).
			Bold(true)

	TableHeaderStyle = lipgloss.NewStyle().
				Foreground(Primary).
				Bold(true).
				BorderStyle(lipgloss.NormalBorder()).
				BorderBottom(true).
				BorderForeground(Muted)

	HelpStyle = lipgloss.NewStyle().
			Foreground(Muted).
			Italic(true).
			MarginTop(1)
)

// StatusStyle picks the style for a job or item status.
func StatusStyle(status string) lipgloss.Style {
	switch status {
	case "running":
		return StatusRunning
	case "done":
		return StatusDone
	case "skipped", "cancelled":
		return StatusSkipped
	case "errored":
		return StatusError
	default:
		return MutedStyle
	}
}
