package app

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/kerbaras/mdbulk/pkg/app/components"
	"github.com/kerbaras/mdbulk/pkg/app/styles"
	"github.com/kerbaras/mdbulk/pkg/data"
	"github.com/kerbaras/mdbulk/pkg/services"
)

// App shows the progress of one running job until it ends.
type App struct {
	job *services.Job
}

func NewApp(job *services.Job) *App {
	return &App{job: job}
}

// Run blocks until the job has finished and returns its result. Pressing q
// cancels the job after the chapter in flight.
func (a *App) Run() (data.Tally, error) {
	model := newJobScreen(a.job)
	p := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		a.job.Cancel()
		a.job.Wait()
		return data.Tally{}, err
	}
	return a.job.Wait()
}

type jobFinishedMsg struct{}

type jobScreen struct {
	job        *services.Job
	tracker    *components.ProgressTracker
	cancelling bool
	finished   bool
}

func newJobScreen(job *services.Job) *jobScreen {
	return &jobScreen{
		job:     job,
		tracker: components.NewProgressTracker(80),
	}
}

func (s *jobScreen) Init() tea.Cmd {
	return s.listenForProgress
}

func (s *jobScreen) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		s.tracker.SetWidth(msg.Width - 4)

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			if !s.cancelling {
				s.cancelling = true
				s.job.Cancel()
			}
		}

	case services.Progress:
		s.tracker.Update(msg)
		return s, s.listenForProgress

	case jobFinishedMsg:
		s.finished = true
		s.tracker.Stop()
		return s, tea.Quit
	}

	return s, nil
}

func (s *jobScreen) View() string {
	var b strings.Builder
	b.WriteString(styles.TitleStyle.Render(fmt.Sprintf("mdbulk %s", s.job.Name())))
	b.WriteString("\n")
	b.WriteString(styles.StatusStyle(s.status()).Render(s.status()))
	b.WriteString("\n\n")
	b.WriteString(s.tracker.View())

	switch {
	case s.finished:
	case s.cancelling:
		b.WriteString(styles.StatusStyle("cancelled").Render("Cancelling after the current chapter..."))
	default:
		b.WriteString(styles.HelpStyle.Render("q: cancel"))
	}
	return b.String()
}

func (s *jobScreen) status() string {
	switch {
	case s.finished:
		return "done"
	case s.cancelling:
		return "cancelled"
	default:
		return "running"
	}
}

func (s *jobScreen) listenForProgress() tea.Msg {
	p, ok := <-s.job.Progress()
	if !ok {
		return jobFinishedMsg{}
	}
	return p
}
