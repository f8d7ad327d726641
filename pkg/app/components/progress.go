package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/kerbaras/mdbulk/pkg/app/styles"
	"github.com/kerbaras/mdbulk/pkg/services"
)

const maxShownErrors = 5

var outcomes = []services.Outcome{services.OutcomeDone, services.OutcomeSkipped, services.OutcomeErrored}

// ProgressTracker summarizes the progress updates of one job.
type ProgressTracker struct {
	action  string
	total   int
	counts  map[services.Outcome]int
	last    *services.Progress
	errors  []string
	bar     progress.Model
	width   int
	stopped bool
}

func NewProgressTracker(width int) *ProgressTracker {
	bar := progress.New(progress.WithGradient(string(styles.Secondary), string(styles.Primary)))
	bar.Width = max(width-4, 10)
	return &ProgressTracker{
		counts: make(map[services.Outcome]int),
		bar:    bar,
		width:  width,
	}
}

func (p *ProgressTracker) Update(update services.Progress) {
	u := update
	p.last = &u
	p.action = update.Action
	p.total = update.Total
	p.counts[update.Outcome]++

	if update.Error != nil {
		label := update.ChapterID
		if label == "" {
			label = fmt.Sprintf("#%d", update.Index+1)
		}
		p.errors = append(p.errors, fmt.Sprintf("%s: %v", label, update.Error))
		if len(p.errors) > maxShownErrors {
			p.errors = p.errors[len(p.errors)-maxShownErrors:]
		}
	}
}

func (p *ProgressTracker) SetWidth(width int) {
	p.width = width
	p.bar.Width = max(width-4, 10)
}

// Stop marks the job as finished or cancelled.
func (p *ProgressTracker) Stop() {
	p.stopped = true
}

func (p *ProgressTracker) Processed() int {
	return p.counts[services.OutcomeDone] + p.counts[services.OutcomeSkipped] + p.counts[services.OutcomeErrored]
}

func (p *ProgressTracker) Count(outcome services.Outcome) int {
	return p.counts[outcome]
}

func (p *ProgressTracker) Percent() float64 {
	if p.total == 0 {
		return 0
	}
	return float64(p.Processed()) / float64(p.total)
}

func (p *ProgressTracker) View() string {
	if p.last == nil {
		return styles.MutedStyle.Render("Waiting for the first chapter...")
	}

	var b strings.Builder
	b.WriteString(styles.TitleStyle.Render(fmt.Sprintf("%s: %d/%d chapters", p.action, p.Processed(), p.total)))
	b.WriteString("\n")
	b.WriteString(p.bar.ViewAs(p.Percent()))
	b.WriteString("\n\n")

	counts := make([]string, 0, len(outcomes))
	for _, outcome := range outcomes {
		counts = append(counts, styles.StatusStyle(string(outcome)).Render(fmt.Sprintf("%s %d", outcome, p.counts[outcome])))
	}
	b.WriteString(strings.Join(counts, "  "))
	b.WriteString("\n")

	if !p.stopped && p.last.ChapterID != "" {
		b.WriteString(styles.MutedStyle.Render(fmt.Sprintf("last: %s (%s)", p.last.ChapterID, p.last.Outcome)))
		b.WriteString("\n")
	}

	if len(p.errors) > 0 {
		b.WriteString("\n")
		for _, e := range p.errors {
			b.WriteString(styles.StatusStyle(string(services.OutcomeErrored)).Render(e))
			b.WriteString("\n")
		}
	}
	return b.String()
}
