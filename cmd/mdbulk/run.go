package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/kerbaras/mdbulk/pkg/app"
	"github.com/kerbaras/mdbulk/pkg/app/components"
	"github.com/kerbaras/mdbulk/pkg/app/styles"
	"github.com/kerbaras/mdbulk/pkg/data"
	"github.com/kerbaras/mdbulk/pkg/services"
	"github.com/spf13/cobra"
)

// runJob follows job until it ends and prints its tally. Without the TUI
// the per-chapter log lines are the progress display.
func runJob(cmd *cobra.Command, job *services.Job, err error) error {
	if err != nil {
		return err
	}

	var tally data.Tally
	if useTUI {
		tally, err = app.NewApp(job).Run()
	} else {
		for range job.Progress() {
		}
		tally, err = job.Wait()
	}
	if err != nil {
		return err
	}

	printTally(cmd.OutOrStdout(), job.Name(), tally)
	if len(tally.Errored) > 0 {
		return fmt.Errorf("%d of %d chapters failed", len(tally.Errored), tally.Total())
	}
	return nil
}

func printTally(w io.Writer, action string, tally data.Tally) {
	fmt.Fprintln(w)
	fmt.Fprintf(w, "%s: %s  %s  %s\n", action,
		countOf(services.OutcomeDone, tally.Done),
		countOf(services.OutcomeSkipped, tally.Skipped),
		countOf(services.OutcomeErrored, tally.Errored),
	)
	if tally.Cancelled {
		fmt.Fprintln(w, styles.StatusStyle("cancelled").Render("cancelled before every chapter was processed"))
	}
	if len(tally.Done) > 0 && action == services.ActionUpload {
		fmt.Fprintf(w, "new chapters: %s\n", strings.Join(tally.Done, " "))
	}
	if len(tally.Errored) > 0 {
		fmt.Fprintf(w, "failed: %s\n", strings.Join(tally.Errored, " "))
	}
}

func countOf(outcome services.Outcome, items []string) string {
	return styles.StatusStyle(string(outcome)).Render(fmt.Sprintf("%s %d", outcome, len(items)))
}

func printChapters(w io.Writer, title string, chapters []data.Chapter) {
	fmt.Fprintf(w, "\n%s (%d chapters)\n\n", title, len(chapters))
	fmt.Fprintln(w, components.NewChapterTable(chapters).View())
}
