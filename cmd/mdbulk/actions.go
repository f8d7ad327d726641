package cmd

import (
	"context"
	"fmt"

	"github.com/kerbaras/mdbulk/pkg/data"
	"github.com/kerbaras/mdbulk/pkg/input"
	"github.com/kerbaras/mdbulk/pkg/services"
	"github.com/spf13/cobra"
)

type bulkAction func(*services.Controller, context.Context, []data.Chapter) (*services.Job, error)

// newActionCmd builds a command that runs one call per selected chapter.
func newActionCmd(use, short string, unavailable bool, action bulkAction) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
	}
	selection := addFieldFlags(cmd, "", input.FilterFields, selectionUsage)
	cmd.Flags().Bool("dry-run", false, "list the chapters without changing them")

	cmd.RunE = withEnv(func(cmd *cobra.Command, args []string, e *env) error {
		chapters, err := selectChapters(e, selection, unavailable)
		if err != nil {
			return err
		}
		if len(chapters) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No chapters matched")
			return nil
		}
		if dryRun, _ := cmd.Flags().GetBool("dry-run"); dryRun {
			printChapters(cmd.OutOrStdout(), short, chapters)
			return nil
		}
		if err := e.login(); err != nil {
			return err
		}
		job, err := action(e.controller, e.ctx, chapters)
		return runJob(cmd, job, err)
	})
	return cmd
}

var (
	deleteCmd     = newActionCmd("delete", "Delete the selected chapters", false, (*services.Controller).Delete)
	deactivateCmd = newActionCmd("deactivate", "Deactivate the selected chapters", false, (*services.Controller).Deactivate)
	reactivateCmd = newActionCmd("reactivate", "Reactivate deactivated chapters", true, (*services.Controller).Reactivate)
	restoreCmd    = newActionCmd("restore", "Restore deleted chapters", true, (*services.Controller).Restore)
)
