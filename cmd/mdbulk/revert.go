package cmd

import (
	"fmt"
	"time"

	"github.com/kerbaras/mdbulk/pkg/input"
	"github.com/spf13/cobra"
)

var revertCmd = &cobra.Command{
	Use:   "revert <snapshot>",
	Short: "Undo an edit batch from its snapshot",
	Long:  "Bring the chapters of an edit snapshot back to their state before the batch. The snapshot is a file path or a stored snapshot id.",
	Args:  cobra.ExactArgs(1),
	RunE: withEnv(func(cmd *cobra.Command, args []string, e *env) error {
		snapshot, err := e.controller.LoadSnapshot(e.ctx, args[0])
		if err != nil {
			return err
		}
		current, restored, err := e.controller.PrepareRestore(e.ctx, snapshot)
		if err != nil {
			return err
		}
		if len(current) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "None of the snapshot's chapters are available")
			return nil
		}

		if dryRun, _ := cmd.Flags().GetBool("dry-run"); dryRun {
			printChapters(cmd.OutOrStdout(), "Current", current)
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "\nRestored values:")
			fill := input.ReverseFill(restored, input.EditFields)
			for _, field := range input.EditFields {
				fmt.Fprintf(out, "\n[%s]\n%s\n", field, fill[field])
			}
			return nil
		}
		if err := e.login(); err != nil {
			return err
		}
		job, err := e.controller.CommitEdits(e.ctx, current, restored)
		return runJob(cmd, job, err)
	}),
}

var snapshotsCmd = &cobra.Command{
	Use:   "snapshots",
	Short: "List stored edit snapshots",
	RunE: withEnv(func(cmd *cobra.Command, args []string, e *env) error {
		snapshots, err := e.controller.ListSnapshots(e.ctx)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(snapshots) == 0 {
			fmt.Fprintf(out, "No stored snapshots. File snapshots are in %s\n", e.cfg.SnapshotDir())
			return nil
		}
		for _, s := range snapshots {
			fmt.Fprintf(out, "%s  %s  %d chapters\n", s.ID, s.CreatedAt.Local().Format(time.DateTime), len(s.Old))
		}
		return nil
	}),
}

func init() {
	revertCmd.Flags().Bool("dry-run", false, "show the values that would be restored")
}
