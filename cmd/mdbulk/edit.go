package cmd

import (
	"fmt"

	"github.com/kerbaras/mdbulk/pkg/input"
	"github.com/spf13/cobra"
)

var (
	editSelection *fieldFlags
	editFlags     *fieldFlags
)

var editCmd = &cobra.Command{
	Use:   "edit",
	Short: "Edit the chapters a selection matches",
	Long: `Fetch the selected chapters and edit them line by line. For each --new-*
line an empty value keeps the current one, a lone space clears it and
anything else replaces it. --set field=value:condition applies value to every
chapter whose number matches condition, e.g. --set volume=2:11-20.`,
	RunE: withEnv(func(cmd *cobra.Command, args []string, e *env) error {
		fields, err := editFlags.Values()
		if err != nil {
			return err
		}
		sets, _ := cmd.Flags().GetStringArray("set")
		conditionals, err := parseSets(sets)
		if err != nil {
			return err
		}

		old, err := selectChapters(e, editSelection, false)
		if err != nil {
			return err
		}
		if len(old) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No chapters matched")
			return nil
		}
		edited := e.controller.ParseEdits(old, fields, conditionals)

		if dryRun, _ := cmd.Flags().GetBool("dry-run"); dryRun {
			printChapters(cmd.OutOrStdout(), "Before", old)
			printChapters(cmd.OutOrStdout(), "After", edited)
			return nil
		}
		if err := e.login(); err != nil {
			return err
		}
		job, err := e.controller.CommitEdits(e.ctx, old, edited)
		return runJob(cmd, job, err)
	}),
}

func init() {
	editSelection = addFieldFlags(editCmd, "", input.FilterFields, selectionUsage)
	editFlags = addFieldFlags(editCmd, "new-", input.EditFields, "new %s, one line per chapter (repeatable, @file reads lines)")
	editCmd.Flags().StringArray("set", nil, "conditional edit field=value:condition (repeatable)")
	editCmd.Flags().Bool("dry-run", false, "show the chapters before and after without sending anything")
}
