package cmd

import (
	"github.com/kerbaras/mdbulk/pkg/data"
	"github.com/kerbaras/mdbulk/pkg/input"
	"github.com/spf13/cobra"
)

const selectionUsage = "select by %s, one value per line (repeatable, @file reads lines)"

var listFlags *fieldFlags

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Preview the chapters a selection matches",
	RunE: withEnv(func(cmd *cobra.Command, args []string, e *env) error {
		unavailable, _ := cmd.Flags().GetBool("unavailable")
		chapters, err := selectChapters(e, listFlags, unavailable)
		if err != nil {
			return err
		}
		title := "Chapters"
		if unavailable {
			title = "Unavailable chapters"
		}
		printChapters(cmd.OutOrStdout(), title, chapters)
		return nil
	}),
}

// selectChapters fetches what the selection flags match. Unavailable
// chapters need a login.
func selectChapters(e *env, flags *fieldFlags, unavailable bool) ([]data.Chapter, error) {
	fields, err := flags.Values()
	if err != nil {
		return nil, err
	}
	sel := e.controller.ParseEditFilters(fields)
	if unavailable {
		if err := e.login(); err != nil {
			return nil, err
		}
		return e.controller.FetchUnavailable(e.ctx, sel), nil
	}
	return e.controller.FetchChapters(e.ctx, sel), nil
}

func init() {
	listFlags = addFieldFlags(listCmd, "", input.FilterFields, selectionUsage)
	listCmd.Flags().Bool("unavailable", false, "list deactivated and deleted chapters")
}
