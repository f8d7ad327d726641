package cmd

import (
	"fmt"

	"github.com/kerbaras/mdbulk/pkg/input"
	"github.com/spf13/cobra"
)

var uploadFlags *fieldFlags

var uploadCmd = &cobra.Command{
	Use:   "upload [archives...]",
	Short: "Upload chapters",
	Long: `Upload one chapter per archive. Archives are taken in natural order and
every field line belongs to the chapter at the same position. A single line
applies to all chapters; a single whole chapter number counts up.
External chapters need no archive, only --external-url lines.`,
	RunE: withEnv(func(cmd *cobra.Command, args []string, e *env) error {
		fields, err := uploadFlags.Values()
		if err != nil {
			return err
		}
		records := e.controller.ParseUploadInput(fields, input.SortFiles(args))
		if len(records) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "Nothing to upload")
			return nil
		}

		if dryRun, _ := cmd.Flags().GetBool("dry-run"); dryRun {
			printChapters(cmd.OutOrStdout(), "Upload plan", records)
			return nil
		}
		if err := e.login(); err != nil {
			return err
		}
		job, err := e.controller.UploadAll(e.ctx, records)
		return runJob(cmd, job, err)
	}),
}

func init() {
	uploadFlags = addFieldFlags(uploadCmd, "", input.UploadFields, "%s, one line per chapter (repeatable, @file reads lines)")
	uploadCmd.Flags().Bool("dry-run", false, "print the parsed chapters without uploading")
}
