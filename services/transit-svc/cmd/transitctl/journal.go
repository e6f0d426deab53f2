package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"multimodal/pkg/audit"
)

func newJournalCmd() *cobra.Command {
	var (
		command string
		limit   int
	)

	cmd := &cobra.Command{
		Use:   "journal <file>",
		Short: "Print a command journal (plain or .zst)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := audit.ReadFile(args[0])
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TIME\tCOMMAND\tOUTCOME\tTARGET\tMS\tERROR")
			shown := 0
			for _, e := range entries {
				if command != "" && e.Command != command {
					continue
				}
				if limit > 0 && shown == limit {
					break
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n",
					e.Timestamp.UTC().Format(time.RFC3339), e.Command, e.Outcome, e.Target, e.DurationMs, e.ErrorCode)
				shown++
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&command, "command", "", "Show only this command")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum entries (0 - all)")
	return cmd
}
