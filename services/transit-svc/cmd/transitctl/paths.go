package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"multimodal/pkg/domain"
)

func newPathsCmd(opts *options) *cobra.Command {
	var (
		destroy destroyFlags
		asJSON  bool
	)

	cmd := &cobra.Command{
		Use:   "paths <origin> <destination>",
		Short: "Enumerate every simple path between two locations",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ds, err := opts.dataset()
			if err != nil {
				return err
			}
			network, err := domain.NewNetworkFromDataset(ds)
			if err != nil {
				return err
			}
			if _, err := destroy.apply(network); err != nil {
				return err
			}

			started := time.Now()
			paths := network.FindAllSimplePaths(args[0], args[1])
			opts.log.Debug("paths enumerated", "count", len(paths), "duration", time.Since(started))

			summaries := domain.SummarizePaths(paths)
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(summaries)
			}

			if len(summaries) == 0 {
				fmt.Fprintf(out, "No paths from %s to %s\n", args[0], args[1])
				return nil
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "#\tROUTE\tMODES\tCOST\tTIME\tENV")
			for i, s := range summaries {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%g\t%g\t%g\n",
					i+1, s.RouteText(), s.ModesText(), s.TotalCost, s.TotalTime, s.TotalEnvironment)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(out, "%d paths\n", len(summaries))
			return nil
		},
	}

	destroy.register(cmd)
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print paths as JSON")
	return cmd
}
