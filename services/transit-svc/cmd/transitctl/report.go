package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"multimodal/pkg/domain"
	"multimodal/services/transit-svc/internal/advisor"
	"multimodal/services/transit-svc/internal/report"
	"multimodal/services/transit-svc/internal/repository"
)

func newReportCmd(opts *options) *cobra.Command {
	var (
		destroy  destroyFlags
		format   string
		out      string
		company  string
		maxPaths int
	)

	cmd := &cobra.Command{
		Use:   "report <origin> <destination>",
		Short: "Render an offline crisis report with heuristic advice",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := report.ParseFormat(format)
			if err != nil {
				return err
			}
			ds, err := opts.dataset()
			if err != nil {
				return err
			}
			network, err := domain.NewNetworkFromDataset(ds)
			if err != nil {
				return err
			}
			destroyed, err := destroy.apply(network)
			if err != nil {
				return err
			}

			origin, destination := args[0], args[1]
			paths := network.FindAllSimplePaths(origin, destination)

			data := &report.Data{
				GeneratedAt:    time.Now(),
				Origin:         origin,
				Destination:    destination,
				NetworkVersion: network.Version(),
				Destroyed:      destroyed,
				Paths:          domain.SummarizePaths(paths),
			}
			if len(paths) == 0 {
				data.Status = string(repository.StatusNoPaths)
				data.Message = advisor.MsgNoPaths
			} else {
				advice, err := advisor.NewHeuristic().Advise(cmd.Context(), advisor.NewRequest(origin, destination, paths))
				if err != nil {
					return err
				}
				data.Status = string(repository.StatusAdvised)
				data.Advice = advice
			}

			content, err := report.Render(cmd.Context(), f, report.Options{
				CompanyName:     company,
				MaxPathsInTable: maxPaths,
			}, data)
			if err != nil {
				return err
			}
			opts.log.Debug("report rendered", "format", f, "bytes", len(content))

			if out == "" || out == "-" {
				_, err = cmd.OutOrStdout().Write(content)
				return err
			}
			if err := os.WriteFile(out, content, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s (%d bytes)\n", out, len(content))
			return nil
		},
	}

	destroy.register(cmd)
	cmd.Flags().StringVar(&format, "format", "csv", "Report format: csv, xlsx, pdf")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output file (stdout when empty)")
	cmd.Flags().StringVar(&company, "company", "", "Company name printed as author")
	cmd.Flags().IntVar(&maxPaths, "max-paths", 0, "Limit rows of the paths table (0 - all)")
	return cmd
}

