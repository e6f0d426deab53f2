package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"multimodal/pkg/domain"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <dataset.yaml>",
		Short: "Check a dataset against the schema and network invariants",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ds, err := domain.LoadDatasetFile(args[0])
			if err != nil {
				return err
			}
			network, err := domain.NewNetworkFromDataset(ds)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok, %d locations, %d routes\n",
				args[0], len(network.Locations()), len(network.Routes()))
			return nil
		},
	}
}
