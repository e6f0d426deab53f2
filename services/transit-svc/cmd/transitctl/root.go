package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"multimodal/pkg/domain"
	"multimodal/pkg/logger"
)

// options общие флаги команд
type options struct {
	datasetPath string
	verbose     bool
	log         *slog.Logger
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "transitctl",
		Short:         "Operate the multimodal transit network and crisis analyses",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			level := "warn"
			if opts.verbose {
				level = "debug"
			}
			opts.log = logger.NewWithWriter(cmd.ErrOrStderr(), "text", logger.ParseLevel(level))
			return nil
		},
	}

	root.PersistentFlags().StringVar(&opts.datasetPath, "dataset", os.Getenv("MULTIMODAL_DATASET_PATH"), "Path to dataset YAML (embedded dataset when empty)")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable verbose output")

	root.AddCommand(
		newPathsCmd(opts),
		newValidateCmd(),
		newReportCmd(opts),
		newHealthCmd(),
		newStateCmd(),
		newJournalCmd(),
	)
	return root
}

func (o *options) dataset() (*domain.Dataset, error) {
	if o.datasetPath == "" {
		return domain.DefaultDataset()
	}
	o.log.Debug("loading dataset", "path", o.datasetPath)
	return domain.LoadDatasetFile(o.datasetPath)
}

// destroyFlags разрушения, применяемые к сети до перебора путей
type destroyFlags struct {
	cities []string
	routes []string
}

func (f *destroyFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringSliceVar(&f.cities, "destroy-city", nil, "Remove a city with all its routes (repeatable)")
	cmd.Flags().StringSliceVar(&f.routes, "destroy-route", nil, "Remove a route given as Origin>Destination/Mode (repeatable)")
}

// apply мутирует сеть; возвращает подписи разрушенных целей
func (f *destroyFlags) apply(n *domain.Network) ([]string, error) {
	var destroyed []string
	for _, city := range f.cities {
		if _, ok := n.RemoveLocation(city); !ok {
			return nil, fmt.Errorf("unknown city %q", city)
		}
		destroyed = append(destroyed, city)
	}
	for _, spec := range f.routes {
		origin, destination, mode, err := parseRouteSpec(spec)
		if err != nil {
			return nil, err
		}
		if _, ok := n.RemoveRoute(origin, destination, mode); !ok {
			return nil, fmt.Errorf("route %q not found", spec)
		}
		destroyed = append(destroyed, spec)
	}
	return destroyed, nil
}

// parseRouteSpec разбирает "Shanghai>Tokyo/Air"
func parseRouteSpec(spec string) (string, string, domain.Mode, error) {
	ends, rawMode, ok := strings.Cut(spec, "/")
	if !ok {
		return "", "", "", fmt.Errorf("route %q: expected Origin>Destination/Mode", spec)
	}
	origin, destination, ok := strings.Cut(ends, ">")
	if !ok || origin == "" || destination == "" {
		return "", "", "", fmt.Errorf("route %q: expected Origin>Destination/Mode", spec)
	}
	mode, err := domain.ParseMode(rawMode)
	if err != nil {
		return "", "", "", fmt.Errorf("route %q: %w", spec, err)
	}
	return origin, destination, mode, nil
}
