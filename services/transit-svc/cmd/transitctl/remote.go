package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"multimodal/pkg/client"
	"multimodal/services/transit-svc/internal/handlers"
	"multimodal/services/transit-svc/internal/session"
)

func newHealthCmd() *cobra.Command {
	cfg := client.DefaultClientConfig()
	var service string

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Query the gRPC health endpoint of a running transit service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Timeout*time.Duration(cfg.MaxRetries+1))
			defer cancel()

			hc, err := client.NewHealthClient(ctx, cfg)
			if err != nil {
				return err
			}
			defer hc.Close()

			status, err := hc.Check(ctx, service)
			if err != nil {
				return fmt.Errorf("health check %s: %w", cfg.Address, err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), status.String())
			return nil
		},
	}

	cmd.Flags().StringVar(&cfg.Address, "addr", cfg.Address, "gRPC admin address")
	cmd.Flags().DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "Per-attempt timeout")
	cmd.Flags().IntVar(&cfg.MaxRetries, "retries", cfg.MaxRetries, "Retries on Unavailable")
	cmd.Flags().StringVar(&service, "service", "", "Service name (empty - overall status)")
	return cmd
}

func newStateCmd() *cobra.Command {
	var (
		baseURL string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "state",
		Short: "Print the session state of a running transit service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			view, err := handlers.Call[handlers.Empty, session.View](ctx, http.DefaultClient,
				baseURL, handlers.ProcedureGetState, &handlers.Empty{})
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(view)
		},
	}

	cmd.Flags().StringVar(&baseURL, "url", "http://localhost:8080", "Transit service base URL")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "Request timeout")
	return cmd
}
