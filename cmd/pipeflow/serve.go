package main

import (
	"github.com/spf13/cobra"
)

var (
	serveContext []string

	serveCmd = &cobra.Command{
		Use:   "serve [process]...",
		Short: "Serve gRPC health and metrics while running processes",
		Long: `Start the gRPC health service (grpc_port) and the Prometheus
endpoint (metrics_port), run the given processes in order and keep serving
until interrupted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			runContext, err := parseContext(serveContext)
			if err != nil {
				return err
			}
			e, cfg, err := bootstrap()
			if err != nil {
				return err
			}
			defer e.Recorder().Close()
			return e.Serve(cmd.Context(), cfg, args, runContext)
		},
	}
)

func init() {
	serveCmd.Flags().StringArrayVarP(&serveContext, "context", "c", nil, "run context entry key:value (repeatable)")
}
