package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"pipeflow/internal/transport"
)

var (
	healthAddr    string
	healthTimeout time.Duration

	healthCmd = &cobra.Command{
		Use:   "health",
		Short: "Check whether a serving engine accepts runs",
		Long: `Query the gRPC health service of "pipeflow serve". The address defaults
to localhost:<grpc_port>. Exits non-zero unless the engine reports SERVING.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			addr := healthAddr
			if addr == "" {
				cfg, err := loadConfig()
				if err != nil {
					return err
				}
				addr = fmt.Sprintf("localhost:%d", cfg.GRPCPort)
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), healthTimeout)
			defer cancel()

			serving, err := checkHealth(ctx, addr)
			if err != nil {
				return err
			}
			if !serving {
				fmt.Fprintln(cmd.OutOrStdout(), "NOT_SERVING")
				return &exitError{code: 1, err: errors.New("engine is not serving")}
			}
			fmt.Fprintln(cmd.OutOrStdout(), "SERVING")
			return nil
		},
	}
)

func init() {
	healthCmd.Flags().StringVar(&healthAddr, "addr", "", "engine gRPC address (host:port)")
	healthCmd.Flags().DurationVar(&healthTimeout, "timeout", 3*time.Second, "health check timeout")
}

func checkHealth(ctx context.Context, addr string) (bool, error) {
	c, err := transport.Dial(addr)
	if err != nil {
		return false, err
	}
	defer c.Close()
	return c.Serving(ctx)
}
