package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"pkt.systems/cellbook/httpapi"
	"pkt.systems/cellbook/internal/backendmock"
	"pkt.systems/pslog"
)

func newMockBackendCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "mock-backend",
		Short: "Run an in-memory notebook backend for local testing",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := pslog.Ctx(cmd.Context())
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runMockBackend(ctx, addr, logger)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8000", "listen address")
	return cmd
}

func runMockBackend(ctx context.Context, addr string, logger pslog.Logger) error {
	backend := backendmock.New(logger)
	logger.Info("mock backend listening", "addr", addr)
	return httpapi.ListenAndServe(ctx, addr, backend.Handler())
}
