package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"pkt.systems/cellbook/internal/version"
)

func newVersionCmd() *cobra.Command {
	var withBackend bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !withBackend {
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", version.Module(), version.CurrentWithDirty())
				return err
			}
			client, err := backendClient(cmd)
			if err != nil {
				return err
			}
			defer client.CloseIdleConnections()
			report := version.Collect(cmd.Context(), client)
			if _, err := fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", report.Module, report.Client); err != nil {
				return err
			}
			if report.BackendError != "" {
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "backend unavailable: %s\n", report.BackendError)
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "backend %s\n", report.Backend)
			return err
		},
	}
	cmd.Flags().BoolVar(&withBackend, "backend", false, "also query the backend version")
	return cmd
}
