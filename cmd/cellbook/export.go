package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"pkt.systems/cellbook/schema"
	"pkt.systems/pslog"
)

func newExportCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export NOTEBOOK",
		Short: "Render a stored notebook to PDF",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := schema.EnsureNotebookExt(strings.TrimSpace(args[0]))
			if err := schema.ValidateNotebookName(name); err != nil {
				return err
			}
			client, err := backendClient(cmd)
			if err != nil {
				return err
			}
			defer client.CloseIdleConnections()
			doc, err := client.LoadNotebook(cmd.Context(), name)
			if err != nil {
				return err
			}
			download, err := client.ExportPDF(cmd.Context(), name, doc)
			if err != nil {
				return err
			}
			target := out
			if target == "" {
				target = schema.ExportFileName(name)
			}
			if target == "-" {
				_, err := cmd.OutOrStdout().Write(download.Data)
				return err
			}
			if err := os.WriteFile(target, download.Data, 0o644); err != nil {
				return fmt.Errorf("write export: %w", err)
			}
			pslog.Ctx(cmd.Context()).Info("notebook exported", "notebook", name, "path", target, "bytes", len(download.Data))
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "output path; - writes to stdout")
	return cmd
}
