package main

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"pkt.systems/cellbook/gateway"
	"pkt.systems/cellbook/schema"
	"pkt.systems/pslog"
)

func newNotebooksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notebooks",
		Short: "Manage notebooks stored on the backend",
	}
	cmd.AddCommand(newNotebooksListCmd())
	cmd.AddCommand(newNotebooksRenameCmd())
	cmd.AddCommand(newNotebooksDeleteCmd())
	return cmd
}

func newNotebooksListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List notebooks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := backendClient(cmd)
			if err != nil {
				return err
			}
			defer client.CloseIdleConnections()
			notebooks, err := client.ListNotebooks(cmd.Context())
			if err != nil {
				return err
			}
			return printNotebooks(cmd, notebooks)
		},
	}
}

func newNotebooksRenameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rename OLD NEW",
		Short: "Rename a notebook; the .ipynb extension is added when missing",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := backendClient(cmd)
			if err != nil {
				return err
			}
			defer client.CloseIdleConnections()
			oldName := schema.EnsureNotebookExt(strings.TrimSpace(args[0]))
			newName := schema.EnsureNotebookExt(strings.TrimSpace(args[1]))
			if err := client.RenameNotebook(cmd.Context(), oldName, newName); err != nil {
				return err
			}
			pslog.Ctx(cmd.Context()).Info("notebook renamed", "from", oldName, "to", newName)
			return nil
		},
	}
}

func newNotebooksDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete NAME",
		Short: "Delete a notebook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := backendClient(cmd)
			if err != nil {
				return err
			}
			defer client.CloseIdleConnections()
			name := schema.EnsureNotebookExt(strings.TrimSpace(args[0]))
			if err := client.DeleteNotebook(cmd.Context(), name); err != nil {
				return err
			}
			pslog.Ctx(cmd.Context()).Info("notebook deleted", "name", name)
			return nil
		},
	}
}

func backendClient(cmd *cobra.Command) (*gateway.Client, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return gateway.New(gateway.Config{BaseURL: cfg.Backend.BaseURL, Timeout: cfg.Backend.Timeout()})
}

func printNotebooks(cmd *cobra.Command, notebooks []schema.FileDescriptor) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	if _, err := fmt.Fprintln(w, "NAME\tPATH\tMODIFIED"); err != nil {
		return err
	}
	for _, nb := range notebooks {
		modified := "-"
		if nb.LastModified > 0 {
			modified = time.Unix(int64(nb.LastModified), 0).UTC().Format(time.RFC3339)
		}
		if _, err := fmt.Fprintf(w, "%s\t%s\t%s\n", nb.Name, nb.Path, modified); err != nil {
			return err
		}
	}
	return w.Flush()
}
