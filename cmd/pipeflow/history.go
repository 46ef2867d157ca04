package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"pipeflow/internal/history"
)

var (
	purgeFilters []string

	purgeCmd = &cobra.Command{
		Use:   "purge",
		Short: "Delete run history",
		Long: `Delete the history records matching every --filter field:op:value.

Fields: id, process, status, error, started_at, ended_at.
Operators: =, !=, <, <=, >, >=.
Without a filter every finished run is deleted.

  pipeflow purge --filter status:=:success --filter started_at:<:2024-01-01`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filters := make([]history.Filter, 0, len(purgeFilters))
			for _, expr := range purgeFilters {
				f, err := history.ParseFilter(expr)
				if err != nil {
					return err
				}
				filters = append(filters, f)
			}
			store, err := openStore()
			if err != nil {
				return err
			}
			n, err := store.Purge(filters...)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d run(s) purged\n", n)
			return nil
		},
	}

	historyCmd = &cobra.Command{
		Use:   "history",
		Short: "List recorded runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			runs, err := store.List()
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tPROCESS\tSTATUS\tSTARTED\tDURATION\tERROR")
			for _, r := range runs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					r.ID, r.Process, r.Status, r.StartedAt.Format(time.RFC3339),
					r.Duration().Round(time.Millisecond), r.Error)
			}
			return w.Flush()
		},
	}
)

func init() {
	purgeCmd.Flags().StringArrayVar(&purgeFilters, "filter", nil, "field:op:value (repeatable)")
}
