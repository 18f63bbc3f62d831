package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/signalsfoundry/su2-hmc/ledger"
)

func newHistoryCmd(_ *globalOptions) *cobra.Command {
	var runID string
	cmd := &cobra.Command{
		Use:   "history DB",
		Short: "Summarise the runs recorded in a history database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return printHistory(cmd.Context(), args[0], runID, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&runID, "run", "", "Only summarise this run")
	return cmd
}

func printHistory(ctx context.Context, path, only string, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	store, err := ledger.OpenSQLite(ctx, path)
	if err != nil {
		return err
	}
	defer store.Close()

	ids := []string{only}
	if only == "" {
		if ids, err = store.Runs(ctx); err != nil {
			return err
		}
	}
	for _, id := range ids {
		records, err := store.Trajectories(ctx, id)
		if err != nil {
			return err
		}
		h := ledger.NewHistory()
		for _, rec := range records {
			h.Record(rec)
		}
		s := h.Summary()
		fmt.Fprintf(out, "%s\ttrials=%d\taccepted=%d\tstored=%d\trate=%.4f\tplaquette=%.6f\n",
			id, s.Trials, s.Accepted, s.Stored, s.AcceptanceRate, s.MeanPlaquette)
	}
	return nil
}
