package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/signalsfoundry/su2-hmc/core"
	"github.com/signalsfoundry/su2-hmc/lattice"
)

type inspectOptions struct {
	extents   lattice.Extents
	tolerance float64
	workers   int
}

func newInspectCmd(_ *globalOptions) *cobra.Command {
	opts := &inspectOptions{}
	cmd := &cobra.Command{
		Use:   "inspect SNAPSHOT",
		Short: "Print the average plaquette and SU(2) check of a snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return inspectSnapshot(cmd.Context(), args[0], opts, cmd.OutOrStdout())
		},
	}
	cmd.Flags().IntVar(&opts.extents.LengthTime, "length-time", 0, "Time extent for headerless snapshots")
	cmd.Flags().IntVar(&opts.extents.LengthSpace, "length-space", 0, "Space extent for headerless snapshots")
	cmd.Flags().Float64Var(&opts.tolerance, "tolerance", core.DefaultInvariantTolerance, "Unitarity tolerance")
	cmd.Flags().IntVar(&opts.workers, "workers", 0, "Worker goroutines (0 = GOMAXPROCS)")
	return cmd
}

func inspectSnapshot(ctx context.Context, path string, opts *inspectOptions, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	links, err := lattice.Load(path, opts.extents)
	if err != nil {
		return err
	}
	// The plaquette average does not depend on β.
	avg, err := core.NewObservables(core.NewPool(opts.workers), 1).AveragePlaquette(ctx, links)
	if err != nil {
		return err
	}
	rep := core.CheckLinks(links, opts.tolerance)

	fmt.Fprintf(out, "snapshot:  %s\n", path)
	fmt.Fprintf(out, "lattice:   %s (%d sites)\n", links.Extents(), links.Volume())
	fmt.Fprintf(out, "plaquette: %.12f\n", avg)
	if rep.OK() {
		fmt.Fprintf(out, "unitarity: ok (worst deviation %.3g)\n", rep.Worst)
		return nil
	}
	fmt.Fprintf(out, "unitarity: %d of %d links violate tolerance %g (worst %.3g)\n",
		rep.Failed, rep.Checked, rep.Tolerance, rep.Worst)
	for _, v := range rep.Violations {
		fmt.Fprintf(out, "  site %v mu=%d deviation %.3g\n", v.Site, v.Mu, v.Deviation)
	}
	return rep
}
