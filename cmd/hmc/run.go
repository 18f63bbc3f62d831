package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/signalsfoundry/su2-hmc/chain"
	"github.com/signalsfoundry/su2-hmc/core"
	"github.com/signalsfoundry/su2-hmc/internal/config"
	"github.com/signalsfoundry/su2-hmc/internal/logging"
	"github.com/signalsfoundry/su2-hmc/internal/observability"
	"github.com/signalsfoundry/su2-hmc/internal/report"
	"github.com/signalsfoundry/su2-hmc/lattice"
	"github.com/signalsfoundry/su2-hmc/ledger"
	"github.com/signalsfoundry/su2-hmc/model"
)

type runOptions struct {
	configPath string
	outputDir  string
}

func newRunCmd(global *globalOptions) *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Generate a Markov chain of gauge configurations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return runChain(ctx, opts, global.logger(cmd.ErrOrStderr()), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&opts.configPath, "config", "hmc.ini", "INI configuration file")
	cmd.Flags().StringVar(&opts.outputDir, "output-dir", "", "Output directory (overrides output.directory)")
	return cmd
}

func runChain(ctx context.Context, opts *runOptions, base logging.Logger, out io.Writer) (err error) {
	started := time.Now()
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	if opts.outputDir != "" {
		cfg.Output.Directory = opts.outputDir
	}
	dir := cfg.Output.Directory

	ctx, log := logging.WithRunLogger(ctx, base)
	runID := logging.RunIDFromContext(ctx)

	if err := preflight(cfg); err != nil {
		return err
	}

	shutdown, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(), log)
	if err != nil {
		return err
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdown, log)

	collector, err := observability.NewHMCCollector(prometheus.NewRegistry())
	if err != nil {
		return fmt.Errorf("metrics collector: %w", err)
	}
	if cfg.Run.MetricsAddr != "" {
		srv := serveMetrics(ctx, cfg.Run.MetricsAddr, collector, log)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	rng := core.NewRandomContext(cfg.Seed(), cfg.MD.MomentumStd)
	var links *lattice.Field
	if cfg.Init.Cold {
		links, err = core.ColdStart(cfg.Extents())
	} else {
		links, err = core.HotStart(cfg.Extents(), rng.WithSigma(cfg.Init.HotStartStd))
	}
	if err != nil {
		return err
	}

	pool := core.NewPool(cfg.Run.Workers)
	gate, err := core.NewGate(links, pool, cfg.MDParams(), rng,
		core.WithLogger(log),
		core.WithInvariantChecks(cfg.Run.CheckInvariants, 0),
	)
	if err != nil {
		return err
	}

	ctrl, err := chain.NewController(gate,
		chain.Config{Total: cfg.Chain.Total, Skip: cfg.Chain.Skip, MaxTrials: cfg.Chain.MaxTrials},
		chain.WithSink(&report.Snapshots{
			Dir:     dir,
			Pattern: cfg.Output.SnapshotPattern,
			Final:   cfg.Output.FinalLinks,
			Enabled: cfg.Output.Links,
			Log:     log,
		}),
		chain.WithLogger(log),
	)
	if err != nil {
		return err
	}

	series, err := report.CreateSeries(dir)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, series.Close())
	}()

	history := ledger.NewHistory()
	if cfg.Output.HistoryDB != "" {
		store, err := openHistoryDB(ctx, cfg, runID, started)
		if err != nil {
			return err
		}
		defer store.Close()
		history.Subscribe(func(rec model.TrajectoryRecord) {
			if err := store.Insert(ctx, runID, rec); err != nil {
				log.Warn(ctx, "history insert failed", logging.Err(err))
			}
		})
	}

	ctrl.AddListener(history.Record)
	ctrl.AddListener(series.Record)
	ctrl.AddListener(collector.ObserveTrajectory)

	log.Info(ctx, "starting chain",
		logging.String("lattice", cfg.Extents().String()),
		logging.Float("beta", cfg.MD.Beta),
		logging.Float("time_step", cfg.MD.TimeStep),
		logging.Int("md_steps", cfg.MD.Steps),
		logging.Int("total", cfg.Chain.Total),
		logging.Int("skip", cfg.Chain.Skip),
		logging.Int("workers", pool.Workers()),
	)

	runErr := <-ctrl.Start(ctx)
	if errors.Is(runErr, core.ErrInvariantViolation) {
		collector.IncInvariantViolations()
	}
	runErr = errors.Join(runErr, series.Err())

	summary := history.Summary()
	manifest := report.NewManifest(runID, cfg, started)
	manifest.Workers = pool.Workers()
	manifest.Complete(summary, runErr, time.Now())
	if err := manifest.Write(filepath.Join(dir, report.ManifestFile)); err != nil {
		runErr = errors.Join(runErr, err)
	}

	fmt.Fprintf(out, "run %s: %d trials, %d accepted (rate %.4f), %d stored\n",
		runID, summary.Trials, summary.Accepted, summary.AcceptanceRate, summary.Stored)
	fmt.Fprintf(out, "plaquette %.6f ± %.6f, <exp(-dE)> %.6f, max |dE| %.3g\n",
		summary.MeanPlaquette, summary.StdDevPlaquette, summary.MeanBoltzmann, summary.MaxAbsDeltaE)

	if runErr != nil {
		log.Error(ctx, "chain stopped", logging.Err(runErr))
		return runErr
	}
	log.Info(ctx, "chain finished", logging.Duration("elapsed", time.Since(started)))
	return nil
}

// preflight refuses to start over outputs of an earlier run and checks the
// output filesystem can hold the snapshots.
func preflight(cfg *config.Config) error {
	dir := cfg.Output.Directory
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	names := append([]string{cfg.Output.FinalLinks, report.ManifestFile}, report.SeriesFiles...)
	files := 1
	if cfg.Output.Links {
		names = append(names, fmt.Sprintf(cfg.Output.SnapshotPattern, 0))
		files += cfg.Chain.Total
	}
	if err := report.CheckFresh(dir, names...); err != nil {
		return err
	}

	perFile := uint64(cfg.Extents().Volume()) * lattice.Dims * 64
	return report.CheckHeadroom(dir, uint64(files)*perFile)
}

func openHistoryDB(ctx context.Context, cfg *config.Config, runID string, started time.Time) (*ledger.SQLiteStore, error) {
	path := cfg.Output.HistoryDB
	if !filepath.IsAbs(path) {
		path = filepath.Join(cfg.Output.Directory, path)
	}
	store, err := ledger.OpenSQLite(ctx, path)
	if err != nil {
		return nil, err
	}
	err = store.BeginRun(ctx, ledger.RunInfo{
		ID:      runID,
		Started: started,
		Extents: cfg.Extents(),
		Params:  cfg.MDParams(),
		Seed:    cfg.Init.Seed,
	})
	if err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}

func serveMetrics(ctx context.Context, addr string, collector *observability.HMCCollector, log logging.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn(ctx, "metrics server exited", logging.Err(err))
		}
	}()

	log.Info(ctx, "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}
