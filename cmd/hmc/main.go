package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/signalsfoundry/su2-hmc/internal/logging"
)

type globalOptions struct {
	logLevel  string
	logFormat string
}

func (g *globalOptions) logger(w io.Writer) logging.Logger {
	return logging.New(logging.Config{Level: g.logLevel, Format: g.logFormat, Output: w})
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:           "hmc",
		Short:         "SU(2) lattice gauge theory Hybrid Monte Carlo",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", envOr("LOG_LEVEL", "info"), "Log level: debug, info, warn, error")
	root.PersistentFlags().StringVar(&opts.logFormat, "log-format", envOr("LOG_FORMAT", "text"), "Log format: text or json")

	root.AddCommand(newRunCmd(opts), newInspectCmd(opts), newHistoryCmd(opts))
	return root
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "hmc:", err)
		os.Exit(1)
	}
}
