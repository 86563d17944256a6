// Package cmd defines and implements the CLI commands for the waymirror
// executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/waymirror/waymirror/internal/config"
	"github.com/waymirror/waymirror/internal/logging"
)

var (
	cfgFile string
	cfg     config.Config
	logger  *zap.Logger
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "waymirror",
		Short: "Mirror archived websites from the Wayback Machine",
		Long: `waymirror rebuilds a browsable offline copy of a website from its
Wayback Machine captures. It resolves the best snapshot of each page in a
date window, crawls to a bounded depth, and rewrites links so the mirror
works from local disk.`,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cfg, err = config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err = logging.New(cfg.Logging.Development)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			return nil
		},

		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			if logger != nil {
				_ = logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (optional)")

	cmd.AddCommand(newMirrorCmd())
	cmd.AddCommand(newSnapshotsCmd())

	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
