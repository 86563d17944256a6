package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/waymirror/waymirror/internal/archive"
	"github.com/waymirror/waymirror/internal/cdx"
	"github.com/waymirror/waymirror/internal/clock/system"
	"github.com/waymirror/waymirror/internal/extract"
	"github.com/waymirror/waymirror/internal/fetch"
	"github.com/waymirror/waymirror/internal/id/uuid"
	"github.com/waymirror/waymirror/internal/metrics"
	"github.com/waymirror/waymirror/internal/pathmap"
	"github.com/waymirror/waymirror/internal/report"
	"github.com/waymirror/waymirror/internal/rewrite"
	"github.com/waymirror/waymirror/internal/scheduler"
	"github.com/waymirror/waymirror/internal/status"
	"github.com/waymirror/waymirror/internal/storage/local"
)

type mirrorFlags struct {
	from        string
	to          string
	depth       int
	output      string
	concurrency int
	timeout     int
	retries     int
}

func newMirrorCmd() *cobra.Command {
	var flags mirrorFlags

	cmd := &cobra.Command{
		Use:   "mirror <url>",
		Short: "Download an offline mirror of an archived site",
		Long: `Crawls the Wayback Machine captures of the given site and writes a
browsable copy under the output directory. Each run gets its own
directory named <host>_<timestamp>, with a manifest.json summarizing
the outcome.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			applyMirrorFlags(cmd, flags)
			return runMirror(cmd.Context(), args[0], flags)
		},
	}

	cmd.Flags().StringVar(&flags.from, "from", "", "earliest capture date (YYYYMMDD)")
	cmd.Flags().StringVar(&flags.to, "to", "", "latest capture date (YYYYMMDD)")
	cmd.Flags().IntVar(&flags.depth, "depth", 0, "link depth to follow from the root page")
	cmd.Flags().StringVar(&flags.output, "output", "", "output directory")
	cmd.Flags().IntVar(&flags.concurrency, "concurrency", 0, "concurrent downloads")
	cmd.Flags().IntVar(&flags.timeout, "timeout", 0, "per-request timeout in seconds")
	cmd.Flags().IntVar(&flags.retries, "retries", 0, "attempts per URL before giving up")

	return cmd
}

// applyMirrorFlags overlays explicitly set flags onto the loaded config.
func applyMirrorFlags(cmd *cobra.Command, flags mirrorFlags) {
	if cmd.Flags().Changed("depth") {
		cfg.Mirror.MaxDepth = flags.depth
	}
	if cmd.Flags().Changed("output") {
		cfg.Mirror.OutputDir = flags.output
	}
	if cmd.Flags().Changed("concurrency") {
		cfg.Mirror.ConcurrentDownloads = flags.concurrency
	}
	if cmd.Flags().Changed("timeout") {
		cfg.Mirror.TimeoutSeconds = flags.timeout
	}
	if cmd.Flags().Changed("retries") {
		cfg.Mirror.MaxRetries = flags.retries
	}
}

func runMirror(parent context.Context, rawURL string, flags mirrorFlags) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	window := archive.DateRange{From: flags.from, To: flags.to}
	if err := validateWindow(window); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clk := system.New()
	idGen := uuid.NewGenerator()

	rootURL, err := archive.NormalizeURL(rawURL)
	if err != nil {
		return fmt.Errorf("root url: %w", err)
	}
	scope, err := archive.NewScope(rootURL, cfg.Mirror.AllowHosts)
	if err != nil {
		return fmt.Errorf("crawl scope: %w", err)
	}

	startedAt := clk.Now()
	runDir := filepath.Join(
		cfg.Mirror.OutputDir,
		fmt.Sprintf("%s_%s", scope.RootHost(), startedAt.Format("20060102150405")),
	)
	store, err := local.New(runDir)
	if err != nil {
		return fmt.Errorf("output directory: %w", err)
	}

	runID, err := idGen.NewID()
	if err != nil {
		return fmt.Errorf("run id: %w", err)
	}
	run := archive.Run{
		ID:        runID,
		RootURL:   rootURL,
		OutputDir: runDir,
		MaxDepth:  cfg.Mirror.MaxDepth,
		Window:    window,
		StartedAt: startedAt,
	}

	metrics.Init()

	resolver := cdx.New(cdx.Config{
		CDXEndpoint: cfg.Archive.CDXURL,
		WebEndpoint: cfg.Archive.WebURL,
		Timeout:     cfg.Timeout(),
		UserAgent:   cfg.Mirror.UserAgent,
	}, logger)
	fetcher := fetch.New(fetch.Config{
		Timeout:       cfg.Timeout(),
		MaxRetries:    cfg.Mirror.MaxRetries,
		RatePerSecond: cfg.Mirror.RatePerSecond,
		UserAgent:     cfg.Mirror.UserAgent,
	}, logger)
	mapper := pathmap.New()
	extractor := extract.New(scope, logger)
	rewriter := rewrite.New(scope, mapper, logger)

	sched, err := scheduler.New(scheduler.Config{
		RootURL:  rootURL,
		MaxDepth: cfg.Mirror.MaxDepth,
		Workers:  cfg.Mirror.ConcurrentDownloads,
		Window:   window,
	}, resolver, fetcher, extractor, mapper, rewriter, store, logger)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}

	if cfg.Status.Enabled {
		srv := status.NewServer(sched, run, logger)
		go func() {
			if serveErr := srv.Serve(ctx, cfg.Status.Port); serveErr != nil {
				logger.Warn("status server failed", zap.Error(serveErr))
			}
		}()
	}

	logger.Info("mirror started",
		zap.String("run_id", run.ID),
		zap.String("url", rootURL),
		zap.Int("depth", cfg.Mirror.MaxDepth),
		zap.String("output", runDir),
	)

	summary, runErr := sched.Run(ctx)

	manifest := report.Build(run, sched.State(), summary, clk.Now())
	if err := report.Write(store, manifest, logger); err != nil {
		logger.Error("manifest write failed", zap.Error(err))
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return fmt.Errorf("mirror run: %w", runErr)
	}
	return nil
}

func validateWindow(window archive.DateRange) error {
	for _, v := range []string{window.From, window.To} {
		if v == "" {
			continue
		}
		if _, err := time.Parse("20060102", v); err != nil {
			return fmt.Errorf("invalid date %q, expected YYYYMMDD", v)
		}
	}
	if window.From != "" && window.To != "" && window.From > window.To {
		return fmt.Errorf("--from %s is after --to %s", window.From, window.To)
	}
	return nil
}
