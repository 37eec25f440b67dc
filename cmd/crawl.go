package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/hostcrawl/internal/app"
	"github.com/JakeFAU/hostcrawl/internal/config"
	"github.com/JakeFAU/hostcrawl/internal/logging"
	"github.com/JakeFAU/hostcrawl/internal/output"
)

// crawlApp is what the crawl command needs from the application container.
type crawlApp interface {
	Crawl(ctx context.Context) (output.Report, error)
	Close() error
}

// newApp is the application factory. It is a variable so tests can swap in
// a fake.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (crawlApp, error) {
	return app.New(ctx, cfg, logger)
}

// newCrawlCmd creates the crawl subcommand.
func newCrawlCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Crawl from the seed URLs and write the visited hosts",
		Long: `Crawl loads configuration from the --config file, CRAWLER_* environment
variables (including those exported from --env-file) and the flags below,
runs one crawl and writes the results.

Examples:
  # Crawl from one seed with a small budget
  hostcrawl crawl --seed http://example.com/ --max-pages 50

  # Use a config file and override the output path
  hostcrawl crawl --config crawl.yaml --output out/results.txt

  # Print the visited hosts as a table as well
  hostcrawl crawl --seed http://example.com/ --table`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCrawl(cmd, root)
		},
	}
	cmd.Flags().StringSlice("seed", nil, "seed URL (repeatable)")
	cmd.Flags().Int("max-pages", 0, "stop after this many hosts are visited")
	cmd.Flags().Int("max-workers", 0, "maximum fetches in flight")
	cmd.Flags().Duration("delay", 0, "pause before each dispatch")
	cmd.Flags().StringP("output", "o", "", "results file path")
	cmd.Flags().String("fetcher", "", "fetcher kind: raw, colly, headless or auto")
	cmd.Flags().String("addr", "", "serve /status, /metrics and /healthz on this address while crawling")
	cmd.Flags().Bool("table", false, "print the visited hosts as a table")
	return cmd
}

func runCrawl(cmd *cobra.Command, root *rootOptions) error {
	cfg, err := config.Load(root.configPath, cmd.Flags())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(logging.Options{
		Development: cfg.Logging.Development,
		Level:       cfg.Logging.Level,
		File:        cfg.Logging.File,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()
	zap.ReplaceGlobals(logger)

	ctx := cmd.Context()
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize application services: %w", err)
	}
	defer func() {
		if cerr := a.Close(); cerr != nil {
			logger.Warn("failed to close application services", zap.Error(cerr))
		}
	}()

	report, err := a.Crawl(ctx)
	// An interrupted crawl is a normal exit unless its results were lost.
	if err != nil && (!errors.Is(err, context.Canceled) || errors.Is(err, app.ErrPublish)) {
		return fmt.Errorf("run crawl: %w", err)
	}
	if showTable, _ := cmd.Flags().GetBool("table"); showTable {
		renderResults(cmd.OutOrStdout(), report)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "visited %d hosts in %s; results written to %s\n",
		len(report.Results),
		report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond),
		cfg.Output.Path,
	)
	logger.Info("crawl command finished", zap.Bool("interrupted", report.Interrupted))
	return nil
}
