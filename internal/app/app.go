// Package app initializes and holds long-lived application services, acting
// as a dependency injection container for a crawl.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/hostcrawl/internal/api"
	"github.com/JakeFAU/hostcrawl/internal/config"
	"github.com/JakeFAU/hostcrawl/internal/crawler"
	collyfetcher "github.com/JakeFAU/hostcrawl/internal/fetcher/colly"
	"github.com/JakeFAU/hostcrawl/internal/fetcher/headless"
	"github.com/JakeFAU/hostcrawl/internal/fetcher/promote"
	rawfetcher "github.com/JakeFAU/hostcrawl/internal/fetcher/raw"
	"github.com/JakeFAU/hostcrawl/internal/output"
	"github.com/JakeFAU/hostcrawl/internal/progress"
	"github.com/JakeFAU/hostcrawl/internal/progress/sinks"
	"github.com/JakeFAU/hostcrawl/internal/telemetry"
)

const tracerName = "github.com/JakeFAU/hostcrawl/internal/app"

const (
	publishTimeout = 30 * time.Second
	closeTimeout   = 5 * time.Second
)

// ErrPublish marks a failure to write results to at least one destination.
var ErrPublish = errors.New("publish results")

// App holds the shared services for one crawl: the fetcher, the progress
// hub with its sinks, and the result writers.
type App struct {
	cfg          config.Config
	logger       *zap.Logger
	fetcher      crawler.Fetcher
	closeFetcher func()
	hub          *progress.Hub
	writers      []output.Writer
	// shutdownTracing flushes and stops the tracer provider installed by New.
	shutdownTracing func(context.Context) error
}

// Option customizes App construction.
type Option func(*options)

type options struct {
	registerer prometheus.Registerer
	fetcher    crawler.Fetcher
}

// WithRegisterer registers progress metrics on reg instead of the default
// registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithFetcher bypasses fetcher.kind and uses f.
func WithFetcher(f crawler.Fetcher) Option {
	return func(o *options) { o.fetcher = f }
}

// New builds every service named by cfg. It fails fast when a configured
// destination cannot be reached, before any crawling happens.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := options{registerer: prometheus.DefaultRegisterer}
	for _, opt := range opts {
		opt(&o)
	}
	logger.Info("initializing application services", zap.String("fetcher", cfg.Fetcher.Kind))

	tp, err := telemetry.InitTracerProvider(ctx, telemetry.Config{
		ServiceName: cfg.Tracing.ServiceName,
		Exporter:    cfg.Tracing.Exporter,
		SampleRatio: cfg.Tracing.SampleRatio,
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}
	a := &App{cfg: cfg, logger: logger, closeFetcher: func() {}, shutdownTracing: tp.Shutdown}
	fail := func(err error) (*App, error) {
		a.closeFetcher()
		if a.hub != nil {
			_ = a.hub.Close(ctx)
		}
		_ = a.shutdownTracing(ctx)
		return nil, err
	}

	if o.fetcher != nil {
		a.fetcher = o.fetcher
	} else {
		f, closeFn, err := newFetcher(cfg, logger)
		if err != nil {
			return fail(err)
		}
		a.fetcher, a.closeFetcher = f, closeFn
	}

	promSink, err := sinks.NewPrometheusSink(o.registerer)
	if err != nil {
		return fail(fmt.Errorf("init prometheus sink: %w", err))
	}
	hubSinks := []progress.Sink{sinks.NewLogSink(logger), promSink}
	if cfg.Progress.RedisAddr != "" {
		logger.Info("streaming progress to redis",
			zap.String("addr", cfg.Progress.RedisAddr),
			zap.String("stream", cfg.Progress.RedisStream),
		)
		rs, err := sinks.NewRedisStreamSink(ctx, sinks.RedisConfig{
			Addr:     cfg.Progress.RedisAddr,
			Password: cfg.Progress.RedisPassword,
			DB:       cfg.Progress.RedisDB,
			Stream:   cfg.Progress.RedisStream,
			MaxLen:   cfg.Progress.RedisMaxLen,
		})
		if err != nil {
			return fail(fmt.Errorf("init redis progress sink: %w", err))
		}
		hubSinks = append(hubSinks, rs)
	}
	a.hub = progress.NewHub(progress.Config{Logger: logger}, hubSinks...)

	writers, err := newWriters(ctx, cfg.Output, logger)
	if err != nil {
		return fail(err)
	}
	a.writers = writers

	logger.Info("application services initialized", zap.Int("writers", len(writers)))
	return a, nil
}

func newFetcher(cfg config.Config, logger *zap.Logger) (crawler.Fetcher, func(), error) {
	noop := func() {}
	fetchLogger := logger.Named("fetcher")
	raw := func() *rawfetcher.Fetcher {
		return rawfetcher.New(rawfetcher.Config{
			UserAgent:    cfg.Crawler.UserAgent,
			MaxBodyBytes: cfg.Fetcher.MaxBodyBytes,
			Logger:       fetchLogger,
		})
	}
	browser := func() (*headless.Fetcher, error) {
		f, err := headless.NewChromedp(headless.Config{
			MaxParallel:       cfg.Fetcher.HeadlessMaxParallel,
			UserAgent:         cfg.Crawler.UserAgent,
			NavigationTimeout: cfg.Crawler.JobTimeout,
			Logger:            fetchLogger,
		})
		if err != nil {
			return nil, fmt.Errorf("init headless fetcher: %w", err)
		}
		return f, nil
	}

	switch cfg.Fetcher.Kind {
	case config.FetcherRaw, "":
		return raw(), noop, nil
	case config.FetcherColly:
		return collyfetcher.New(collyfetcher.Config{
			UserAgent:    cfg.Crawler.UserAgent,
			Timeout:      cfg.Crawler.JobTimeout,
			MaxBodyBytes: int(cfg.Fetcher.MaxBodyBytes),
			Logger:       fetchLogger,
		}), noop, nil
	case config.FetcherHeadless:
		f, err := browser()
		if err != nil {
			return nil, nil, err
		}
		return f, f.Close, nil
	case config.FetcherAuto:
		f, err := browser()
		if err != nil {
			return nil, nil, err
		}
		detector := promote.NewDetector(cfg.Fetcher.PromoteMinBytes)
		return promote.New(raw(), f, detector, fetchLogger), f.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown fetcher kind %q", cfg.Fetcher.Kind)
	}
}

func newWriters(ctx context.Context, cfg config.OutputConfig, logger *zap.Logger) ([]output.Writer, error) {
	writers := []output.Writer{output.NewFileWriter(cfg.Path)}
	fail := func(err error) ([]output.Writer, error) {
		_ = output.CloseAll(writers...)
		return nil, err
	}

	var gcs *output.GCSWriter
	if cfg.GCSBucket != "" {
		logger.Info("using GCS result archive", zap.String("bucket", cfg.GCSBucket))
		w, err := output.NewGCSWriter(ctx, output.GCSConfig{Bucket: cfg.GCSBucket, Object: cfg.GCSObject})
		if err != nil {
			return fail(fmt.Errorf("init gcs writer: %w", err))
		}
		gcs = w
		writers = append(writers, w)
	}
	if cfg.PostgresDSN != "" {
		logger.Info("using postgres result store", zap.String("table", cfg.PostgresTable))
		w, err := output.NewPostgresStore(ctx, output.PostgresConfig{DSN: cfg.PostgresDSN, Table: cfg.PostgresTable})
		if err != nil {
			return fail(fmt.Errorf("init postgres store: %w", err))
		}
		writers = append(writers, w)
	}
	if cfg.PubSubProject != "" {
		logger.Info("using pubsub completion notices", zap.String("topic", cfg.PubSubTopic))
		pcfg := output.PubSubConfig{ProjectID: cfg.PubSubProject, Topic: cfg.PubSubTopic}
		if gcs != nil {
			pcfg.ResultsURI = gcs.URI
		}
		w, err := output.NewPubSubNotifier(ctx, pcfg, logger)
		if err != nil {
			return fail(fmt.Errorf("init pubsub notifier: %w", err))
		}
		writers = append(writers, w)
	}
	return writers, nil
}

// Writers returns the configured result destinations.
func (a *App) Writers() []output.Writer { return a.writers }

// Crawl runs one crawl, serving status while it runs when server.addr is
// set, and publishes the report to every writer. An interrupted crawl still
// publishes its partial results; the interruption is returned alongside any
// publish failure.
func (a *App) Crawl(ctx context.Context) (output.Report, error) {
	runID := progress.NewRunID()
	ctx, span := otel.Tracer(tracerName).Start(ctx, "hostcrawl.crawl",
		trace.WithAttributes(attribute.String("hostcrawl.run_id", uuid.UUID(runID).String())),
	)
	defer span.End()

	orch, err := crawler.New(a.cfg.CrawlerConfig(), a.fetcher,
		crawler.WithLogger(a.logger.Named("crawler")),
		crawler.WithEmitter(a.hub),
		crawler.WithRunID(runID),
	)
	if err != nil {
		span.SetStatus(codes.Error, "build crawler")
		return output.Report{}, fmt.Errorf("build crawler: %w", err)
	}

	serverDone := a.startStatusServer(ctx, orch)

	report := output.Report{
		RunID:     uuid.UUID(runID),
		Seeds:     append([]string(nil), a.cfg.Crawler.Seeds...),
		StartedAt: time.Now().UTC(),
	}
	results, runErr := orch.Run(ctx)
	report.FinishedAt = time.Now().UTC()
	report.Results = results
	report.Interrupted = runErr != nil

	a.logger.Info("writing results",
		zap.String("run_id", report.RunID.String()),
		zap.Int("hosts", len(results)),
		zap.Int("writers", len(a.writers)),
	)

	// Results are still written when ctx was cancelled mid crawl.
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	pubErr := output.Publish(wctx, report, a.logger, a.writers...)
	if pubErr != nil {
		pubErr = fmt.Errorf("%w: %w", ErrPublish, pubErr)
		span.RecordError(pubErr)
		span.SetStatus(codes.Error, "publish failed")
	}
	span.SetAttributes(
		attribute.Int("hostcrawl.hosts", len(results)),
		attribute.Bool("hostcrawl.interrupted", report.Interrupted),
	)

	serverDone()
	return report, errors.Join(runErr, pubErr)
}

// startStatusServer serves /status for orch until the returned func is
// called. It is a no-op without server.addr.
func (a *App) startStatusServer(ctx context.Context, orch *crawler.Orchestrator) func() {
	if a.cfg.Server.Addr == "" {
		return func() {}
	}
	srvCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	srv := api.NewServer(orch, a.logger.Named("api"))
	go func() {
		defer close(done)
		if err := srv.Serve(srvCtx, a.cfg.Server.Addr); err != nil {
			a.logger.Error("status server failed", zap.Error(err))
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

// Close flushes progress events and spans and releases every service.
func (a *App) Close() error {
	a.logger.Info("shutting down application services")
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	errs := []error{
		a.hub.Close(ctx),
		output.CloseAll(a.writers...),
	}
	a.closeFetcher()
	if err := a.shutdownTracing(ctx); err != nil {
		errs = append(errs, fmt.Errorf("shutdown tracing: %w", err))
	}
	return errors.Join(errs...)
}
