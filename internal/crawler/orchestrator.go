package crawler

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/hostcrawl/internal/progress"
)

// Orchestrator runs one breadth-first crawl: it paces dispatches from the
// frontier into the pool, stops when the budget is spent or nothing is left
// to do, and then drains the pool.
type Orchestrator struct {
	cfg     Config
	fetcher Fetcher
	logger  *zap.Logger
	emitter progress.Emitter
	clock   Clock
	pauser  pauseController
	runID   [16]byte
	// parent is the caller's span, adopted by fetch spans started on pool
	// goroutines.
	parent trace.SpanContext

	agg     *Aggregator
	pool    *Pool
	started atomic.Bool
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger. Nil is ignored.
func WithLogger(logger *zap.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithEmitter routes progress events to e.
func WithEmitter(e progress.Emitter) Option {
	return func(o *Orchestrator) {
		if e != nil {
			o.emitter = e
		}
	}
}

// WithClock overrides the time source used for timestamps.
func WithClock(c Clock) Option {
	return func(o *Orchestrator) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithRunID fixes the identifier attached to progress events.
func WithRunID(id [16]byte) Option {
	return func(o *Orchestrator) {
		o.runID = id
	}
}

func withPauser(p pauseController) Option {
	return func(o *Orchestrator) {
		if p != nil {
			o.pauser = p
		}
	}
}

// New validates cfg, seeds the frontier and builds the worker pool. Seeds
// that fail admission are logged and skipped; they are not a configuration
// error.
func New(cfg Config, fetcher Fetcher, opts ...Option) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if fetcher == nil {
		return nil, &ConfigError{Field: "fetcher", Reason: "is required"}
	}
	o := &Orchestrator{
		cfg:     cfg,
		fetcher: fetcher,
		logger:  zap.NewNop(),
		emitter: progress.Discard,
		clock:   systemClock{},
		pauser:  &timerPauseController{},
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.runID == [16]byte{} {
		o.runID = progress.NewRunID()
	}

	frontier := NewFrontier(cfg.MaxFrontier, o.logger)
	o.agg = NewAggregator(frontier, cfg.MaxPages, o.logger)
	o.agg.observe = o.observe
	pool, err := NewPool(cfg.MaxWorkers, o.agg, cfg.jobTimeout(), o.logger)
	if err != nil {
		return nil, err
	}
	o.pool = pool

	admitted := o.agg.Seed(cfg.Seeds)
	o.logger.Info("frontier seeded",
		zap.Int("seeds", len(cfg.Seeds)),
		zap.Int("admitted", admitted),
	)
	return o, nil
}

// Snapshot returns the live crawl counters.
func (o *Orchestrator) Snapshot() Snapshot {
	return o.agg.Snapshot()
}

// Run crawls until the page budget is reached, the crawl dead-ends or ctx is
// cancelled, and returns the result log in completion order. When ctx ends
// the crawl early the partial results are returned along with the context
// error. Run may only be called once.
func (o *Orchestrator) Run(ctx context.Context) ([]ResultRecord, error) {
	if !o.started.CompareAndSwap(false, true) {
		return nil, ErrAlreadyStarted
	}
	o.parent = trace.SpanContextFromContext(ctx)
	start := o.clock.Now()
	o.emit(progress.Event{Stage: progress.StageCrawlStart, Note: fmt.Sprintf("%d seeds", len(o.cfg.Seeds))})
	o.logger.Info("crawl started",
		zap.Int("max_pages", o.cfg.MaxPages),
		zap.Int("max_workers", o.cfg.MaxWorkers),
		zap.Duration("request_delay", o.cfg.RequestDelay),
	)

	runErr := o.dispatchLoop(ctx)

	o.agg.beginShutdown(o.cfg.DrainOnStop)
	o.logger.Info("stopping crawlers",
		zap.Bool("drain", o.cfg.DrainOnStop),
		zap.Int("active", o.pool.ActiveCount()),
	)
	o.pool.Shutdown(o.cfg.DrainOnStop)
	o.agg.finish()
	o.logger.Info("stopped all crawlers")

	results := o.agg.Results()
	snap := o.agg.Snapshot()
	elapsed := o.clock.Now().Sub(start)
	o.logger.Info("crawl finished",
		zap.Int("visited", len(results)),
		zap.Int("hosts_found", snap.Seen),
		zap.Int("frontier_remaining", snap.Frontier),
		zap.Duration("elapsed", elapsed),
	)
	o.emit(progress.Event{Stage: progress.StageCrawlDone, Visited: len(results), Dur: elapsed})

	if runErr != nil {
		return results, fmt.Errorf("crawl interrupted: %w", runErr)
	}
	return results, nil
}

// dispatchLoop is the RUNNING state. It returns nil on budget or dead end
// and ctx.Err() when cancelled.
func (o *Orchestrator) dispatchLoop(ctx context.Context) error {
	capacity := o.pool.Capacity()
	for {
		snap, changed := o.agg.watch()
		switch {
		case snap.BudgetReached():
			o.logger.Info("page budget reached", zap.Int("visited", snap.Visited))
			return nil
		case snap.DeadEnd():
			o.logger.Info("frontier exhausted", zap.Int("visited", snap.Visited))
			return nil
		case snap.Frontier == 0 || snap.Active >= capacity:
			select {
			case <-changed:
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if err := o.pauser.Pause(ctx, o.cfg.RequestDelay); err != nil {
			return err
		}
		loc, ok := o.agg.claim(capacity)
		if !ok {
			// The budget filled or the slot was taken while pacing.
			continue
		}
		job := Job{Location: loc, Submitted: o.clock.Now()}
		if err := o.pool.Submit(job, o.fetch); err != nil {
			o.agg.release()
			if errors.Is(err, ErrPoolClosed) {
				return err
			}
			o.logger.Warn("dispatch rejected by pool", zap.String("host", loc.Host()), zap.Error(err))
			continue
		}
		o.logger.Debug("dispatched", zap.String("url", loc.String()))
		o.emit(progress.Event{Stage: progress.StageDispatch, Host: loc.Host(), URL: loc.String(), Visited: snap.Visited})
	}
}

const tracerName = "github.com/JakeFAU/hostcrawl/internal/crawler"

// fetch runs one job under a span from the globally registered tracer
// provider, parented on the span Run was called with.
func (o *Orchestrator) fetch(ctx context.Context, job Job) (FetchResult, error) {
	if o.parent.IsValid() {
		ctx = trace.ContextWithSpanContext(ctx, o.parent)
	}
	ctx, span := otel.Tracer(tracerName).Start(ctx, "crawler.fetch",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("crawler.host", job.Location.Host()),
			attribute.String("url.full", job.Location.String()),
		),
	)
	defer span.End()

	res, err := o.fetcher.Fetch(ctx, job.Location)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		return res, err
	}
	span.SetAttributes(
		attribute.Int("crawler.links", len(res.Links)),
		attribute.Int64("crawler.rtt_ms", res.RTT.Milliseconds()),
	)
	return res, nil
}

// observe runs after every merge, outside the aggregator lock.
func (o *Orchestrator) observe(out Outcome, merged bool, visited int) {
	loc := out.Job.Location
	if out.Succeeded() {
		if !merged {
			return
		}
		o.emit(progress.Event{
			Stage:   progress.StageFetchDone,
			Host:    loc.Host(),
			URL:     loc.String(),
			Links:   len(out.Result.Links),
			Visited: visited,
			Dur:     out.Result.RTT,
		})
		return
	}
	kind := string(FetchTransport)
	var fe *FetchError
	if errors.As(out.Err, &fe) {
		kind = string(fe.Kind)
	}
	o.emit(progress.Event{
		Stage:   progress.StageFetchError,
		Host:    loc.Host(),
		URL:     loc.String(),
		Kind:    kind,
		Visited: visited,
		Note:    out.Err.Error(),
	})
}

func (o *Orchestrator) emit(evt progress.Event) {
	evt.RunID = o.runID
	evt.TS = o.clock.Now()
	o.emitter.Emit(evt)
}

// Crawl is a convenience wrapper that builds an Orchestrator and runs it.
func Crawl(ctx context.Context, cfg Config, fetcher Fetcher, opts ...Option) ([]ResultRecord, error) {
	o, err := New(cfg, fetcher, opts...)
	if err != nil {
		return nil, err
	}
	return o.Run(ctx)
}
