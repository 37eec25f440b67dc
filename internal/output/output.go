// Package output delivers the finished crawl report to its destinations:
// a local results file and, when configured, Cloud Storage, Postgres and a
// Pub/Sub completion notice.
package output

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/hostcrawl/internal/crawler"
)

// maxParallelWriters bounds how many destinations are written at once.
const maxParallelWriters = 4

// Report is the outcome of one crawl.
type Report struct {
	RunID      uuid.UUID
	Seeds      []string
	StartedAt  time.Time
	FinishedAt time.Time
	Results    []crawler.ResultRecord
	// Interrupted is set when the crawl was cut short by cancellation.
	Interrupted bool
}

// WriteText writes one "<host><padding><rtt> milliseconds" line per result.
func (r Report) WriteText(w io.Writer) error {
	bw := bufio.NewWriter(w)
	for _, rec := range r.Results {
		if _, err := bw.WriteString(rec.String() + "\n"); err != nil {
			return fmt.Errorf("write result line: %w", err)
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("flush results: %w", err)
	}
	return nil
}

// Writer is one report destination.
type Writer interface {
	Name() string
	Write(ctx context.Context, report Report) error
	Close() error
}

// notifier marks writers that announce a finished report. They run after
// every other writer so they can point at stored results.
type notifier interface {
	Writer
	notifies()
}

// Publish writes report to every writer concurrently, then runs the
// notifiers. A failing writer does not stop the others; all failures are
// joined into the returned error.
func Publish(ctx context.Context, report Report, logger *zap.Logger, writers ...Writer) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	var stores, notifiers []Writer
	for _, w := range writers {
		if w == nil {
			continue
		}
		if _, ok := w.(notifier); ok {
			notifiers = append(notifiers, w)
			continue
		}
		stores = append(stores, w)
	}
	return errors.Join(
		writeAll(ctx, report, logger, stores),
		writeAll(ctx, report, logger, notifiers),
	)
}

func writeAll(ctx context.Context, report Report, logger *zap.Logger, writers []Writer) error {
	errs := make([]error, len(writers))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelWriters)
	for i, w := range writers {
		g.Go(func() error {
			start := time.Now()
			if err := w.Write(gctx, report); err != nil {
				logger.Error("write results failed", zap.String("writer", w.Name()), zap.Error(err))
				errs[i] = fmt.Errorf("%s: %w", w.Name(), err)
				return nil
			}
			logger.Info("results written",
				zap.String("writer", w.Name()),
				zap.Int("records", len(report.Results)),
				zap.Duration("took", time.Since(start)),
			)
			return nil
		})
	}
	// Writers report failures through errs, so Wait only synchronizes.
	_ = g.Wait()
	return errors.Join(errs...)
}

// CloseAll closes every writer and joins the errors.
func CloseAll(writers ...Writer) error {
	var errs []error
	for _, w := range writers {
		if w == nil {
			continue
		}
		if err := w.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", w.Name(), err))
		}
	}
	return errors.Join(errs...)
}
