package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/hostcrawl/internal/progress"
)

// LogSink writes each progress event as a structured log line. Dispatches
// and fetch completions go to Debug; crawl boundaries and errors are louder.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.Stringer("run_id", evt.RunUUID()),
			zap.String("stage", string(evt.Stage)),
		}
		if evt.Host != "" {
			fields = append(fields, zap.String("host", evt.Host))
		}
		if evt.URL != "" {
			fields = append(fields, zap.String("url", evt.URL))
		}
		fields = append(fields, zap.Int("visited", evt.Visited), zap.Duration("dur", evt.Dur))
		switch evt.Stage {
		case progress.StageFetchError:
			s.logger.Debug("progress event", append(fields, zap.String("kind", evt.Kind), zap.String("note", evt.Note))...)
		case progress.StageCrawlStart, progress.StageCrawlDone:
			s.logger.Info("progress event", append(fields, zap.String("note", evt.Note))...)
		default:
			s.logger.Debug("progress event", append(fields, zap.Int("links", evt.Links))...)
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
