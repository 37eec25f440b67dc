package sinks

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/hostcrawl/internal/progress"
)

// PrometheusSink turns progress events into Prometheus collectors.
type PrometheusSink struct {
	runsStarted   prometheus.Counter
	runsRunning   prometheus.Gauge
	runDuration   prometheus.Histogram
	dispatches    prometheus.Counter
	completions   *prometheus.CounterVec
	fetchRTT      *prometheus.HistogramVec
	linksObserved prometheus.Counter
}

// NewPrometheusSink registers the collectors against reg, or the default
// registerer when reg is nil.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "crawler_runs_started_total",
			Help: "Total crawls that have started.",
		}),
		runsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "crawler_runs_running",
			Help: "Crawls started but not yet finished.",
		}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "crawler_run_duration_seconds",
			Help:    "Wall time per finished crawl.",
			Buckets: []float64{1, 10, 60, 300, 900, 3600, 4 * 3600, 12 * 3600},
		}),
		dispatches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "crawler_dispatches_total",
			Help: "Jobs handed to the worker pool.",
		}),
		completions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crawler_fetch_completions_total",
			Help: "Fetch completions partitioned by result and failure kind.",
		}, []string{"result", "kind"}),
		fetchRTT: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "crawler_fetch_rtt_seconds",
			Help:    "Round trip time of successful fetches.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"result"}),
		linksObserved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "crawler_links_observed_total",
			Help: "Links returned by successful fetches, before admission.",
		}),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsRunning,
		s.runDuration,
		s.dispatches,
		s.completions,
		s.fetchRTT,
		s.linksObserved,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageCrawlStart:
			s.runsStarted.Inc()
			s.runsRunning.Inc()
		case progress.StageCrawlDone:
			s.runsRunning.Dec()
			if evt.Dur > 0 {
				s.runDuration.Observe(evt.Dur.Seconds())
			}
		case progress.StageDispatch:
			s.dispatches.Inc()
		case progress.StageFetchDone:
			s.completions.WithLabelValues("success", "").Inc()
			s.fetchRTT.WithLabelValues("success").Observe(evt.Dur.Seconds())
			s.linksObserved.Add(float64(evt.Links))
		case progress.StageFetchError:
			s.completions.WithLabelValues("error", evt.Kind).Inc()
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
