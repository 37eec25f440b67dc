package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/hostcrawl/internal/progress"
)

func sampleBatch() []progress.Event {
	run := progress.NewRunID()
	now := time.Now()
	return []progress.Event{
		{RunID: run, TS: now, Stage: progress.StageCrawlStart},
		{RunID: run, TS: now, Stage: progress.StageDispatch, Host: "a.example"},
		{RunID: run, TS: now, Stage: progress.StageFetchDone, Host: "a.example", Links: 3, Visited: 1, Dur: 200 * time.Millisecond},
		{RunID: run, TS: now, Stage: progress.StageDispatch, Host: "b.example"},
		{RunID: run, TS: now, Stage: progress.StageFetchError, Host: "b.example", Kind: "timeout", Note: "deadline"},
		{RunID: run, TS: now, Stage: progress.StageCrawlDone, Visited: 1, Dur: 3 * time.Second},
	}
}

func TestPrometheusSinkRecordsCrawlEvents(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	require.NoError(t, sink.Consume(context.Background(), sampleBatch()))

	require.Equal(t, 1.0, testutil.ToFloat64(sink.runsStarted))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.runsRunning))
	require.Equal(t, 2.0, testutil.ToFloat64(sink.dispatches))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.completions.WithLabelValues("success", "")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.completions.WithLabelValues("error", "timeout")))
	require.Equal(t, 3.0, testutil.ToFloat64(sink.linksObserved))
	require.Equal(t, 1, testutil.CollectAndCount(sink.runDuration, "crawler_run_duration_seconds"))
	require.Equal(t, 1, testutil.CollectAndCount(sink.fetchRTT, "crawler_fetch_rtt_seconds"))
}

func TestPrometheusSinkRejectsDuplicateRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := NewPrometheusSink(reg)
	require.NoError(t, err)
	_, err = NewPrometheusSink(reg)
	require.Error(t, err)
}

func TestLogSinkLevels(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.DebugLevel)
	sink := NewLogSink(zap.New(core))
	require.NoError(t, sink.Consume(context.Background(), sampleBatch()))
	require.NoError(t, sink.Close(context.Background()))

	require.Equal(t, 6, logs.Len())
	require.Equal(t, 2, logs.FilterLevelExact(zap.InfoLevel).Len())
	errs := logs.FilterField(zap.String("kind", "timeout")).All()
	require.Len(t, errs, 1)
	require.Equal(t, "b.example", errs[0].ContextMap()["host"])
}
