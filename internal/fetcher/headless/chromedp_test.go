package headless

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/hostcrawl/internal/crawler"
)

func TestNewChromedpLimiterValidation(t *testing.T) {
	t.Parallel()

	_, err := NewChromedp(Config{MaxParallel: -1})
	require.Error(t, err)

	fetcher, err := NewChromedp(Config{MaxParallel: 2})
	require.NoError(t, err)
	defer fetcher.Close()
	require.Equal(t, 2, cap(fetcher.limiter))
	require.Equal(t, defaultNavigationTimeout, fetcher.navTimeout())
}

func TestFetcherNavTimeoutOverride(t *testing.T) {
	t.Parallel()

	fetcher := &Fetcher{}
	require.Equal(t, defaultNavigationTimeout, fetcher.navTimeout())
	fetcher.cfg.NavigationTimeout = time.Second
	require.Equal(t, time.Second, fetcher.navTimeout())
}

func TestAcquireHonorsContext(t *testing.T) {
	t.Parallel()

	fetcher := &Fetcher{limiter: make(chan struct{}, 1)}
	require.NoError(t, fetcher.acquire(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := fetcher.acquire(ctx)
	require.ErrorIs(t, err, context.Canceled)

	fetcher.release()
	require.NoError(t, fetcher.acquire(context.Background()))
}

func TestFetchFailsWhenSlotUnavailable(t *testing.T) {
	t.Parallel()

	fetcher := &Fetcher{limiter: make(chan struct{}, 1)}
	fetcher.limiter <- struct{}{}
	loc, err := crawler.ParseLocation("http://a.example/")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = fetcher.Fetch(ctx, loc)
	var fe *crawler.FetchError
	require.True(t, errors.As(err, &fe))
	require.Equal(t, crawler.FetchTimeout, fe.Kind)
}

func TestDocumentMetaCapturesDocumentStatus(t *testing.T) {
	t.Parallel()

	meta := &documentMeta{}
	meta.captureEvent(&network.EventResponseReceived{
		Type:     network.ResourceTypeImage,
		Response: &network.Response{Status: 404},
	})
	require.Zero(t, meta.Status())

	meta.captureEvent(&network.EventResponseReceived{
		Type:     network.ResourceTypeDocument,
		Response: &network.Response{Status: 204, URL: "https://example.com/rendered"},
	})
	meta.captureEvent("unrelated event")
	require.Equal(t, 204, meta.Status())
}
