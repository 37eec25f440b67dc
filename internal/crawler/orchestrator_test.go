package crawler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/hostcrawl/internal/progress"
)

// MockFetcher is a mock implementation of the Fetcher interface.
type MockFetcher struct {
	mock.Mock
}

func (m *MockFetcher) Fetch(ctx context.Context, loc Location) (FetchResult, error) {
	args := m.Called(ctx, loc.Host())
	return args.Get(0).(FetchResult), args.Error(1)
}

type page struct {
	links []string
	err   error
	delay time.Duration
}

// fakeWeb serves pages keyed by host and tracks how many fetches overlap.
type fakeWeb struct {
	pages    map[string]page
	fallback func(host string) page

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
	mu          sync.Mutex
	fetched     []string
}

func (w *fakeWeb) Fetch(ctx context.Context, loc Location) (FetchResult, error) {
	n := w.inFlight.Add(1)
	defer w.inFlight.Add(-1)
	for {
		cur := w.maxInFlight.Load()
		if n <= cur || w.maxInFlight.CompareAndSwap(cur, n) {
			break
		}
	}
	w.mu.Lock()
	w.fetched = append(w.fetched, loc.Host())
	w.mu.Unlock()

	p, ok := w.pages[loc.Host()]
	if !ok && w.fallback != nil {
		p = w.fallback(loc.Host())
	} else if !ok {
		p = page{err: &FetchError{Kind: FetchUnreachableHost, URL: loc.String()}}
	}
	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return FetchResult{}, ctx.Err()
		}
	}
	if p.err != nil {
		return FetchResult{}, p.err
	}
	return FetchResult{Links: p.links, RTT: time.Millisecond}, nil
}

func (w *fakeWeb) Fetched() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.fetched...)
}

func testConfig(seeds ...string) Config {
	cfg := DefaultConfig()
	cfg.Seeds = seeds
	cfg.RequestDelay = 0
	cfg.JobTimeout = 5 * time.Second
	return cfg
}

func hosts(results []ResultRecord) []string {
	out := make([]string, 0, len(results))
	for _, r := range results {
		out = append(out, r.Host)
	}
	return out
}

func requireUniqueHosts(t *testing.T, results []ResultRecord) {
	t.Helper()
	seen := make(map[string]struct{}, len(results))
	for _, r := range results {
		_, dup := seen[r.Host]
		require.False(t, dup, "host %s recorded twice", r.Host)
		seen[r.Host] = struct{}{}
	}
}

func TestCrawlBudgetOfOneWithTwoSeeds(t *testing.T) {
	t.Parallel()

	web := &fakeWeb{pages: map[string]page{
		"a.example": {links: []string{"http://c.example/"}},
		"b.example": {links: []string{"http://d.example/"}},
	}}
	cfg := testConfig("http://a.example", "http://b.example")
	cfg.MaxPages = 1
	cfg.MaxWorkers = 2

	results, err := Crawl(context.Background(), cfg, web)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Contains(t, []string{"a.example", "b.example"}, results[0].Host)
}

func TestCrawlAdmitsOnePagePerDiscoveredHost(t *testing.T) {
	t.Parallel()

	web := &fakeWeb{pages: map[string]page{
		"x.example": {links: []string{"http://y.example/p.html", "http://y.example/q.html"}},
		"y.example": {},
	}}
	o, err := New(testConfig("http://x.example/index.html"), web)
	require.NoError(t, err)

	results, err := o.Run(context.Background())
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"x.example", "y.example"}, hosts(results))
	require.Equal(t, []string{"x.example", "y.example"}, web.Fetched())
	snap := o.Snapshot()
	require.Equal(t, 2, snap.Seen)
	require.Equal(t, StateStopped, snap.State)
}

func TestCrawlRejectedSeedDeadEnds(t *testing.T) {
	t.Parallel()

	fetcher := &MockFetcher{}
	results, err := Crawl(context.Background(), testConfig("http://a.example/doc.pdf"), fetcher)
	require.NoError(t, err)
	require.Empty(t, results)
	fetcher.AssertNotCalled(t, "Fetch", mock.Anything, mock.Anything)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	web := &fakeWeb{}
	for name, mutate := range map[string]func(*Config){
		"no workers": func(c *Config) { c.MaxWorkers = 0 },
		"no pages":   func(c *Config) { c.MaxPages = 0 },
		"no seeds":   func(c *Config) { c.Seeds = nil },
	} {
		cfg := testConfig("http://a.example")
		mutate(&cfg)
		_, err := New(cfg, web)
		require.ErrorIs(t, err, ErrInvalidConfig, name)
	}
	_, err := New(testConfig("http://a.example"), nil)
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestCrawlBudgetHoldsUnderUnboundedDiscovery(t *testing.T) {
	t.Parallel()

	// Every host links to ten fresh hosts, so the frontier never runs dry.
	var counter atomic.Int64
	web := &fakeWeb{fallback: func(string) page {
		links := make([]string, 10)
		for i := range links {
			links[i] = fmt.Sprintf("http://h%d.example/", counter.Add(1))
		}
		return page{links: links, delay: time.Millisecond}
	}}
	cfg := testConfig("http://h0.example/")
	cfg.MaxPages = 25
	cfg.MaxWorkers = 8

	results, err := Crawl(context.Background(), cfg, web)
	require.NoError(t, err)
	require.Len(t, results, 25)
	requireUniqueHosts(t, results)
	require.LessOrEqual(t, int(web.maxInFlight.Load()), 8)
}

func TestCrawlNeverExceedsWorkerCapacity(t *testing.T) {
	t.Parallel()

	pages := map[string]page{}
	var seedLinks []string
	for i := 0; i < 20; i++ {
		host := fmt.Sprintf("s%d.example", i)
		seedLinks = append(seedLinks, "http://"+host+"/")
		pages[host] = page{delay: 10 * time.Millisecond}
	}
	pages["root.example"] = page{links: seedLinks}
	web := &fakeWeb{pages: pages}
	cfg := testConfig("http://root.example/")
	cfg.MaxWorkers = 3

	results, err := Crawl(context.Background(), cfg, web)
	require.NoError(t, err)
	require.Len(t, results, 21)
	requireUniqueHosts(t, results)
	require.LessOrEqual(t, int(web.maxInFlight.Load()), 3)
	require.Equal(t, int32(3), web.maxInFlight.Load())
}

func TestCrawlFailureDoesNotStopOtherHosts(t *testing.T) {
	t.Parallel()

	fetcher := &MockFetcher{}
	fetcher.On("Fetch", mock.Anything, "bad.example").
		Return(FetchResult{}, &FetchError{Kind: FetchUnreachableHost, URL: "http://bad.example/"}).Once()
	fetcher.On("Fetch", mock.Anything, "good.example").
		Return(FetchResult{Links: []string{"http://next.example/"}, RTT: 5 * time.Millisecond}, nil).Once()
	fetcher.On("Fetch", mock.Anything, "next.example").
		Return(FetchResult{RTT: 7 * time.Millisecond}, nil).Once()

	cfg := testConfig("http://bad.example/", "http://good.example/")
	cfg.MaxWorkers = 1
	results, err := Crawl(context.Background(), cfg, fetcher)
	require.NoError(t, err)
	require.Equal(t, []string{"good.example", "next.example"}, hosts(results))
	require.Equal(t, 5*time.Millisecond, results[0].RTT)
	fetcher.AssertExpectations(t)
}

func TestCrawlTimeoutFreesSlot(t *testing.T) {
	t.Parallel()

	web := &fakeWeb{pages: map[string]page{
		"slow.example": {delay: time.Minute},
		"fast.example": {},
	}}
	cfg := testConfig("http://slow.example/", "http://fast.example/")
	cfg.MaxWorkers = 1
	cfg.JobTimeout = 20 * time.Millisecond

	results, err := Crawl(context.Background(), cfg, web)
	require.NoError(t, err)
	require.Equal(t, []string{"fast.example"}, hosts(results))
}

func TestCrawlFrontierCap(t *testing.T) {
	t.Parallel()

	web := &fakeWeb{pages: map[string]page{
		"root.example": {links: []string{"http://a.example/", "http://b.example/", "http://c.example/"}},
		"a.example":    {links: []string{"http://c.example/"}},
		"b.example":    {},
		"c.example":    {},
	}}
	cfg := testConfig("http://root.example/")
	cfg.MaxWorkers = 1
	cfg.MaxFrontier = 1

	results, err := Crawl(context.Background(), cfg, web)
	require.NoError(t, err)
	// b and c overflow the cap while a is queued; c is rediscovered from a
	// because a refused host is never marked seen.
	require.Equal(t, []string{"root.example", "a.example", "c.example"}, hosts(results))
}

func TestRunHonorsContextCancellation(t *testing.T) {
	t.Parallel()

	web := &fakeWeb{fallback: func(host string) page {
		return page{delay: time.Minute}
	}}
	cfg := testConfig("http://a.example/", "http://b.example/")
	o, err := New(cfg, web)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	type runResult struct {
		results []ResultRecord
		err     error
	}
	done := make(chan runResult, 1)
	go func() {
		results, err := o.Run(ctx)
		done <- runResult{results, err}
	}()
	require.Eventually(t, func() bool { return o.Snapshot().Active == 2 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case res := <-done:
		require.ErrorIs(t, res.err, context.Canceled)
		require.Empty(t, res.results)
	case <-time.After(2 * time.Second):
		t.Fatal("run did not stop after cancellation")
	}
	snap := o.Snapshot()
	require.Zero(t, snap.Active)
	require.Equal(t, StateStopped, snap.State)

	_, err = o.Run(context.Background())
	require.ErrorIs(t, err, ErrAlreadyStarted)
}

func TestDrainStopsAtBudget(t *testing.T) {
	t.Parallel()

	web := &fakeWeb{pages: map[string]page{
		"a.example": {links: []string{"http://z.example/"}},
		"b.example": {delay: 50 * time.Millisecond},
	}}
	cfg := testConfig("http://a.example/", "http://b.example/")
	cfg.MaxPages = 1
	cfg.MaxWorkers = 2
	cfg.DrainOnStop = true

	results, err := Crawl(context.Background(), cfg, web)
	require.NoError(t, err)
	// b finishes during the drain but the budget is already spent.
	require.Equal(t, []string{"a.example"}, hosts(results))
}

func TestDrainKeepsResultsAfterCancellation(t *testing.T) {
	t.Parallel()

	web := &fakeWeb{pages: map[string]page{
		"a.example": {delay: 30 * time.Millisecond},
	}}
	cfg := testConfig("http://a.example/")
	cfg.DrainOnStop = true
	o, err := New(cfg, web)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		for o.Snapshot().Active != 1 {
			time.Sleep(time.Millisecond)
		}
		cancel()
	}()
	results, err := o.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, []string{"a.example"}, hosts(results))
}

// stubbornFetcher ignores cancellation and succeeds after delay.
type stubbornFetcher struct {
	delay  time.Duration
	active atomic.Int32
}

func (f *stubbornFetcher) Fetch(_ context.Context, loc Location) (FetchResult, error) {
	f.active.Add(1)
	time.Sleep(f.delay)
	return FetchResult{Links: []string{"http://late-" + loc.Host() + "/"}, RTT: time.Millisecond}, nil
}

func TestShutdownModeDecidesLateMerges(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		drain bool
		want  []string
	}{
		"frozen by default": {drain: false, want: []string{}},
		"drain merges":      {drain: true, want: []string{"a.example"}},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			f := &stubbornFetcher{delay: 50 * time.Millisecond}
			cfg := testConfig("http://a.example/")
			cfg.DrainOnStop = tc.drain
			o, err := New(cfg, f)
			require.NoError(t, err)

			ctx, cancel := context.WithCancel(context.Background())
			go func() {
				for f.active.Load() == 0 {
					time.Sleep(time.Millisecond)
				}
				cancel()
			}()
			results, err := o.Run(ctx)
			require.ErrorIs(t, err, context.Canceled)
			require.Equal(t, tc.want, hosts(results))
			// Late completions never reach the log after Run returns.
			time.Sleep(2 * f.delay)
			require.Equal(t, tc.want, hosts(o.agg.Results()))
		})
	}
}

type recordingPauser struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (p *recordingPauser) Pause(ctx context.Context, delay time.Duration) error {
	p.mu.Lock()
	p.delays = append(p.delays, delay)
	p.mu.Unlock()
	return ctx.Err()
}

func TestDispatchIsPaced(t *testing.T) {
	t.Parallel()

	web := &fakeWeb{pages: map[string]page{
		"a.example": {links: []string{"http://b.example/"}},
		"b.example": {},
	}}
	cfg := testConfig("http://a.example/")
	cfg.RequestDelay = 2 * time.Second
	pauser := &recordingPauser{}

	results, err := Crawl(context.Background(), cfg, web, withPauser(pauser))
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second}, pauser.delays)
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []progress.Event
}

func (e *recordingEmitter) Emit(evt progress.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, evt)
}

func (e *recordingEmitter) Stages() []progress.Stage {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]progress.Stage, 0, len(e.events))
	for _, evt := range e.events {
		out = append(out, evt.Stage)
	}
	return out
}

type fixedClock time.Time

func (c fixedClock) Now() time.Time { return time.Time(c) }

func TestCrawlEmitsProgress(t *testing.T) {
	t.Parallel()

	web := &fakeWeb{pages: map[string]page{
		"a.example": {links: []string{"http://b.example/"}},
	}}
	emitter := &recordingEmitter{}
	runID := progress.NewRunID()
	cfg := testConfig("http://a.example/")
	cfg.MaxWorkers = 1

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	_, err := Crawl(context.Background(), cfg, web,
		WithEmitter(emitter),
		WithRunID(runID),
		WithClock(fixedClock(now)),
	)
	require.NoError(t, err)
	stages := emitter.Stages()
	require.Len(t, stages, 6)
	require.Equal(t, progress.StageCrawlStart, stages[0])
	require.Equal(t, progress.StageCrawlDone, stages[5])
	require.ElementsMatch(t, []progress.Stage{
		progress.StageCrawlStart,
		progress.StageDispatch,
		progress.StageFetchDone,
		progress.StageDispatch,
		progress.StageFetchError,
		progress.StageCrawlDone,
	}, stages)
	for _, evt := range emitter.events {
		require.Equal(t, runID, evt.RunID)
		require.Equal(t, now, evt.TS)
		require.NoError(t, evt.Validate())
	}
	require.Zero(t, emitter.events[5].Dur, "wall time comes from the injected clock")
}

func TestAggregatorIgnoresCompletionsAfterAbort(t *testing.T) {
	t.Parallel()

	agg := NewAggregator(NewFrontier(0, nil), 10, nil)
	require.Equal(t, 1, agg.Seed([]string{"http://a.example/"}))
	loc, ok := agg.claim(1)
	require.True(t, ok)
	_, ok = agg.claim(1)
	require.False(t, ok)

	agg.beginShutdown(false)
	agg.OnJobComplete(Outcome{Job: Job{Location: loc}, Result: FetchResult{Links: []string{"http://b.example/"}}})
	snap := agg.Snapshot()
	require.Zero(t, snap.Active)
	require.Zero(t, snap.Visited)
	require.Empty(t, agg.Results())
}

func TestAggregatorWatchWakesOnMutation(t *testing.T) {
	t.Parallel()

	agg := NewAggregator(NewFrontier(0, nil), 10, nil)
	_, changed := agg.watch()
	select {
	case <-changed:
		t.Fatal("changed closed before any mutation")
	default:
	}
	agg.Seed([]string{"http://a.example/"})
	select {
	case <-changed:
	case <-time.After(time.Second):
		t.Fatal("changed not closed after mutation")
	}
}
