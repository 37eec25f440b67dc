// Package headless implements crawler.Fetcher with headless Chrome so that
// links inserted by JavaScript are discovered too.
package headless

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/hostcrawl/internal/crawler"
	"github.com/JakeFAU/hostcrawl/internal/fetcher/links"
)

const defaultNavigationTimeout = 45 * time.Second

// Config controls the behavior of the headless fetcher.
type Config struct {
	// MaxParallel caps concurrent browser tabs. Zero leaves it to the
	// crawler's worker limit.
	MaxParallel       int
	UserAgent         string
	NavigationTimeout time.Duration
	// SettleDelay is waited after the body is ready so scripts can run.
	SettleDelay time.Duration
	Logger      *zap.Logger
}

// Fetcher implements crawler.Fetcher using chromedp.
type Fetcher struct {
	cfg         Config
	logger      *zap.Logger
	limiter     chan struct{}
	allocator   context.Context
	allocCancel context.CancelFunc
}

var _ crawler.Fetcher = (*Fetcher)(nil)

// NewChromedp creates a headless fetcher backed by a shared Chrome
// allocator. Chrome itself starts lazily on the first Fetch.
func NewChromedp(cfg Config) (*Fetcher, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = defaultNavigationTimeout
	}
	if cfg.SettleDelay < 0 {
		cfg.SettleDelay = 0
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	var limiter chan struct{}
	if cfg.MaxParallel > 0 {
		limiter = make(chan struct{}, cfg.MaxParallel)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Fetcher{
		cfg:         cfg,
		logger:      logger,
		limiter:     limiter,
		allocator:   allocCtx,
		allocCancel: allocCancel,
	}, nil
}

// Close shuts the browser down.
func (f *Fetcher) Close() {
	f.allocCancel()
}

// Fetch renders loc in a fresh tab and extracts anchors from the final DOM.
// RTT covers navigation through DOM serialization.
func (f *Fetcher) Fetch(ctx context.Context, loc crawler.Location) (crawler.FetchResult, error) {
	target := loc.String()
	if err := f.acquire(ctx); err != nil {
		return crawler.FetchResult{}, crawler.ClassifyFetchError(target, err)
	}
	defer f.release()

	taskCtx, taskCancel := chromedp.NewContext(f.allocator)
	defer taskCancel()
	stop := context.AfterFunc(ctx, taskCancel)
	defer stop()

	taskCtx, cancel := context.WithTimeout(taskCtx, f.navTimeout())
	defer cancel()

	meta := &documentMeta{}
	chromedp.ListenTarget(taskCtx, meta.captureEvent)

	start := time.Now()
	html, finalURL, err := f.render(taskCtx, target)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = fmt.Errorf("%w: %w", ctxErr, err)
		}
		return crawler.FetchResult{}, crawler.ClassifyFetchError(target, err)
	}
	rtt := time.Since(start)

	base := loc.URL()
	if u, parseErr := url.Parse(finalURL); parseErr == nil && u.IsAbs() {
		base = u
	}
	found, err := links.Extract(base, strings.NewReader(html))
	if err != nil {
		f.logger.Debug("link extraction failed", zap.String("url", target), zap.Error(err))
	}
	f.logger.Debug("rendered",
		zap.String("url", target),
		zap.String("final_url", finalURL),
		zap.Int("status", meta.Status()),
		zap.Int("links", len(found)),
		zap.Duration("rtt", rtt),
	)
	return crawler.FetchResult{Links: found, RTT: rtt}, nil
}

func (f *Fetcher) render(ctx context.Context, target string) (string, string, error) {
	var (
		html     string
		finalURL string
	)
	actions := []chromedp.Action{
		f.networkSetupAction(),
		chromedp.Navigate(target),
		chromedp.WaitReady("body", chromedp.ByQuery),
	}
	if f.cfg.SettleDelay > 0 {
		actions = append(actions, chromedp.Sleep(f.cfg.SettleDelay))
	}
	actions = append(actions,
		chromedp.Location(&finalURL),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err := chromedp.Run(ctx, actions...); err != nil {
		return "", "", fmt.Errorf("chromedp run: %w", err)
	}
	return html, finalURL, nil
}

func (f *Fetcher) networkSetupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if f.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(f.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}

func (f *Fetcher) acquire(ctx context.Context) error {
	if f.limiter == nil {
		return nil
	}
	select {
	case f.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("headless slot wait canceled: %w", ctx.Err())
	}
}

func (f *Fetcher) release() {
	if f.limiter == nil {
		return
	}
	<-f.limiter
}

func (f *Fetcher) navTimeout() time.Duration {
	if f.cfg.NavigationTimeout > 0 {
		return f.cfg.NavigationTimeout
	}
	return defaultNavigationTimeout
}

// documentMeta remembers the status of the top-level document response.
type documentMeta struct {
	mu     sync.Mutex
	status int
}

func (m *documentMeta) captureEvent(ev any) {
	resp, ok := ev.(*network.EventResponseReceived)
	if !ok || resp.Type != network.ResourceTypeDocument || resp.Response == nil {
		return
	}
	m.mu.Lock()
	m.status = int(resp.Response.Status)
	m.mu.Unlock()
}

// Status returns the captured status, or 0 if none was seen.
func (m *documentMeta) Status() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}
