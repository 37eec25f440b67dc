// Package collyfetcher implements crawler.Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/hostcrawl/internal/crawler"
)

// Config controls collector behavior.
type Config struct {
	UserAgent string
	// Timeout bounds each request inside Colly; the job context still wins
	// when it is shorter.
	Timeout      time.Duration
	MaxBodyBytes int
	Logger       *zap.Logger
}

// Fetcher implements crawler.Fetcher using the Colly collector. Robots.txt
// is not consulted and every call is an independent visit.
type Fetcher struct {
	cfg           Config
	logger        *zap.Logger
	baseCollector *colly.Collector
}

var _ crawler.Fetcher = (*Fetcher)(nil)

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnHTML(string, colly.HTMLCallback)
	OnError(colly.ErrorCallback)
}

// visit collects what the hooks observe during one Fetch.
type visit struct {
	mu    sync.Mutex
	start time.Time
	rtt   time.Duration
	links []string
	err   error
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	c := colly.NewCollector(
		colly.Async(false),
		colly.IgnoreRobotsTxt(),
		colly.AllowURLRevisit(),
		colly.ParseHTTPErrorResponse(),
	)
	if cfg.MaxBodyBytes > 0 {
		c.MaxBodySize = cfg.MaxBodyBytes
	}
	c.WithTransport(newHTTPTransport())
	return &Fetcher{cfg: cfg, logger: logger, baseCollector: c}
}

// Fetch visits loc and returns the anchors Colly resolved on the page. RTT
// spans from the request leaving to the response being read.
func (f *Fetcher) Fetch(ctx context.Context, loc crawler.Location) (crawler.FetchResult, error) {
	target := loc.String()
	v := &visit{}
	collector := f.buildCollector(v)
	if err := f.runCollector(ctx, collector, target, v); err != nil {
		return crawler.FetchResult{}, crawler.ClassifyFetchError(target, err)
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	f.logger.Debug("colly fetched", zap.String("url", target), zap.Int("links", len(v.links)), zap.Duration("rtt", v.rtt))
	return crawler.FetchResult{Links: append([]string(nil), v.links...), RTT: v.rtt}, nil
}

func (f *Fetcher) buildCollector(v *visit) *colly.Collector {
	collector := f.baseCollector.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.SetRequestTimeout(f.cfg.Timeout)
	f.configureCollectorHooks(collector, v)
	return collector
}

func (f *Fetcher) configureCollectorHooks(hooks collectorHooks, v *visit) {
	hooks.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Connection", "close")
		v.mu.Lock()
		v.start = time.Now()
		v.mu.Unlock()
	})

	hooks.OnResponse(func(_ *colly.Response) {
		v.mu.Lock()
		v.rtt = time.Since(v.start)
		v.mu.Unlock()
	})

	hooks.OnHTML("a[href]", func(e *colly.HTMLElement) {
		abs := e.Request.AbsoluteURL(e.Attr("href"))
		if abs == "" {
			return
		}
		v.mu.Lock()
		v.links = append(v.links, abs)
		v.mu.Unlock()
	})

	hooks.OnError(func(_ *colly.Response, err error) {
		v.mu.Lock()
		v.err = err
		v.mu.Unlock()
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string, v *visit) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		v.mu.Lock()
		defer v.mu.Unlock()
		if v.err != nil {
			return fmt.Errorf("colly response failed: %w", v.err)
		}
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		DisableKeepAlives:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
