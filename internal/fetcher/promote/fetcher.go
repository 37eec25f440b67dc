// Package promote implements a two-stage fetcher: a cheap raw probe, then a
// headless render for pages that look client rendered.
package promote

import (
	"bytes"
	"context"

	"github.com/PuerkitoBio/goquery"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/JakeFAU/hostcrawl/internal/crawler"
	"github.com/JakeFAU/hostcrawl/internal/fetcher/links"
	rawfetcher "github.com/JakeFAU/hostcrawl/internal/fetcher/raw"
)

var promotionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "crawler_headless_promotions_total",
	Help: "Probed pages escalated to a headless render, labeled by result.",
}, []string{"result"})

// Prober performs the first, raw request.
type Prober interface {
	Get(ctx context.Context, loc crawler.Location) (rawfetcher.Page, error)
}

// Fetcher probes every page and renders the ones the Detector flags.
type Fetcher struct {
	probe    Prober
	renderer crawler.Fetcher
	detector *Detector
	logger   *zap.Logger
}

var _ crawler.Fetcher = (*Fetcher)(nil)

// New builds a promoting fetcher. A nil detector uses NewDetector(0).
func New(probe Prober, renderer crawler.Fetcher, detector *Detector, logger *zap.Logger) *Fetcher {
	if detector == nil {
		detector = NewDetector(0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{probe: probe, renderer: renderer, detector: detector, logger: logger}
}

// Fetch returns the probe's links, plus the rendered page's links when the
// page was promoted. The RTT is always the probe's: rendering time is not
// network round trip time. A failed render falls back to the probe result.
func (f *Fetcher) Fetch(ctx context.Context, loc crawler.Location) (crawler.FetchResult, error) {
	page, err := f.probe.Get(ctx, loc)
	if err != nil {
		return crawler.FetchResult{}, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		f.logger.Debug("probe body not parseable", zap.String("url", loc.String()), zap.Error(err))
		doc = nil
	}
	var found []string
	if doc != nil {
		found = links.FromDocument(loc.URL(), doc)
	}
	result := crawler.FetchResult{Links: found, RTT: page.RTT}

	if f.renderer == nil || !f.detector.ShouldRender(page.Status, page.Body, doc) {
		return result, nil
	}
	rendered, err := f.renderer.Fetch(ctx, loc)
	if err != nil {
		promotionsTotal.WithLabelValues("failed").Inc()
		f.logger.Debug("headless render failed; keeping probe links",
			zap.String("url", loc.String()),
			zap.Error(err),
		)
		return result, nil
	}
	promotionsTotal.WithLabelValues("rendered").Inc()
	result.Links = union(result.Links, rendered.Links)
	f.logger.Debug("page promoted to headless",
		zap.String("url", loc.String()),
		zap.Int("probe_links", len(found)),
		zap.Int("links", len(result.Links)),
	)
	return result, nil
}

// union appends b's entries missing from a, keeping first-seen order.
func union(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, l := range list {
			if _, dup := seen[l]; dup {
				continue
			}
			seen[l] = struct{}{}
			out = append(out, l)
		}
	}
	return out
}
