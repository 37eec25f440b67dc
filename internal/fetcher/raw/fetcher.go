// Package rawfetcher implements crawler.Fetcher over a bare TCP or TLS
// socket: one HTTP/1.1 GET with "Connection: close", read until the peer
// hangs up.
package rawfetcher

import (
	"bufio"
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/hostcrawl/internal/crawler"
	"github.com/JakeFAU/hostcrawl/internal/fetcher/links"
)

const (
	defaultUserAgent    = "hostcrawl/1.0"
	defaultMaxBodyBytes = 4 << 20
	defaultDialTimeout  = 10 * time.Second
)

// Config controls the raw fetcher.
type Config struct {
	UserAgent string
	// MaxBodyBytes caps how much of each response is read and parsed.
	MaxBodyBytes int64
	DialTimeout  time.Duration
	// TLSConfig is cloned for every https connection. Nil uses system roots.
	TLSConfig *tls.Config
	Logger    *zap.Logger
}

// Fetcher dials the location directly and parses links from the body.
type Fetcher struct {
	cfg    Config
	logger *zap.Logger
}

var _ crawler.Fetcher = (*Fetcher)(nil)

// New builds a Fetcher, filling unset fields with defaults.
func New(cfg Config) *Fetcher {
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = defaultDialTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{cfg: cfg, logger: logger}
}

// Page is one raw response.
type Page struct {
	Status int
	// Body holds at most MaxBodyBytes of the response body.
	Body []byte
	RTT  time.Duration
}

// Fetch performs the GET and extracts the page's links. Any HTTP status
// counts as a successful fetch.
func (f *Fetcher) Fetch(ctx context.Context, loc crawler.Location) (crawler.FetchResult, error) {
	page, err := f.Get(ctx, loc)
	if err != nil {
		return crawler.FetchResult{}, err
	}
	target := loc.String()
	found, err := links.Extract(loc.URL(), bytes.NewReader(page.Body))
	if err != nil {
		// The page was fetched; unparseable markup just yields no links.
		f.logger.Debug("link extraction failed", zap.String("url", target), zap.Error(err))
	}
	f.logger.Debug("fetched",
		zap.String("url", target),
		zap.Int("status", page.Status),
		zap.Int("bytes", len(page.Body)),
		zap.Int("links", len(found)),
		zap.Duration("rtt", page.RTT),
	)
	return crawler.FetchResult{Links: found, RTT: page.RTT}, nil
}

// Get performs the GET and returns the raw response. The RTT covers writing
// the request and reading the response to the end; dialing is not included.
func (f *Fetcher) Get(ctx context.Context, loc crawler.Location) (Page, error) {
	target := loc.String()
	conn, err := f.dial(ctx, loc)
	if err != nil {
		return Page{}, crawler.ClassifyFetchError(target, fmt.Errorf("dial %s: %w", loc.Address(), err))
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	// Unblock reads and writes as soon as ctx ends.
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Unix(1, 0))
	})
	defer stop()

	start := time.Now()
	if _, err := io.WriteString(conn, f.requestLine(loc)); err != nil {
		return Page{}, f.failure(ctx, target, "write request", err)
	}
	status, body, err := f.readResponse(conn)
	if err != nil {
		return Page{}, f.failure(ctx, target, "read response", err)
	}
	return Page{Status: status, Body: body, RTT: time.Since(start)}, nil
}

func (f *Fetcher) dial(ctx context.Context, loc crawler.Location) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: f.cfg.DialTimeout}
	if loc.Scheme() != "https" {
		return dialer.DialContext(ctx, "tcp", loc.Address())
	}
	tlsCfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if f.cfg.TLSConfig != nil {
		tlsCfg = f.cfg.TLSConfig.Clone()
	}
	if tlsCfg.ServerName == "" {
		tlsCfg.ServerName = loc.Host()
	}
	td := &tls.Dialer{NetDialer: dialer, Config: tlsCfg}
	return td.DialContext(ctx, "tcp", loc.Address())
}

func (f *Fetcher) requestLine(loc crawler.Location) string {
	return fmt.Sprintf("GET %s HTTP/1.1\r\nHost: %s\r\nUser-Agent: %s\r\nAccept: text/html,*/*;q=0.8\r\nConnection: close\r\n\r\n",
		loc.RequestURI(), loc.URL().Host, f.cfg.UserAgent)
}

// readResponse parses the status line and headers, then reads the body
// until EOF or the size cap, discarding anything beyond the cap.
func (f *Fetcher) readResponse(conn net.Conn) (int, []byte, error) {
	resp, err := http.ReadResponse(bufio.NewReader(conn), nil)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxBodyBytes))
	if err != nil {
		return 0, nil, err
	}
	if _, err := io.Copy(io.Discard, resp.Body); err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return 0, nil, err
	}
	return resp.StatusCode, body, nil
}

func (f *Fetcher) failure(ctx context.Context, target, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		err = fmt.Errorf("%s: %w (%w)", op, ctxErr, err)
	} else {
		err = fmt.Errorf("%s: %w", op, err)
	}
	return crawler.ClassifyFetchError(target, err)
}
