package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/hostcrawl/internal/crawler"
)

func location(t *testing.T, raw string) crawler.Location {
	t.Helper()
	loc, err := crawler.ParseLocation(raw)
	require.NoError(t, err)
	return loc
}

func TestFetchCollectsAbsoluteLinks(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<html><body><a href="/a.html">a</a><a href="https://b.example/">b</a></body></html>`)
	}))
	defer srv.Close()

	f := New(Config{UserAgent: "colly-test", Timeout: time.Second})
	res, err := f.Fetch(context.Background(), location(t, srv.URL+"/index.html"))
	require.NoError(t, err)
	require.Equal(t, []string{srv.URL + "/a.html", "https://b.example/"}, res.Links)
	require.Positive(t, res.RTT)
}

func TestFetchTreatsErrorStatusAsPage(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `<a href="/retry">retry</a>`)
	}))
	defer srv.Close()

	res, err := New(Config{}).Fetch(context.Background(), location(t, srv.URL))
	require.NoError(t, err)
	require.Equal(t, []string{srv.URL + "/retry"}, res.Links)
}

func TestFetchHonorsContext(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := New(Config{Timeout: time.Minute}).Fetch(ctx, location(t, srv.URL))
	var fe *crawler.FetchError
	require.True(t, errors.As(err, &fe))
	require.Equal(t, crawler.FetchTimeout, fe.Kind)
}

func TestBuildCollectorAppliesConfig(t *testing.T) {
	t.Parallel()

	f := New(Config{UserAgent: "coverage-agent", Timeout: time.Second, MaxBodyBytes: 1024})
	collector := f.buildCollector(&visit{})
	require.Equal(t, "coverage-agent", collector.UserAgent)
	require.True(t, collector.IgnoreRobotsTxt)
	require.True(t, collector.AllowURLRevisit)
	require.Equal(t, 1024, collector.MaxBodySize)
}

func TestConfigureCollectorHooks(t *testing.T) {
	t.Parallel()

	f := New(Config{})
	v := &visit{}
	hooks := &stubHooks{}
	f.configureCollectorHooks(hooks, v)
	require.NotNil(t, hooks.onRequest)
	require.NotNil(t, hooks.onResponse)
	require.NotNil(t, hooks.onHTML)
	require.NotNil(t, hooks.onError)
	require.Equal(t, "a[href]", hooks.selector)

	req := &colly.Request{Headers: &http.Header{}}
	hooks.onRequest(req)
	require.Equal(t, "close", req.Headers.Get("Connection"))
	require.False(t, v.start.IsZero())

	hooks.onError(nil, errors.New("boom"))
	require.EqualError(t, v.err, "boom")
}

type stubHooks struct {
	onRequest  colly.RequestCallback
	onResponse colly.ResponseCallback
	onHTML     colly.HTMLCallback
	selector   string
	onError    colly.ErrorCallback
}

func (s *stubHooks) OnRequest(cb colly.RequestCallback) {
	s.onRequest = cb
}

func (s *stubHooks) OnResponse(cb colly.ResponseCallback) {
	s.onResponse = cb
}

func (s *stubHooks) OnHTML(selector string, cb colly.HTMLCallback) {
	s.selector = selector
	s.onHTML = cb
}

func (s *stubHooks) OnError(cb colly.ErrorCallback) {
	s.onError = cb
}
