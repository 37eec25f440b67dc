package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestInitIsIdempotent(t *testing.T) {
	Init()
	first := statusRequests
	Init()
	require.Same(t, first, statusRequests)
	require.NotNil(t, statusLatency)
	require.NotNil(t, statusInFlight)
}

func TestMiddlewareLabelsByRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/status", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("{}"))
	})
	r.Get("/hosts/{host}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	ts := httptest.NewServer(r)
	defer ts.Close()

	okBefore := testutil.ToFloat64(statusRequests.WithLabelValues("/status", "200"))
	missBefore := testutil.ToFloat64(statusRequests.WithLabelValues("/hosts/{host}", "404"))
	for _, path := range []string{"/status", "/hosts/a.test", "/hosts/b.test"} {
		resp, err := http.Get(ts.URL + path)
		require.NoError(t, err)
		require.NoError(t, resp.Body.Close())
	}

	require.Equal(t, okBefore+1, testutil.ToFloat64(statusRequests.WithLabelValues("/status", "200")))
	require.Equal(t, missBefore+2, testutil.ToFloat64(statusRequests.WithLabelValues("/hosts/{host}", "404")))
	require.Equal(t, 0.0, testutil.ToFloat64(statusInFlight))
}

func TestRouteOfUnmatchedRequest(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/nowhere", nil)
	require.Equal(t, unmatchedRoute, routeOf(req))
}

func TestHandlerExposesCollectors(t *testing.T) {
	ObserveRequest("/probe", http.StatusOK, time.Millisecond)
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "hostcrawl_status_requests_total")
}
