// Package api hosts the optional status server for a running crawl.
// Routes:
//   - GET /healthz for liveness probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /status for the live crawl snapshot.
package api
