package crawler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AdmissionsTotal counts frontier admission decisions by result.
	AdmissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crawler_frontier_admissions_total",
		Help: "Frontier admission decisions, labeled by result (admitted or a rejection reason).",
	}, []string{"result"})
	// FrontierDepth tracks locations waiting for dispatch.
	FrontierDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "crawler_frontier_depth",
		Help: "Number of admitted locations waiting for dispatch.",
	})
	// ActiveJobs tracks jobs currently holding a worker slot.
	ActiveJobs = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "crawler_active_jobs",
		Help: "Number of fetch jobs currently in flight.",
	})
	// PagesVisited counts successful completions merged into the result log.
	PagesVisited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crawler_pages_visited_total",
		Help: "The total number of hosts successfully visited and recorded.",
	})
	// FetchFailures counts failed jobs by failure kind.
	FetchFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crawler_fetch_failures_total",
		Help: "The total number of failed fetch jobs, labeled by kind.",
	}, []string{"kind"})
	// LateCompletions counts completions that arrived after the budget was spent.
	LateCompletions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crawler_late_completions_total",
		Help: "Completions dropped because the page budget was already reached or the crawl was stopping.",
	})
)
