package crawler

import (
	"errors"
	"sync"

	"go.uber.org/zap"
)

// Aggregator owns all mutable crawl state: the frontier, the seen-host set,
// the visited counter, the result log and the active job count. Every
// mutation happens under mu and wakes anyone waiting on the changed channel.
type Aggregator struct {
	mu       sync.Mutex
	changed  chan struct{}
	frontier *Frontier
	maxPages int

	state    State
	visited  int
	active   int
	results  []ResultRecord
	keepLate bool

	observe func(out Outcome, merged bool, visited int)
	logger  *zap.Logger
}

// NewAggregator wraps frontier with a crawl bounded by maxPages.
func NewAggregator(frontier *Frontier, maxPages int, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{
		changed:  make(chan struct{}),
		frontier: frontier,
		maxPages: maxPages,
		state:    StateRunning,
		logger:   logger,
	}
}

// Seed admits each seed URL and returns how many were accepted.
func (a *Aggregator) Seed(seeds []string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	admitted := 0
	for _, s := range seeds {
		if a.frontier.TryAdmit(s) {
			admitted++
		}
	}
	if admitted > 0 {
		a.notifyLocked()
	}
	return admitted
}

// claim dequeues the next location and reserves a slot for it, provided the
// crawl is running, the budget is not spent and fewer than capacity jobs are
// active.
func (a *Aggregator) claim(capacity int) (Location, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != StateRunning || a.visited >= a.maxPages || a.active >= capacity {
		return Location{}, false
	}
	loc, ok := a.frontier.Dequeue()
	if !ok {
		return Location{}, false
	}
	a.active++
	ActiveJobs.Set(float64(a.active))
	a.notifyLocked()
	return loc, true
}

// release returns a slot reserved by claim whose job never started.
func (a *Aggregator) release() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.active--
	ActiveJobs.Set(float64(a.active))
	a.notifyLocked()
}

// OnJobComplete merges one job outcome. It must be called exactly once per
// claimed job. The slot is released in the same critical section.
func (a *Aggregator) OnJobComplete(out Outcome) {
	merged, visited := a.merge(out)
	if a.observe != nil {
		a.observe(out, merged, visited)
	}
}

func (a *Aggregator) merge(out Outcome) (bool, int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	defer a.notifyLocked()

	a.active--
	ActiveJobs.Set(float64(a.active))

	host := out.Job.Location.Host()
	if a.state != StateRunning && !a.keepLate {
		LateCompletions.Inc()
		a.logger.Debug("ignoring completion after shutdown", zap.String("host", host))
		return false, a.visited
	}
	if !out.Succeeded() {
		kind := FetchTransport
		var fe *FetchError
		if errors.As(out.Err, &fe) {
			kind = fe.Kind
		}
		FetchFailures.WithLabelValues(string(kind)).Inc()
		a.logger.Warn("fetch failed", zap.String("host", host), zap.String("kind", string(kind)), zap.Error(out.Err))
		return false, a.visited
	}
	if a.visited >= a.maxPages {
		LateCompletions.Inc()
		a.logger.Debug("page budget already reached", zap.String("host", host))
		return false, a.visited
	}

	a.results = append(a.results, ResultRecord{Host: host, RTT: out.Result.RTT})
	a.visited++
	PagesVisited.Inc()
	if a.state == StateRunning {
		for _, link := range out.Result.Links {
			a.frontier.TryAdmit(link)
		}
	}
	return true, a.visited
}

// beginShutdown moves the crawl to DRAINING. With keepLate, completions
// that arrive while draining are still merged; otherwise they are dropped.
func (a *Aggregator) beginShutdown(keepLate bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != StateRunning {
		return
	}
	a.state = StateDraining
	a.keepLate = keepLate
	a.notifyLocked()
}

// finish marks the crawl STOPPED.
func (a *Aggregator) finish() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.state = StateStopped
	a.notifyLocked()
}

// watch returns the current snapshot together with a channel that is closed
// on the next mutation.
func (a *Aggregator) watch() (Snapshot, <-chan struct{}) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshotLocked(), a.changed
}

// Snapshot returns a consistent view of the counters.
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshotLocked()
}

// Results returns a copy of the result log in completion order.
func (a *Aggregator) Results() []ResultRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]ResultRecord(nil), a.results...)
}

func (a *Aggregator) snapshotLocked() Snapshot {
	return Snapshot{
		State:    a.state,
		Visited:  a.visited,
		Active:   a.active,
		Frontier: a.frontier.Len(),
		Seen:     a.frontier.SeenCount(),
		MaxPages: a.maxPages,
	}
}

func (a *Aggregator) notifyLocked() {
	close(a.changed)
	a.changed = make(chan struct{})
}
