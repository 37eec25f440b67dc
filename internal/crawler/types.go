package crawler

import (
	"context"
	"fmt"
	"time"
)

// Fetcher retrieves one location and returns the absolute links found on it.
// Implementations must be safe for concurrent use and should honor ctx.
type Fetcher interface {
	Fetch(ctx context.Context, loc Location) (FetchResult, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// FetchResult is what a successful fetch hands back to the aggregator.
type FetchResult struct {
	Links []string
	RTT   time.Duration
}

// Job is one dispatched fetch. It is owned by the pool slot running it.
type Job struct {
	Location  Location
	Submitted time.Time
}

// Outcome is the terminal report of a Job. Err is nil on success.
type Outcome struct {
	Job    Job
	Result FetchResult
	Err    error
}

// Succeeded reports whether the job produced a result.
func (o Outcome) Succeeded() bool {
	return o.Err == nil
}

const resultHostWidth = 40

// ResultRecord is one visited host and the round trip time of its fetch.
type ResultRecord struct {
	Host string        `json:"host"`
	RTT  time.Duration `json:"rtt"`
}

// String renders the record as "<host><padding><rtt> milliseconds".
func (r ResultRecord) String() string {
	return fmt.Sprintf("%-*s %d milliseconds", resultHostWidth-1, r.Host, r.RTT.Milliseconds())
}

// State is the orchestrator lifecycle phase.
type State int32

// Orchestrator states.
const (
	StateRunning State = iota
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Snapshot is a consistent view of the crawl counters taken under the
// aggregator lock.
type Snapshot struct {
	State    State `json:"-"`
	Visited  int   `json:"visited"`
	Active   int   `json:"active"`
	Frontier int   `json:"frontier"`
	Seen     int   `json:"seen_hosts"`
	MaxPages int   `json:"max_pages"`
}

// BudgetReached reports whether the page budget is exhausted.
func (s Snapshot) BudgetReached() bool {
	return s.Visited >= s.MaxPages
}

// DeadEnd reports whether nothing is queued and nothing is in flight.
func (s Snapshot) DeadEnd() bool {
	return s.Frontier == 0 && s.Active == 0
}
