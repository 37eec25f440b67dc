package crawler

import (
	"errors"

	"go.uber.org/zap"
)

// Frontier is the FIFO of admitted locations plus the set of hosts that have
// ever been admitted. A host enters the seen set at admission time, so two
// locations for the same host can never both be queued or in flight.
//
// Frontier is not safe for concurrent use on its own; the Aggregator's lock
// guards every call.
type Frontier struct {
	queue    []Location
	seen     map[string]struct{}
	maxDepth int
	logger   *zap.Logger
}

// NewFrontier creates an empty frontier. maxDepth <= 0 leaves the queue
// unbounded.
func NewFrontier(maxDepth int, logger *zap.Logger) *Frontier {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxDepth < 0 {
		maxDepth = 0
	}
	return &Frontier{
		seen:     make(map[string]struct{}),
		maxDepth: maxDepth,
		logger:   logger,
	}
}

// TryAdmit admits raw if it is a well formed HTML-looking http(s) URL on a
// host never seen before. Rejections are logged and reported as false; they
// never surface to the caller as errors.
func (f *Frontier) TryAdmit(raw string) bool {
	_, err := f.Admit(raw)
	if err == nil {
		return true
	}
	reason := ReasonMalformed
	var ae *AdmissionError
	if errors.As(err, &ae) {
		reason = ae.Reason
	}
	AdmissionsTotal.WithLabelValues(string(reason)).Inc()
	f.logger.Debug("link rejected", zap.String("url", raw), zap.String("reason", string(reason)), zap.Error(err))
	return false
}

// Admit is TryAdmit with the rejection reason returned as *AdmissionError.
func (f *Frontier) Admit(raw string) (Location, error) {
	loc, err := ParseLocation(raw)
	if err != nil {
		return Location{}, err
	}
	if !loc.IsHTMLPage() {
		return Location{}, &AdmissionError{URL: raw, Reason: ReasonPageType}
	}
	if _, dup := f.seen[loc.Host()]; dup {
		return Location{}, &AdmissionError{URL: raw, Reason: ReasonDuplicateHost}
	}
	if f.maxDepth > 0 && len(f.queue) >= f.maxDepth {
		return Location{}, &AdmissionError{URL: raw, Reason: ReasonFrontierFull}
	}
	f.seen[loc.Host()] = struct{}{}
	f.queue = append(f.queue, loc)
	AdmissionsTotal.WithLabelValues("admitted").Inc()
	FrontierDepth.Set(float64(len(f.queue)))
	return loc, nil
}

// Dequeue pops the oldest queued location.
func (f *Frontier) Dequeue() (Location, bool) {
	if len(f.queue) == 0 {
		return Location{}, false
	}
	loc := f.queue[0]
	f.queue[0] = Location{}
	f.queue = f.queue[1:]
	FrontierDepth.Set(float64(len(f.queue)))
	return loc, true
}

// Len returns the number of queued locations.
func (f *Frontier) Len() int {
	return len(f.queue)
}

// Seen reports whether host was ever admitted.
func (f *Frontier) Seen(host string) bool {
	_, ok := f.seen[host]
	return ok
}

// SeenCount returns the number of distinct admitted hosts.
func (f *Frontier) SeenCount() int {
	return len(f.seen)
}
