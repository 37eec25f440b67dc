package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the crawl milestone an Event reports.
type Stage string

// Supported progress stages.
const (
	StageCrawlStart Stage = "CRAWL_START"
	StageDispatch   Stage = "DISPATCH"
	StageFetchDone  Stage = "FETCH_DONE"
	StageFetchError Stage = "FETCH_ERROR"
	StageCrawlDone  Stage = "CRAWL_DONE"
)

// Event is one crawl milestone.
type Event struct {
	// RunID identifies the crawl using the 16-byte UUID form.
	RunID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS    time.Time
	Stage Stage
	// Host scopes fetch events to the visited host.
	Host string
	URL  string
	// Links is the number of links a successful fetch returned.
	Links int
	// Visited is the visited counter observed after the event.
	Visited int
	// Kind carries the failure kind for FETCH_ERROR.
	Kind string
	// Dur is the fetch RTT, or the crawl wall time for CRAWL_DONE.
	Dur  time.Duration
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == [16]byte{} {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageCrawlStart, StageCrawlDone:
	case StageDispatch, StageFetchDone:
		if e.Host == "" {
			return fmt.Errorf("%s requires host", e.Stage)
		}
	case StageFetchError:
		if e.Host == "" {
			return errors.New("fetch error requires host")
		}
		if e.Kind == "" {
			return errors.New("fetch error requires kind")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// RunUUID converts the binary run ID to uuid.UUID.
func (e Event) RunUUID() uuid.UUID {
	return uuid.UUID(e.RunID)
}

// NewRunID returns a time-ordered run identifier, falling back to a random
// one if the v7 generator fails.
func NewRunID() [16]byte {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return [16]byte(id)
}
