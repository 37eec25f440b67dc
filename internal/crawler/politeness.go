package crawler

import (
	"context"
	"time"
)

// pauseController abstracts how the orchestrator waits between dispatches.
type pauseController interface {
	// Pause blocks for delay or until ctx is done, whichever comes first. It
	// returns ctx.Err() when the wait was cut short.
	Pause(ctx context.Context, delay time.Duration) error
}

type timerPauseController struct{}

func (p *timerPauseController) Pause(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
