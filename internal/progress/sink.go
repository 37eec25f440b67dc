package progress

import "context"

// Sink consumes batches of progress events. Implementations must tolerate
// repeated calls and honor ctx deadlines.
type Sink interface {
	Consume(ctx context.Context, batch []Event) error
	Close(ctx context.Context) error
}

// Emitter publishes individual events. Hub satisfies it, and so does Discard.
type Emitter interface {
	Emit(evt Event)
}

type discard struct{}

func (discard) Emit(Event) {}

// Discard is an Emitter that drops every event.
var Discard Emitter = discard{}
