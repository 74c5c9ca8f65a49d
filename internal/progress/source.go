// Package progress turns the service's two progress contracts into one
// stream of events. A Source runs one generation and reports what happens to
// it; whoever reads the events owns the state machine.
package progress

import (
	"context"
	"fmt"

	"github.com/mando222/ai-image-gen/internal/form"
	"github.com/mando222/ai-image-gen/internal/genapi"
)

// EventKind identifies what an Event reports.
type EventKind int

const (
	// EventStarted means the service accepted the request.
	EventStarted EventKind = iota
	// EventProgress carries a new percentage.
	EventProgress
	// EventCompleted carries the result image URL. Terminal.
	EventCompleted
	// EventFailed carries the failure. Terminal.
	EventFailed
	// EventTickError reports a tolerated polling failure.
	EventTickError
)

func (k EventKind) String() string {
	switch k {
	case EventStarted:
		return "started"
	case EventProgress:
		return "progress"
	case EventCompleted:
		return "completed"
	case EventFailed:
		return "failed"
	case EventTickError:
		return "tick_error"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event is one observation of a running generation.
type Event struct {
	Kind     EventKind
	JobID    string
	Percent  float64
	ImageURL string
	Err      error
}

// Terminal reports whether no further events follow this one.
func (e Event) Terminal() bool {
	return e.Kind == EventCompleted || e.Kind == EventFailed
}

// Submission is everything a Source needs to start one generation.
type Submission struct {
	Form *form.Form
	// Loras restricts the submitted LoRA ids to the active group. Nil sends
	// the selection unfiltered.
	Loras *genapi.LoraGroups
}

// Source runs one generation, sending events in arrival order. Run returns
// after sending exactly one terminal event, or early without one when ctx is
// cancelled. Run does not close events.
type Source interface {
	Name() string
	Run(ctx context.Context, sub Submission, events chan<- Event)
}

// emit sends ev unless ctx is cancelled first.
func emit(ctx context.Context, events chan<- Event, ev Event) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func fail(ctx context.Context, events chan<- Event, jobID string, err error) {
	emit(ctx, events, Event{Kind: EventFailed, JobID: jobID, Err: err})
}
