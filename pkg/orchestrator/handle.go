package orchestrator

import (
	"errors"
	"sync"

	"github.com/go-go-golems/blockchat/pkg/blocks"
	"github.com/go-go-golems/blockchat/pkg/parse"
)

var ErrHandleNil = errors.New("handle is nil")

// OutcomeKind classifies how an inbound event ended.
type OutcomeKind string

const (
	// OutcomeCompleted: the assistant turn was streamed, stored and completed.
	OutcomeCompleted OutcomeKind = "completed"
	// OutcomeRejected: the event violated the protocol and was ignored.
	OutcomeRejected OutcomeKind = "rejected"
	// OutcomeGeneratorFailed: the generator failed or timed out, an error was sent.
	OutcomeGeneratorFailed OutcomeKind = "generator_failed"
	// OutcomeStoreFailed: loading or storing a turn failed, an error was sent.
	OutcomeStoreFailed OutcomeKind = "store_failed"
)

// Outcome is the result of processing one inbound event.
type Outcome struct {
	Kind OutcomeKind
	// TurnID is the id of the assistant turn, empty for rejected events.
	TurnID string
	// Envelope is the assistant envelope that was streamed, if any.
	Envelope *blocks.Envelope
	// Stage is the parser stage that produced Envelope.
	Stage parse.Stage
	Err   error
}

// Handle tracks one submitted event.
type Handle struct {
	SessionID string
	EventID   string

	done chan struct{}

	mu      sync.Mutex
	outcome *Outcome
	err     error
}

func newHandle(sessionID, eventID string) *Handle {
	return &Handle{
		SessionID: sessionID,
		EventID:   eventID,
		done:      make(chan struct{}),
	}
}

func (h *Handle) setResult(o *Outcome, err error) {
	h.mu.Lock()
	h.outcome = o
	h.err = err
	close(h.done)
	h.mu.Unlock()
}

// Wait blocks until the event was processed.
func (h *Handle) Wait() (*Outcome, error) {
	if h == nil {
		return nil, ErrHandleNil
	}
	<-h.done
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.outcome, h.err
}

// Done is closed once the event was processed.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// IsRunning reports whether the event is still queued or being processed.
func (h *Handle) IsRunning() bool {
	if h == nil {
		return false
	}
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}
