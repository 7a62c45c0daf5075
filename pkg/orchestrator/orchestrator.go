package orchestrator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/blockchat/pkg/generator"
	"github.com/go-go-golems/blockchat/pkg/parse"
	"github.com/go-go-golems/blockchat/pkg/protocol"
	"github.com/go-go-golems/blockchat/pkg/store"
)

const DefaultGeneratorTimeout = 60 * time.Second

var (
	ErrClosed         = errors.New("orchestrator closed")
	ErrEmptySessionID = errors.New("empty session id")
	ErrNilMessage     = errors.New("nil inbound message")
)

// Event is one inbound message of a session.
type Event struct {
	SessionID string
	Message   protocol.Inbound
	// Timeout bounds the generator call. Zero uses the orchestrator default.
	Timeout time.Duration
}

type Option func(*Orchestrator)

func WithParser(p *parse.Parser) Option {
	return func(o *Orchestrator) {
		o.parser = p
	}
}

func WithGeneratorTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// Orchestrator turns inbound events into streamed, persisted assistant turns.
//
// Events of one session are processed one at a time in submission order;
// sessions are processed in parallel. Processing runs on the orchestrator's
// own context so a vanished client does not abort a turn halfway.
type Orchestrator struct {
	store     store.MessageStore
	generator generator.Generator
	sink      Sink
	parser    *parse.Parser
	timeout   time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	sessions map[string]*sessionWorker
	closed   bool
	inflight sync.WaitGroup
}

type job struct {
	event  Event
	handle *Handle
}

type sessionWorker struct {
	id    string
	state atomic.Int32

	mu      sync.Mutex
	queue   []*job
	running bool
}

func New(s store.MessageStore, g generator.Generator, sink Sink, options ...Option) *Orchestrator {
	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		store:     s,
		generator: g,
		sink:      sink,
		parser:    parse.NewParser(parse.Options{}),
		timeout:   DefaultGeneratorTimeout,
		ctx:       ctx,
		cancel:    cancel,
		sessions:  map[string]*sessionWorker{},
	}
	for _, opt := range options {
		opt(o)
	}
	return o
}

// Submit queues an event. The returned handle completes once the event was
// fully processed.
func (o *Orchestrator) Submit(ev Event) (*Handle, error) {
	if ev.SessionID == "" {
		return nil, ErrEmptySessionID
	}
	if ev.Message == nil {
		return nil, ErrNilMessage
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return nil, ErrClosed
	}

	w, ok := o.sessions[ev.SessionID]
	if !ok {
		w = &sessionWorker{id: ev.SessionID}
		o.sessions[ev.SessionID] = w
	}
	h := newHandle(ev.SessionID, uuid.NewString())
	o.inflight.Add(1)

	w.mu.Lock()
	w.queue = append(w.queue, &job{event: ev, handle: h})
	if !w.running {
		w.running = true
		go o.drain(w)
	}
	w.mu.Unlock()

	log.Debug().Str("session_id", ev.SessionID).Str("event_id", h.EventID).
		Str("message_type", string(ev.Message.Type())).Msg("event queued")
	return h, nil
}

// State returns the current processing state of a session.
func (o *Orchestrator) State(sessionID string) State {
	o.mu.Lock()
	w, ok := o.sessions[sessionID]
	o.mu.Unlock()
	if !ok {
		return StateIdle
	}
	return State(w.state.Load())
}

// Close stops accepting events and waits until all queued events were processed.
func (o *Orchestrator) Close() error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	o.mu.Unlock()

	o.inflight.Wait()
	o.cancel()
	return nil
}

func (o *Orchestrator) drain(w *sessionWorker) {
	for {
		w.mu.Lock()
		if len(w.queue) == 0 {
			w.mu.Unlock()
			if o.retire(w) {
				return
			}
			continue
		}
		j := w.queue[0]
		w.queue[0] = nil
		w.queue = w.queue[1:]
		w.mu.Unlock()

		outcome := o.process(w, j)
		j.handle.setResult(outcome, nil)
		o.inflight.Done()
	}
}

// retire removes an idle worker. It returns false if an event arrived in the meantime.
func (o *Orchestrator) retire(w *sessionWorker) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.queue) > 0 {
		return false
	}
	w.running = false
	if o.sessions[w.id] == w {
		delete(o.sessions, w.id)
	}
	return true
}

func (o *Orchestrator) setState(w *sessionWorker, s State) {
	prev := State(w.state.Swap(int32(s)))
	if prev != s {
		log.Trace().Str("session_id", w.id).Str("from", prev.String()).Str("state", s.String()).Msg("session state")
	}
}
