package client

import (
	"context"
	"errors"
	"strings"
	"sync"

	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/blockchat/pkg/blocks"
	"github.com/go-go-golems/blockchat/pkg/conversation"
	"github.com/go-go-golems/blockchat/pkg/protocol"
)

var (
	ErrInputSuspended    = errors.New("input is suspended until the pending interaction is resolved or skipped")
	ErrEmptyMessage      = errors.New("empty message")
	ErrNotPending        = errors.New("block is not awaiting a response")
	ErrProtocolViolation = errors.New("protocol violation")
)

// Sender is the client half of the channel.
type Sender interface {
	Send(ctx context.Context, msg protocol.Inbound) error
}

// Gate tells whether free-text input is accepted.
type Gate int

const (
	InputEnabled Gate = iota
	InputSuspended
)

func (g Gate) String() string {
	if g == InputSuspended {
		return "suspended"
	}
	return "enabled"
}

// EntryStatus is the lifecycle of a rendered turn.
type EntryStatus string

const (
	EntryStreaming EntryStatus = "streaming"
	EntryComplete  EntryStatus = "complete"
	EntryFailed    EntryStatus = "failed"
	// EntrySent is a user turn sent by this client.
	EntrySent EntryStatus = "sent"
)

// Entry is one rendered turn of the transcript.
type Entry struct {
	Role          conversation.Role
	TurnID        string
	Blocks        []blocks.Block
	Status        EntryStatus
	SuggestedNext []string
	Error         string
}

// Session is the client-side view of a conversation: the rendered transcript
// and the interaction gate. It is safe for concurrent use; outbound messages
// are fed through HandleOutbound in the order they were received.
type Session struct {
	sender Sender

	mu       sync.Mutex
	entries  []*Entry
	byTurn   map[string]*Entry
	pending  []blocks.Interactive
	seq      *protocol.Sequencer
	awaiting int
	lastErr  string

	updates chan struct{}
}

func NewSession(sender Sender) *Session {
	return &Session{
		sender:  sender,
		byTurn:  map[string]*Entry{},
		seq:     protocol.NewSequencer(),
		updates: make(chan struct{}, 1),
	}
}

// Updates receives a value whenever the transcript or the gate changed.
// Notifications are coalesced.
func (s *Session) Updates() <-chan struct{} {
	return s.updates
}

func (s *Session) notify() {
	select {
	case s.updates <- struct{}{}:
	default:
	}
}

func (s *Session) Gate() Gate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gateLocked()
}

func (s *Session) gateLocked() Gate {
	if len(s.pending) > 0 {
		return InputSuspended
	}
	return InputEnabled
}

// Pending returns the interactive blocks awaiting a response.
func (s *Session) Pending() []blocks.Interactive {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]blocks.Interactive(nil), s.pending...)
}

// Transcript returns a copy of the rendered turns.
func (s *Session) Transcript() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	ret := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		cp := *e
		cp.Blocks = append([]blocks.Block(nil), e.Blocks...)
		cp.SuggestedNext = append([]string(nil), e.SuggestedNext...)
		ret = append(ret, cp)
	}
	return ret
}

// LastError returns the message of the last error that was not tied to a turn.
func (s *Session) LastError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// SubmitText sends a free-text message. It fails with ErrInputSuspended
// while an interactive block is pending.
func (s *Session) SubmitText(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}
	s.mu.Lock()
	if s.gateLocked() == InputSuspended {
		s.mu.Unlock()
		return ErrInputSuspended
	}
	entry := s.expectTurnLocked(blocks.NewText(text))
	s.mu.Unlock()

	if err := s.sender.Send(ctx, &protocol.UserMessage{Text: text}); err != nil {
		s.mu.Lock()
		s.unexpectTurnLocked(entry)
		s.mu.Unlock()
		return pkgerrors.Wrap(err, "send user message")
	}
	s.notify()
	return nil
}

// expectTurnLocked records a sent user turn. The server answers it with a
// turn id this client has not seen yet.
func (s *Session) expectTurnLocked(b blocks.Block) *Entry {
	s.awaiting++
	e := &Entry{Role: conversation.RoleUser, Blocks: []blocks.Block{b}, Status: EntrySent}
	s.entries = append(s.entries, e)
	return e
}

func (s *Session) unexpectTurnLocked(e *Entry) {
	if s.awaiting > 0 {
		s.awaiting--
	}
	for i, x := range s.entries {
		if x == e {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			break
		}
	}
}

// Resolve answers a pending interactive block. All pending blocks are
// cleared, so at most one response is ever sent for a turn's interactions.
// If sending fails the pending blocks are restored.
func (s *Session) Resolve(ctx context.Context, blockID string, value blocks.InteractionValue) error {
	s.mu.Lock()
	var target blocks.Interactive
	for _, p := range s.pending {
		if p.BlockID() == blockID {
			target = p
			break
		}
	}
	if target == nil {
		s.mu.Unlock()
		return pkgerrors.Wrapf(ErrNotPending, "block %q", blockID)
	}
	if err := target.Accepts(value); err != nil {
		s.mu.Unlock()
		return err
	}
	claimed := s.pending
	s.pending = nil
	entry := s.expectTurnLocked(blocks.NewInteractionResponse(blockID, value))
	s.mu.Unlock()

	if err := s.sender.Send(ctx, &protocol.Interaction{BlockID: blockID, Value: value}); err != nil {
		s.mu.Lock()
		s.unexpectTurnLocked(entry)
		if len(s.pending) == 0 {
			s.pending = claimed
		}
		s.mu.Unlock()
		return pkgerrors.Wrap(err, "send interaction")
	}
	s.notify()
	return nil
}

// Skip dismisses all pending interactive blocks without answering them.
func (s *Session) Skip() {
	s.mu.Lock()
	s.pending = nil
	s.mu.Unlock()
	s.notify()
}

// HandleOutbound applies a server message. Messages that break the turn
// sequence, or that belong to a turn this client never asked for, are
// logged and ignored; the returned error wraps ErrProtocolViolation.
func (s *Session) HandleOutbound(msg protocol.Outbound) error {
	err := s.handleOutbound(msg)
	if err != nil {
		log.Warn().Err(err).Str("turn_id", msg.TurnID()).Str("message_type", string(msg.Type())).
			Msg("ignoring server message")
		return err
	}
	s.notify()
	return nil
}

func (s *Session) handleOutbound(msg protocol.Outbound) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := msg.TurnID()
	if id == "" {
		e, ok := msg.(*protocol.Error)
		if !ok {
			return pkgerrors.Wrapf(ErrProtocolViolation, "%s without turn id", msg.Type())
		}
		s.lastErr = e.Message
		if s.awaiting > 0 {
			s.awaiting--
		}
		return nil
	}

	if s.seq.Terminated(id) {
		return pkgerrors.Wrapf(ErrProtocolViolation, "turn %s already %s", id, s.seq.State(id))
	}
	entry, known := s.byTurn[id]
	if !known {
		if s.awaiting == 0 {
			return pkgerrors.Wrapf(ErrProtocolViolation, "unknown turn %s", id)
		}
		s.awaiting--
		entry = &Entry{Role: conversation.RoleAssistant, TurnID: id, Status: EntryStreaming}
		s.byTurn[id] = entry
		s.entries = append(s.entries, entry)
	}
	if err := s.seq.Observe(msg); err != nil {
		return pkgerrors.Wrap(ErrProtocolViolation, err.Error())
	}

	switch m := msg.(type) {
	case *protocol.StreamChunk:
		entry.Blocks = append(entry.Blocks, m.Block)
		if i, ok := m.Block.(blocks.Interactive); ok {
			s.pending = append(s.pending, i)
		}
	case *protocol.StreamComplete:
		entry.Status = EntryComplete
		entry.SuggestedNext = m.SuggestedNext
	case *protocol.Error:
		entry.Status = EntryFailed
		entry.Error = m.Message
		s.discardLocked(entry)
	}
	return nil
}

// discardLocked drops the blocks of a failed turn and the pending
// interactions they introduced.
func (s *Session) discardLocked(entry *Entry) {
	dropped := map[string]struct{}{}
	for _, b := range entry.Blocks {
		dropped[b.BlockID()] = struct{}{}
	}
	entry.Blocks = nil
	kept := s.pending[:0]
	for _, p := range s.pending {
		if _, ok := dropped[p.BlockID()]; !ok {
			kept = append(kept, p)
		}
	}
	s.pending = kept
}

// LoadHistory replaces the transcript with persisted turns and rebuilds the
// gate from them, as done after reconnecting.
func (s *Session) LoadHistory(turns []*conversation.Turn) {
	s.mu.Lock()
	s.entries = nil
	s.byTurn = map[string]*Entry{}
	s.seq = protocol.NewSequencer()
	s.awaiting = 0
	s.lastErr = ""

	for _, t := range turns {
		if t == nil || t.Envelope == nil {
			continue
		}
		status := EntrySent
		if t.Role == conversation.RoleAssistant {
			status = EntryComplete
			_ = s.seq.Observe(&protocol.StreamComplete{Turn: t.ID})
		}
		e := &Entry{
			Role:          t.Role,
			TurnID:        t.ID,
			Blocks:        append([]blocks.Block(nil), t.Envelope.Blocks...),
			Status:        status,
			SuggestedNext: t.Envelope.Metadata.SuggestedNext,
		}
		s.entries = append(s.entries, e)
		if t.Role == conversation.RoleAssistant {
			s.byTurn[t.ID] = e
		}
	}
	s.pending = conversation.PendingInteractive(turns)
	s.mu.Unlock()
	s.notify()
}
