package protocol

import (
	"fmt"

	"github.com/pkg/errors"
)

var ErrSequenceViolation = errors.New("turn sequence violation")

// TurnState is the lifecycle of one assistant turn as seen on the channel.
type TurnState int

const (
	TurnUnknown TurnState = iota
	TurnStreaming
	TurnCompleted
	TurnFailed
)

func (s TurnState) String() string {
	switch s {
	case TurnStreaming:
		return "streaming"
	case TurnCompleted:
		return "completed"
	case TurnFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Sequencer checks that outbound messages follow the per-turn ordering
// rules: any number of chunks, then exactly one stream_complete or error,
// and nothing for that turn afterwards. Errors without a turn id are always
// accepted.
//
// A Sequencer is not safe for concurrent use.
type Sequencer struct {
	turns map[string]TurnState
}

func NewSequencer() *Sequencer {
	return &Sequencer{turns: map[string]TurnState{}}
}

// State returns the state of the given turn.
func (s *Sequencer) State(turnID string) TurnState {
	return s.turns[turnID]
}

// Observe records msg. It returns an error wrapping ErrSequenceViolation
// when msg is not allowed after what was observed before; the state is left
// unchanged in that case.
func (s *Sequencer) Observe(msg Outbound) error {
	id := msg.TurnID()
	if id == "" {
		if msg.Type() == TypeError {
			return nil
		}
		return errors.Wrapf(ErrSequenceViolation, "%s without turn id", msg.Type())
	}

	cur := s.turns[id]
	if cur == TurnCompleted || cur == TurnFailed {
		return errors.Wrap(ErrSequenceViolation, fmt.Sprintf("%s for turn %s which already %s", msg.Type(), id, cur))
	}

	switch msg.Type() {
	case TypeStreamChunk:
		s.turns[id] = TurnStreaming
	case TypeStreamComplete:
		s.turns[id] = TurnCompleted
	case TypeError:
		s.turns[id] = TurnFailed
	default:
		return errors.Wrapf(ErrUnknownMessageType, "outbound %q", msg.Type())
	}
	return nil
}

// Terminated reports whether the turn received its stream_complete or error.
func (s *Sequencer) Terminated(turnID string) bool {
	st := s.turns[turnID]
	return st == TurnCompleted || st == TurnFailed
}
