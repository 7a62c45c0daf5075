package blocks

import (
	"strings"
)

// Metadata carries turn-level information that is not rendered as a block.
type Metadata struct {
	Thinking      string   `json:"thinking,omitempty"`
	SuggestedNext []string `json:"suggestedNext,omitempty"`
	// ParseFailed marks envelopes synthesized from generator output that could not be parsed.
	ParseFailed bool `json:"parseFailed,omitempty"`
}

// Envelope is one conversational turn: an ordered list of blocks plus metadata.
// Envelopes are treated as immutable once persisted.
type Envelope struct {
	Blocks   Blocks   `json:"blocks"`
	Metadata Metadata `json:"metadata"`
}

// NewEnvelope builds an envelope from the given blocks.
func NewEnvelope(bs ...Block) *Envelope {
	return &Envelope{Blocks: append(Blocks{}, bs...)}
}

// NewUserTextEnvelope is the envelope persisted for a free-text user message.
func NewUserTextEnvelope(text string) *Envelope {
	return NewEnvelope(NewText(text))
}

// NewInteractionEnvelope is the envelope persisted for a resolved interactive block.
func NewInteractionEnvelope(targetBlockID string, value InteractionValue) *Envelope {
	return NewEnvelope(NewInteractionResponse(targetBlockID, value))
}

// Texts returns the text of all Text blocks, in order.
func (e *Envelope) Texts() []string {
	if e == nil {
		return nil
	}
	var ret []string
	for _, b := range e.Blocks {
		if t, ok := b.(*Text); ok {
			ret = append(ret, t.Text)
		}
	}
	return ret
}

// Interactive returns the interactive blocks of the envelope, in order.
func (e *Envelope) Interactive() []Interactive {
	if e == nil {
		return nil
	}
	var ret []Interactive
	for _, b := range e.Blocks {
		if i, ok := b.(Interactive); ok {
			ret = append(ret, i)
		}
	}
	return ret
}

// Find returns the block with the given id.
func (e *Envelope) Find(id string) (Block, bool) {
	if e == nil {
		return nil, false
	}
	for _, b := range e.Blocks {
		if b != nil && b.BlockID() == id {
			return b, true
		}
	}
	return nil, false
}

// String is a compact single-line summary used in logs.
func (e *Envelope) String() string {
	if e == nil {
		return "<nil>"
	}
	kinds := make([]string, 0, len(e.Blocks))
	for _, b := range e.Blocks {
		if b == nil {
			kinds = append(kinds, "<nil>")
			continue
		}
		kinds = append(kinds, string(b.Kind())+":"+b.BlockID())
	}
	return "[" + strings.Join(kinds, " ") + "]"
}
