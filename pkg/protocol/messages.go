package protocol

import (
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/go-go-golems/blockchat/pkg/blocks"
)

// MessageType is the wire discriminator of a channel message.
type MessageType string

const (
	// client → server
	TypeUserMessage MessageType = "user_message"
	TypeInteraction MessageType = "interaction"

	// server → client
	TypeStreamChunk    MessageType = "stream_chunk"
	TypeStreamComplete MessageType = "stream_complete"
	TypeError          MessageType = "error"
)

var (
	ErrUnknownMessageType = errors.New("unknown message type")
	ErrMalformedMessage   = errors.New("malformed message")
)

// Inbound is a message sent by the client.
type Inbound interface {
	Type() MessageType
}

// Outbound is a message sent by the server. TurnID is empty for errors that
// are not tied to a turn.
type Outbound interface {
	Type() MessageType
	TurnID() string
}

type UserMessage struct {
	Text string `json:"text"`
}

func (m *UserMessage) Type() MessageType { return TypeUserMessage }

func (m *UserMessage) MarshalJSON() ([]byte, error) {
	type alias UserMessage
	return json.Marshal(struct {
		Type MessageType `json:"type"`
		*alias
	}{TypeUserMessage, (*alias)(m)})
}

// Interaction resolves an interactive block by id.
type Interaction struct {
	BlockID string                  `json:"blockId"`
	Value   blocks.InteractionValue `json:"value"`
}

func (m *Interaction) Type() MessageType { return TypeInteraction }

func (m *Interaction) MarshalJSON() ([]byte, error) {
	type alias Interaction
	return json.Marshal(struct {
		Type MessageType `json:"type"`
		*alias
	}{TypeInteraction, (*alias)(m)})
}

// StreamChunk carries one block of an assistant turn.
type StreamChunk struct {
	Turn  string       `json:"turnId"`
	Block blocks.Block `json:"block"`
}

func (m *StreamChunk) Type() MessageType { return TypeStreamChunk }
func (m *StreamChunk) TurnID() string    { return m.Turn }

func (m *StreamChunk) MarshalJSON() ([]byte, error) {
	type alias StreamChunk
	return json.Marshal(struct {
		Type MessageType `json:"type"`
		*alias
	}{TypeStreamChunk, (*alias)(m)})
}

func (m *StreamChunk) UnmarshalJSON(data []byte) error {
	var raw struct {
		Turn  string          `json:"turnId"`
		Block json.RawMessage `json:"block"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw.Block) == 0 {
		return errors.Wrap(ErrMalformedMessage, "stream_chunk without block")
	}
	b, err := blocks.DecodeBlock(raw.Block)
	if err != nil {
		return errors.Wrap(err, "stream_chunk block")
	}
	m.Turn = raw.Turn
	m.Block = b
	return nil
}

// StreamComplete ends an assistant turn.
type StreamComplete struct {
	Turn          string   `json:"turnId"`
	SuggestedNext []string `json:"suggestedNext,omitempty"`
}

func (m *StreamComplete) Type() MessageType { return TypeStreamComplete }
func (m *StreamComplete) TurnID() string    { return m.Turn }

func (m *StreamComplete) MarshalJSON() ([]byte, error) {
	type alias StreamComplete
	return json.Marshal(struct {
		Type MessageType `json:"type"`
		*alias
	}{TypeStreamComplete, (*alias)(m)})
}

// Error reports a failed request. When Turn is set it also terminates that turn.
type Error struct {
	Message string `json:"message"`
	Turn    string `json:"turnId,omitempty"`
}

func (m *Error) Type() MessageType { return TypeError }
func (m *Error) TurnID() string    { return m.Turn }

func (m *Error) MarshalJSON() ([]byte, error) {
	type alias Error
	return json.Marshal(struct {
		Type MessageType `json:"type"`
		*alias
	}{TypeError, (*alias)(m)})
}

var (
	_ Inbound  = (*UserMessage)(nil)
	_ Inbound  = (*Interaction)(nil)
	_ Outbound = (*StreamChunk)(nil)
	_ Outbound = (*StreamComplete)(nil)
	_ Outbound = (*Error)(nil)
)

func readType(data []byte) (MessageType, error) {
	var hdr struct {
		Type MessageType `json:"type"`
	}
	if err := json.Unmarshal(data, &hdr); err != nil {
		return "", errors.Wrap(ErrMalformedMessage, err.Error())
	}
	if hdr.Type == "" {
		return "", errors.Wrap(ErrMalformedMessage, "missing type")
	}
	return hdr.Type, nil
}

// DecodeInbound decodes a client message.
func DecodeInbound(data []byte) (Inbound, error) {
	t, err := readType(data)
	if err != nil {
		return nil, err
	}
	var ret Inbound
	switch t {
	case TypeUserMessage:
		ret = &UserMessage{}
	case TypeInteraction:
		ret = &Interaction{}
	default:
		return nil, errors.Wrapf(ErrUnknownMessageType, "inbound %q", t)
	}
	if err := json.Unmarshal(data, ret); err != nil {
		return nil, errors.Wrapf(ErrMalformedMessage, "%s: %v", t, err)
	}
	if i, ok := ret.(*Interaction); ok && i.BlockID == "" {
		return nil, errors.Wrap(ErrMalformedMessage, "interaction without blockId")
	}
	return ret, nil
}

// DecodeOutbound decodes a server message.
func DecodeOutbound(data []byte) (Outbound, error) {
	t, err := readType(data)
	if err != nil {
		return nil, err
	}
	var ret Outbound
	switch t {
	case TypeStreamChunk:
		ret = &StreamChunk{}
	case TypeStreamComplete:
		ret = &StreamComplete{}
	case TypeError:
		ret = &Error{}
	default:
		return nil, errors.Wrapf(ErrUnknownMessageType, "outbound %q", t)
	}
	if err := json.Unmarshal(data, ret); err != nil {
		return nil, errors.Wrapf(ErrMalformedMessage, "%s: %v", t, err)
	}
	if t != TypeError && ret.TurnID() == "" {
		return nil, errors.Wrapf(ErrMalformedMessage, "%s without turnId", t)
	}
	return ret, nil
}
