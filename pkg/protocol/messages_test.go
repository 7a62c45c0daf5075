package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/blockchat/pkg/blocks"
)

func TestDecodeInbound(t *testing.T) {
	msg, err := DecodeInbound([]byte(`{"type":"user_message","text":"hello"}`))
	require.NoError(t, err)
	um, ok := msg.(*UserMessage)
	require.True(t, ok)
	assert.Equal(t, "hello", um.Text)

	msg, err = DecodeInbound([]byte(`{"type":"interaction","blockId":"b1","value":"y"}`))
	require.NoError(t, err)
	in, ok := msg.(*Interaction)
	require.True(t, ok)
	assert.Equal(t, "b1", in.BlockID)
	assert.Equal(t, blocks.SingleValue("y"), in.Value)

	msg, err = DecodeInbound([]byte(`{"type":"interaction","blockId":"m1","value":["a","b"]}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, msg.(*Interaction).Value.Values)
	assert.True(t, msg.(*Interaction).Value.Multi)
}

func TestDecodeInbound_Errors(t *testing.T) {
	for name, raw := range map[string]string{
		"not json":          `nope`,
		"missing type":      `{"text":"x"}`,
		"bad value":         `{"type":"interaction","blockId":"b1","value":3}`,
		"missing block id":  `{"type":"interaction","value":"y"}`,
		"bad text type":     `{"type":"user_message","text":3}`,
		"outbound on input": `{"type":"stream_complete","turnId":"t"}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeInbound([]byte(raw))
			assert.Error(t, err)
		})
	}

	_, err := DecodeInbound([]byte(`{"type":"telepathy"}`))
	assert.ErrorIs(t, err, ErrUnknownMessageType)
	_, err = DecodeInbound([]byte(`{"text":"x"}`))
	assert.ErrorIs(t, err, ErrMalformedMessage)
}

func TestOutboundWireFormat(t *testing.T) {
	chunk := &StreamChunk{Turn: "turn-1", Block: &blocks.Text{ID: "t1", Text: "hi"}}
	b, err := json.Marshal(chunk)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"stream_chunk","turnId":"turn-1","block":{"type":"text","id":"t1","text":"hi"}}`, string(b))

	b, err = json.Marshal(&StreamComplete{Turn: "turn-1", SuggestedNext: []string{"more"}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"stream_complete","turnId":"turn-1","suggestedNext":["more"]}`, string(b))

	b, err = json.Marshal(&Error{Message: "boom"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"error","message":"boom"}`, string(b))

	b, err = json.Marshal(&Interaction{BlockID: "m1", Value: blocks.MultiValue("a")})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"interaction","blockId":"m1","value":["a"]}`, string(b))
}

func TestDecodeOutbound(t *testing.T) {
	msg, err := DecodeOutbound([]byte(`{"type":"stream_chunk","turnId":"t","block":{"id":"b1","type":"button_group","buttons":[{"label":"Y","value":"y"},{"label":"N","value":"n"}]}}`))
	require.NoError(t, err)
	chunk := msg.(*StreamChunk)
	assert.Equal(t, "t", chunk.TurnID())
	bg, ok := chunk.Block.(*blocks.ButtonGroup)
	require.True(t, ok)
	assert.Len(t, bg.Buttons, 2)

	msg, err = DecodeOutbound([]byte(`{"type":"stream_chunk","turnId":"t","block":{"id":"c1","type":"chart","series":[1,2]}}`))
	require.NoError(t, err)
	u, ok := msg.(*StreamChunk).Block.(*blocks.Unknown)
	require.True(t, ok)
	assert.Equal(t, blocks.Kind("chart"), u.Type)

	msg, err = DecodeOutbound([]byte(`{"type":"error","message":"x"}`))
	require.NoError(t, err)
	assert.Equal(t, "", msg.TurnID())

	_, err = DecodeOutbound([]byte(`{"type":"stream_complete"}`))
	assert.ErrorIs(t, err, ErrMalformedMessage)
	_, err = DecodeOutbound([]byte(`{"type":"stream_chunk","turnId":"t"}`))
	assert.ErrorIs(t, err, ErrMalformedMessage)
}

func TestOutboundRoundTrip(t *testing.T) {
	msgs := []Outbound{
		&StreamChunk{Turn: "a", Block: &blocks.MultiSelect{ID: "m", Label: "L", Min: 1, Max: 1, Options: []blocks.Option{{Label: "A", Value: "a"}}}},
		&StreamComplete{Turn: "a"},
		&Error{Message: "nope", Turn: "b"},
	}
	for _, m := range msgs {
		b, err := json.Marshal(m)
		require.NoError(t, err)
		back, err := DecodeOutbound(b)
		require.NoError(t, err)
		assert.Equal(t, m, back)
	}
}
