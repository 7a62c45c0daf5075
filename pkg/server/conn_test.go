package server

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/blockchat/pkg/blocks"
	"github.com/go-go-golems/blockchat/pkg/helpers"
	"github.com/go-go-golems/blockchat/pkg/orchestrator"
	"github.com/go-go-golems/blockchat/pkg/protocol"
)

func TestConn_StalledClientDoesNotBlockOtherSessions(t *testing.T) {
	pubSub := helpers.NewOrderedPubSub(zerolog.Nop())
	defer func() { _ = pubSub.Close() }()
	sink := orchestrator.NewWatermillSink(pubSub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	msgs, err := pubSub.Subscribe(ctx, orchestrator.TopicForSession("a"))
	require.NoError(t, err)

	// nothing drains the outbox, as if the socket of session a had stalled
	c := &conn{sessionID: "a", outbox: make(chan *message.Message, 2), logger: zerolog.Nop()}
	forwarded := make(chan error, 1)
	go func() { forwarded <- c.forward(ctx, msgs) }()

	chunk := func(id string) protocol.Outbound {
		return &protocol.StreamChunk{Turn: "turn-a", Block: &blocks.Text{ID: id, Text: id}}
	}
	require.NoError(t, sink.Publish(ctx, "a", chunk("one")))
	require.NoError(t, sink.Publish(ctx, "a", chunk("two")))

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := pubSub.Subscribe(ctx, orchestrator.TopicForSession("b"))
		assert.NoError(t, err)
		assert.NoError(t, sink.Publish(ctx, "c", &protocol.StreamComplete{Turn: "turn-c"}))
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("session c was blocked by the stalled client of session a")
	}

	// the queued frames keep their order
	first := <-c.outbox
	second := <-c.outbox
	out, err := protocol.DecodeOutbound(first.Payload)
	require.NoError(t, err)
	assert.Equal(t, "one", out.(*protocol.StreamChunk).Block.BlockID())
	out, err = protocol.DecodeOutbound(second.Payload)
	require.NoError(t, err)
	assert.Equal(t, "two", out.(*protocol.StreamChunk).Block.BlockID())
}

func TestConn_FullOutboxClosesConnection(t *testing.T) {
	pubSub := helpers.NewOrderedPubSub(zerolog.Nop())
	defer func() { _ = pubSub.Close() }()
	sink := orchestrator.NewWatermillSink(pubSub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	msgs, err := pubSub.Subscribe(ctx, orchestrator.TopicForSession("a"))
	require.NoError(t, err)

	c := &conn{sessionID: "a", outbox: make(chan *message.Message, 1), logger: zerolog.Nop()}
	forwarded := make(chan error, 1)
	go func() { forwarded <- c.forward(ctx, msgs) }()

	require.NoError(t, sink.Publish(ctx, "a", &protocol.StreamComplete{Turn: "t1"}))
	require.NoError(t, sink.Publish(ctx, "a", &protocol.StreamComplete{Turn: "t2"}))

	select {
	case err := <-forwarded:
		assert.ErrorIs(t, err, ErrSlowClient)
	case <-time.After(2 * time.Second):
		t.Fatal("forwarder kept a client that does not read")
	}
}
