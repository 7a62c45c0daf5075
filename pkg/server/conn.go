package server

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/go-go-golems/blockchat/pkg/orchestrator"
	"github.com/go-go-golems/blockchat/pkg/protocol"
)

// Turnless error texts sent to the connection that caused them.
const (
	msgRateLimited = "too many messages, slow down"
	msgMalformed   = "message could not be understood"
	msgRejected    = "message was not accepted"
	msgUnavailable = "the server is shutting down"
)

// conn is one websocket connection to a session channel. The reader submits
// inbound frames to the orchestrator. The forwarder acks session topic
// messages as they arrive and queues them in outbox; the writer drains outbox
// and connection-local errors to the socket.
type conn struct {
	server    *Server
	sessionID string
	ws        *websocket.Conn
	limiter   *rate.Limiter
	direct    chan protocol.Outbound
	outbox    chan *message.Message
	logger    zerolog.Logger
}

func (c *conn) serve(parent context.Context) error {
	c.logger = log.With().Str("session_id", c.sessionID).Str("remote", c.ws.RemoteAddr().String()).Logger()

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	// subscribe before reading so no reply to our first message is missed
	msgs, err := c.server.subscriber.Subscribe(ctx, orchestrator.TopicForSession(c.sessionID))
	if err != nil {
		_ = c.ws.Close()
		return errors.Wrap(err, "subscribe to session topic")
	}
	c.logger.Info().Msg("channel connected")

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		defer cancel()
		return c.readLoop(ctx)
	})
	eg.Go(func() error {
		defer cancel()
		return c.forward(ctx, msgs)
	})
	eg.Go(func() error {
		defer cancel()
		return c.writeLoop(ctx)
	})
	eg.Go(func() error {
		<-ctx.Done()
		// unblocks the reader
		_ = c.ws.Close()
		return nil
	})
	err = eg.Wait()
	c.logger.Info().Msg("channel disconnected")
	return err
}

func (c *conn) readLoop(ctx context.Context) error {
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return errors.Wrap(err, "read frame")
		}

		if !c.limiter.Allow() {
			c.logger.Warn().Int("bytes", len(data)).Msg("inbound rate exceeded, dropping frame")
			c.reply(&protocol.Error{Message: msgRateLimited})
			continue
		}

		in, err := protocol.DecodeInbound(data)
		if err != nil {
			c.logger.Warn().Err(err).Int("bytes", len(data)).Msg("ignoring malformed frame")
			c.reply(&protocol.Error{Message: msgMalformed})
			continue
		}

		h, err := c.server.orchestrator.Submit(orchestrator.Event{SessionID: c.sessionID, Message: in})
		if err != nil {
			c.logger.Warn().Err(err).Msg("could not submit inbound message")
			c.reply(&protocol.Error{Message: msgUnavailable})
			continue
		}
		go c.watch(ctx, h)
	}
}

// watch tells the client when its message was rejected; everything else is
// reported on the session topic.
func (c *conn) watch(ctx context.Context, h *orchestrator.Handle) {
	select {
	case <-ctx.Done():
		return
	case <-h.Done():
	}
	outcome, err := h.Wait()
	if err != nil || outcome == nil || outcome.Kind != orchestrator.OutcomeRejected {
		return
	}
	c.logger.Debug().Err(outcome.Err).Str("event_id", h.EventID).Msg("inbound message rejected")
	c.reply(&protocol.Error{Message: msgRejected})
}

func (c *conn) reply(msg protocol.Outbound) {
	select {
	case c.direct <- msg:
	default:
		c.logger.Warn().Str("message_type", string(msg.Type())).Msg("connection backlog full, dropping reply")
	}
}

// forward moves session messages into the outbox. The pub/sub shares one
// lock between all sessions while a publish waits for its ack, so messages
// are acked here and never after a socket write. A client that lets the
// outbox fill up is disconnected.
func (c *conn) forward(ctx context.Context, msgs <-chan *message.Message) error {
	for {
		select {
		case <-ctx.Done():
			return nil

		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			msg.Ack()
			select {
			case c.outbox <- msg:
			default:
				c.logger.Warn().Int("outbox", cap(c.outbox)).
					Str("turn_id", msg.Metadata.Get(orchestrator.MetadataTurnID)).
					Msg("client is not keeping up, closing connection")
				return ErrSlowClient
			}
		}
	}
}

func (c *conn) writeLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil

		case out := <-c.direct:
			payload, err := json.Marshal(out)
			if err != nil {
				c.logger.Error().Err(err).Msg("could not encode reply")
				continue
			}
			if err := c.writeFrame(payload); err != nil {
				return err
			}

		case msg := <-c.outbox:
			if err := c.writeFrame(msg.Payload); err != nil {
				return err
			}
			c.logger.Trace().
				Str("turn_id", msg.Metadata.Get(orchestrator.MetadataTurnID)).
				Str("message_type", msg.Metadata.Get(orchestrator.MetadataMessageType)).
				Msg("frame written")
		}
	}
}

func (c *conn) writeFrame(payload []byte) error {
	_ = c.ws.SetWriteDeadline(time.Now().Add(c.server.opts.WriteTimeout))
	if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
		return errors.Wrap(err, "write frame")
	}
	return nil
}
