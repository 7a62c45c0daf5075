package orchestrator

import (
	"context"
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/blockchat/pkg/protocol"
)

const (
	MetadataSessionID   = "session_id"
	MetadataTurnID      = "turn_id"
	MetadataMessageType = "type"
)

// TopicForSession is the watermill topic carrying the outbound messages of a session.
func TopicForSession(sessionID string) string {
	return "session." + sessionID
}

// WatermillSink publishes outbound messages as JSON to a per-session topic.
//
// Ordering is preserved only by publishers that deliver in order; the
// gochannel pub/sub needs BlockPublishUntilSubscriberAck for that.
type WatermillSink struct {
	publisher message.Publisher
}

var _ Sink = (*WatermillSink)(nil)

func NewWatermillSink(publisher message.Publisher) *WatermillSink {
	return &WatermillSink{publisher: publisher}
}

func (w *WatermillSink) Publish(ctx context.Context, sessionID string, out protocol.Outbound) error {
	payload, err := json.Marshal(out)
	if err != nil {
		log.Error().Err(err).Str("session_id", sessionID).Msg("Failed to marshal outbound message")
		return errors.Wrap(err, "marshal outbound message")
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)
	msg.Metadata.Set(MetadataSessionID, sessionID)
	msg.Metadata.Set(MetadataTurnID, out.TurnID())
	msg.Metadata.Set(MetadataMessageType, string(out.Type()))

	topic := TopicForSession(sessionID)
	if err := w.publisher.Publish(topic, msg); err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("Failed to publish outbound message to watermill")
		return err
	}

	log.Trace().Str("topic", topic).Str("message_type", string(out.Type())).Msg("Published outbound message to watermill")
	return nil
}
