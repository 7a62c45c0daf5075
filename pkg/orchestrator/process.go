package orchestrator

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/blockchat/pkg/blocks"
	"github.com/go-go-golems/blockchat/pkg/conversation"
	"github.com/go-go-golems/blockchat/pkg/parse"
	"github.com/go-go-golems/blockchat/pkg/protocol"
)

var (
	ErrEmptyMessage       = errors.New("empty user message")
	ErrUnknownTarget      = errors.New("interaction target is not an interactive block of this session")
	ErrAlreadyResolved    = errors.New("interactive block already resolved")
	ErrUnsupportedMessage = errors.New("unsupported inbound message")
)

// Error texts sent to clients. Causes are logged, not sent.
const (
	msgStoreFailed       = "could not save the conversation, please retry"
	msgGeneratorFailed   = "the assistant is unavailable, please retry"
	msgGeneratorTimedOut = "the assistant took too long to answer, please retry"
	msgResponseNotStored = "the response could not be saved and was discarded"
)

func (o *Orchestrator) process(w *sessionWorker, j *job) *Outcome {
	ev := j.event
	logger := log.With().
		Str("session_id", ev.SessionID).
		Str("event_id", j.handle.EventID).
		Str("message_type", string(ev.Message.Type())).
		Logger()

	defer o.setState(w, StateIdle)
	o.setState(w, StateGenerating)

	// interactions are checked against the stored history before anything
	// is written; plain messages are stored first
	_, isInteraction := ev.Message.(*protocol.Interaction)
	var history []*conversation.Turn
	if isInteraction {
		var err error
		history, err = o.store.ListTurns(o.ctx, ev.SessionID)
		if err != nil {
			turnID := uuid.NewString()
			logger.Error().Err(err).Str("turn_id", turnID).Msg("could not load session history")
			o.publish(ev.SessionID, &protocol.Error{Message: msgStoreFailed, Turn: turnID})
			return &Outcome{Kind: OutcomeStoreFailed, TurnID: turnID, Err: err}
		}
	}

	userEnv, err := userEnvelope(ev.Message, history)
	if err != nil {
		logger.Warn().Err(err).Msg("ignoring inbound message")
		return &Outcome{Kind: OutcomeRejected, Err: err}
	}

	turnID := uuid.NewString()
	logger = logger.With().Str("turn_id", turnID).Logger()

	userTurn := &conversation.Turn{SessionID: ev.SessionID, Role: conversation.RoleUser, Envelope: userEnv}
	if err := o.store.Append(o.ctx, userTurn); err != nil {
		logger.Error().Err(err).Msg("could not store user turn")
		o.publish(ev.SessionID, &protocol.Error{Message: msgStoreFailed, Turn: turnID})
		return &Outcome{Kind: OutcomeStoreFailed, TurnID: turnID, Err: err}
	}

	if isInteraction {
		history = append(history, userTurn)
	} else {
		history, err = o.store.ListTurns(o.ctx, ev.SessionID)
		if err != nil {
			logger.Error().Err(err).Msg("could not load session history")
			o.publish(ev.SessionID, &protocol.Error{Message: msgStoreFailed, Turn: turnID})
			return &Outcome{Kind: OutcomeStoreFailed, TurnID: turnID, Err: err}
		}
	}

	raw, err := o.generate(ev, history)
	if err != nil {
		msg := msgGeneratorFailed
		if errors.Is(err, context.DeadlineExceeded) {
			msg = msgGeneratorTimedOut
		}
		logger.Error().Err(err).Msg("generator failed")
		o.publish(ev.SessionID, &protocol.Error{Message: msg, Turn: turnID})
		return &Outcome{Kind: OutcomeGeneratorFailed, TurnID: turnID, Err: err}
	}

	res := o.parser.ParseWithResult(raw)
	if res.Stage == parse.StageFallback {
		logger.Warn().Err(res.Err).Str("stage", string(res.Stage)).Int("raw_bytes", len(raw)).
			Msg("generator output could not be parsed, using fallback text")
	} else {
		logger.Debug().Str("stage", string(res.Stage)).Msg("generator output parsed")
	}
	env := res.Envelope
	if renamed := blocks.Rekey(env, conversation.BlockIDs(history)); len(renamed) > 0 {
		logger.Warn().Interface("renamed", renamed).Msg("generator reused block ids")
	}

	o.setState(w, StateStreaming)
	for _, b := range env.Blocks {
		o.publish(ev.SessionID, &protocol.StreamChunk{Turn: turnID, Block: b})
	}

	o.setState(w, StatePersisting)
	assistant := &conversation.Turn{ID: turnID, SessionID: ev.SessionID, Role: conversation.RoleAssistant, Envelope: env}
	if err := o.store.Append(o.ctx, assistant); err != nil {
		logger.Error().Err(err).Msg("could not store assistant turn")
		o.publish(ev.SessionID, &protocol.Error{Message: msgResponseNotStored, Turn: turnID})
		return &Outcome{Kind: OutcomeStoreFailed, TurnID: turnID, Envelope: env, Stage: res.Stage, Err: err}
	}

	o.publish(ev.SessionID, &protocol.StreamComplete{Turn: turnID, SuggestedNext: env.Metadata.SuggestedNext})
	logger.Info().Int("blocks", len(env.Blocks)).Str("stage", string(res.Stage)).Msg("turn completed")
	return &Outcome{Kind: OutcomeCompleted, TurnID: turnID, Envelope: env, Stage: res.Stage}
}

type generated struct {
	raw string
	err error
}

// generate calls the generator with the event's deadline. The turn is failed
// at the deadline even when the generator ignores its context; a late answer
// is dropped.
func (o *Orchestrator) generate(ev Event, history []*conversation.Turn) (string, error) {
	timeout := ev.Timeout
	if timeout <= 0 {
		timeout = o.timeout
	}
	ctx, cancel := context.WithTimeout(o.ctx, timeout)
	defer cancel()

	messages := conversation.Reduce(history)
	done := make(chan generated, 1)
	go func() {
		raw, err := o.generator.Generate(ctx, messages)
		done <- generated{raw: raw, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", errors.Wrap(ctx.Err(), "generator did not answer in time")
	case res := <-done:
		if res.err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(res.err, ctxErr) {
				return "", errors.Wrap(ctxErr, res.err.Error())
			}
			return "", res.err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", errors.Wrap(ctxErr, "generator returned after its deadline")
		}
		return res.raw, nil
	}
}

// userEnvelope builds the envelope stored for an inbound message, rejecting
// messages that violate the protocol.
func userEnvelope(msg protocol.Inbound, history []*conversation.Turn) (*blocks.Envelope, error) {
	switch m := msg.(type) {
	case *protocol.UserMessage:
		if strings.TrimSpace(m.Text) == "" {
			return nil, ErrEmptyMessage
		}
		return blocks.NewUserTextEnvelope(m.Text), nil

	case *protocol.Interaction:
		target, ok := conversation.FindInteractive(history, m.BlockID)
		if !ok {
			return nil, errors.Wrapf(ErrUnknownTarget, "block %q", m.BlockID)
		}
		if _, done := conversation.ResolvedInteractions(history)[m.BlockID]; done {
			return nil, errors.Wrapf(ErrAlreadyResolved, "block %q", m.BlockID)
		}
		if err := target.Accepts(m.Value); err != nil {
			return nil, err
		}
		return blocks.NewInteractionEnvelope(m.BlockID, m.Value), nil

	default:
		return nil, errors.Wrapf(ErrUnsupportedMessage, "%T", msg)
	}
}

func (o *Orchestrator) publish(sessionID string, msg protocol.Outbound) {
	if err := o.sink.Publish(o.ctx, sessionID, msg); err != nil {
		log.Warn().Err(err).
			Str("session_id", sessionID).
			Str("turn_id", msg.TurnID()).
			Str("message_type", string(msg.Type())).
			Msg("could not publish outbound message")
	}
}
