package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-go-golems/blockchat/pkg/conversation"
)

var (
	ErrStoreClosed = errors.New("message store closed")
	ErrInvalidTurn = errors.New("invalid turn")
)

// InvalidTurnError reports a turn that cannot be stored.
type InvalidTurnError struct {
	Field  string
	Reason string
}

func (e *InvalidTurnError) Error() string {
	return fmt.Sprintf("%s (%s): %s", ErrInvalidTurn, e.Field, e.Reason)
}

func (e *InvalidTurnError) Is(target error) bool { return target == ErrInvalidTurn }

// MessageStore persists the turns of sessions.
//
// Append is atomic: either the whole envelope is stored or nothing is. It
// assigns turn.CreatedAt, strictly increasing within a session, and the ID
// when empty. ListTurns returns turns ordered by CreatedAt; an unknown
// session has no turns.
type MessageStore interface {
	Append(ctx context.Context, turn *conversation.Turn) error
	ListTurns(ctx context.Context, sessionID string) ([]*conversation.Turn, error)
	Close() error
}

func validateTurn(t *conversation.Turn) error {
	switch {
	case t == nil:
		return &InvalidTurnError{Field: "turn", Reason: "nil"}
	case t.SessionID == "":
		return &InvalidTurnError{Field: "sessionId", Reason: "empty session id"}
	case !t.Role.Valid():
		return &InvalidTurnError{Field: "role", Reason: fmt.Sprintf("unknown role %q", t.Role)}
	case t.Envelope == nil:
		return &InvalidTurnError{Field: "envelope", Reason: "nil envelope"}
	}
	return nil
}

// nextTimestamp returns now, or one nanosecond after last if the clock did
// not advance.
func nextTimestamp(last, now time.Time) time.Time {
	if !now.After(last) {
		return last.Add(time.Nanosecond)
	}
	return now
}
