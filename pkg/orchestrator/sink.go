package orchestrator

import (
	"context"
	"sync"

	"github.com/go-go-golems/blockchat/pkg/protocol"
)

// Sink delivers outbound messages to the client(s) of a session. Messages of
// one session must be delivered in the order they are published.
type Sink interface {
	Publish(ctx context.Context, sessionID string, msg protocol.Outbound) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, sessionID string, msg protocol.Outbound) error

func (f SinkFunc) Publish(ctx context.Context, sessionID string, msg protocol.Outbound) error {
	return f(ctx, sessionID, msg)
}

// RecordingSink keeps every published message in memory.
type RecordingSink struct {
	mu   sync.Mutex
	msgs map[string][]protocol.Outbound
}

var _ Sink = (*RecordingSink)(nil)

func NewRecordingSink() *RecordingSink {
	return &RecordingSink{msgs: map[string][]protocol.Outbound{}}
}

func (r *RecordingSink) Publish(_ context.Context, sessionID string, msg protocol.Outbound) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs[sessionID] = append(r.msgs[sessionID], msg)
	return nil
}

// Messages returns the messages published for sessionID so far.
func (r *RecordingSink) Messages(sessionID string) []protocol.Outbound {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]protocol.Outbound(nil), r.msgs[sessionID]...)
}
