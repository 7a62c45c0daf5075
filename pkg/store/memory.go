package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/huandu/go-clone"

	"github.com/go-go-golems/blockchat/pkg/conversation"
)

// InMemoryStore is a thread-safe MessageStore. Stored turns are deep copies,
// so callers may keep mutating what they appended.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string][]*conversation.Turn
	closed   bool
	now      func() time.Time
}

var _ MessageStore = (*InMemoryStore)(nil)

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		sessions: map[string][]*conversation.Turn{},
		now:      time.Now,
	}
}

func (s *InMemoryStore) Append(_ context.Context, turn *conversation.Turn) error {
	if err := validateTurn(turn); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}

	turns := s.sessions[turn.SessionID]
	var last time.Time
	if len(turns) > 0 {
		last = turns[len(turns)-1].CreatedAt
	}
	if turn.ID == "" {
		turn.ID = uuid.NewString()
	}
	turn.CreatedAt = nextTimestamp(last, s.now())

	s.sessions[turn.SessionID] = append(turns, clone.Clone(turn).(*conversation.Turn))
	return nil
}

func (s *InMemoryStore) ListTurns(_ context.Context, sessionID string) ([]*conversation.Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	turns := s.sessions[sessionID]
	ret := make([]*conversation.Turn, 0, len(turns))
	for _, t := range turns {
		ret = append(ret, clone.Clone(t).(*conversation.Turn))
	}
	return ret, nil
}

func (s *InMemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
