package store

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/blockchat/pkg/blocks"
	"github.com/go-go-golems/blockchat/pkg/conversation"
)

type storeFactory func(t *testing.T) MessageStore

func newSQLiteForTest(t *testing.T) *SQLiteStore {
	dsn, err := SQLiteDSNForFile(filepath.Join(t.TempDir(), "turns.db"))
	require.NoError(t, err)
	s, err := NewSQLiteStore(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newRedisForTest(t *testing.T) *RedisStore {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStoreFromClient(client, "test:")
}

func factories() map[string]storeFactory {
	return map[string]storeFactory{
		"memory": func(t *testing.T) MessageStore { return NewInMemoryStore() },
		"sqlite": func(t *testing.T) MessageStore { return newSQLiteForTest(t) },
		"redis":  func(t *testing.T) MessageStore { return newRedisForTest(t) },
	}
}

func userTurn(session, text string) *conversation.Turn {
	return &conversation.Turn{SessionID: session, Role: conversation.RoleUser, Envelope: blocks.NewUserTextEnvelope(text)}
}

func TestMessageStores_AppendAndList(t *testing.T) {
	for name, factory := range factories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := factory(t)

			assistant := &conversation.Turn{
				ID:        "turn-2",
				SessionID: "s1",
				Role:      conversation.RoleAssistant,
				Envelope: &blocks.Envelope{
					Blocks: blocks.Blocks{
						&blocks.Text{ID: "t1", Text: "Pick"},
						&blocks.ButtonGroup{ID: "b1", Buttons: []blocks.Button{{Label: "Yes", Value: "y"}, {Label: "No", Value: "n"}}},
						&blocks.Unknown{ID: "c1", Type: "chart", Raw: []byte(`{"id":"c1","type":"chart","points":[1,2,3]}`)},
					},
					Metadata: blocks.Metadata{SuggestedNext: []string{"more"}},
				},
			}

			first := userTurn("s1", "hello")
			require.NoError(t, s.Append(ctx, first))
			assert.NotEmpty(t, first.ID)
			assert.False(t, first.CreatedAt.IsZero())
			require.NoError(t, s.Append(ctx, assistant))
			require.NoError(t, s.Append(ctx, userTurn("other", "unrelated")))

			turns, err := s.ListTurns(ctx, "s1")
			require.NoError(t, err)
			require.Len(t, turns, 2)

			assert.Equal(t, first.ID, turns[0].ID)
			assert.Equal(t, conversation.RoleUser, turns[0].Role)
			assert.Equal(t, []string{"hello"}, turns[0].Envelope.Texts())

			got := turns[1]
			assert.Equal(t, "turn-2", got.ID)
			assert.Equal(t, "s1", got.SessionID)
			assert.Equal(t, conversation.RoleAssistant, got.Role)
			assert.True(t, got.CreatedAt.After(turns[0].CreatedAt))
			assert.Equal(t, assistant.CreatedAt.UnixNano(), got.CreatedAt.UnixNano())
			require.Len(t, got.Envelope.Blocks, 3)
			assert.Equal(t, []string{"more"}, got.Envelope.Metadata.SuggestedNext)
			bg, ok := got.Envelope.Blocks[1].(*blocks.ButtonGroup)
			require.True(t, ok)
			assert.Equal(t, "b1", bg.ID)
			u, ok := got.Envelope.Blocks[2].(*blocks.Unknown)
			require.True(t, ok)
			assert.JSONEq(t, `{"id":"c1","type":"chart","points":[1,2,3]}`, string(u.Raw))

			empty, err := s.ListTurns(ctx, "nope")
			require.NoError(t, err)
			assert.Empty(t, empty)
		})
	}
}

func TestMessageStores_TimestampsStrictlyIncrease(t *testing.T) {
	for name, factory := range factories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := factory(t)

			frozen := time.Unix(1700000000, 0)
			switch v := s.(type) {
			case *InMemoryStore:
				v.now = func() time.Time { return frozen }
			case *SQLiteStore:
				v.now = func() time.Time { return frozen }
			case *RedisStore:
				v.now = func() time.Time { return frozen }
			}

			for i := 0; i < 5; i++ {
				require.NoError(t, s.Append(ctx, userTurn("s", fmt.Sprintf("m%d", i))))
			}
			turns, err := s.ListTurns(ctx, "s")
			require.NoError(t, err)
			require.Len(t, turns, 5)
			for i := 1; i < len(turns); i++ {
				assert.True(t, turns[i].CreatedAt.After(turns[i-1].CreatedAt), "turn %d not after %d", i, i-1)
				assert.Equal(t, []string{fmt.Sprintf("m%d", i)}, turns[i].Envelope.Texts())
			}
		})
	}
}

func TestMessageStores_ConcurrentAppends(t *testing.T) {
	for name, factory := range factories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := factory(t)

			var wg sync.WaitGroup
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					assert.NoError(t, s.Append(ctx, userTurn("s", fmt.Sprintf("m%d", i))))
				}(i)
			}
			wg.Wait()

			turns, err := s.ListTurns(ctx, "s")
			require.NoError(t, err)
			require.Len(t, turns, 20)
			for i := 1; i < len(turns); i++ {
				assert.True(t, turns[i].CreatedAt.After(turns[i-1].CreatedAt))
			}
		})
	}
}

func TestMessageStores_RejectInvalidTurns(t *testing.T) {
	for name, factory := range factories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := factory(t)

			assert.ErrorIs(t, s.Append(ctx, nil), ErrInvalidTurn)
			assert.ErrorIs(t, s.Append(ctx, &conversation.Turn{Role: conversation.RoleUser, Envelope: blocks.NewEnvelope()}), ErrInvalidTurn)
			assert.ErrorIs(t, s.Append(ctx, &conversation.Turn{SessionID: "s", Role: "system", Envelope: blocks.NewEnvelope()}), ErrInvalidTurn)
			assert.ErrorIs(t, s.Append(ctx, &conversation.Turn{SessionID: "s", Role: conversation.RoleUser}), ErrInvalidTurn)

			turns, err := s.ListTurns(ctx, "s")
			require.NoError(t, err)
			assert.Empty(t, turns)
		})
	}
}

func TestInMemoryStore_IsolatesCallers(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	turn := userTurn("s", "original")
	require.NoError(t, s.Append(ctx, turn))
	turn.Envelope.Blocks[0].(*blocks.Text).Text = "mutated"

	turns, err := s.ListTurns(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, []string{"original"}, turns[0].Envelope.Texts())

	turns[0].Envelope.Blocks[0].(*blocks.Text).Text = "mutated again"
	again, err := s.ListTurns(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, []string{"original"}, again[0].Envelope.Texts())
}

func TestStores_Closed(t *testing.T) {
	ctx := context.Background()

	mem := NewInMemoryStore()
	require.NoError(t, mem.Close())
	assert.ErrorIs(t, mem.Append(ctx, userTurn("s", "x")), ErrStoreClosed)
	_, err := mem.ListTurns(ctx, "s")
	assert.ErrorIs(t, err, ErrStoreClosed)

	sq := newSQLiteForTest(t)
	require.NoError(t, sq.Close())
	require.NoError(t, sq.Close())
	assert.ErrorIs(t, sq.Append(ctx, userTurn("s", "x")), ErrStoreClosed)
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dsn, err := SQLiteDSNForFile(filepath.Join(t.TempDir(), "turns.db"))
	require.NoError(t, err)

	s, err := NewSQLiteStore(dsn)
	require.NoError(t, err)
	require.NoError(t, s.Append(ctx, userTurn("s", "durable")))
	require.NoError(t, s.Close())

	s, err = NewSQLiteStore(dsn)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	turns, err := s.ListTurns(ctx, "s")
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, []string{"durable"}, turns[0].Envelope.Texts())

	_, err = SQLiteDSNForFile("")
	assert.Error(t, err)
}
