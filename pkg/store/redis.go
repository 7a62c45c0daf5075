package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/go-go-golems/blockchat/pkg/blocks"
	"github.com/go-go-golems/blockchat/pkg/conversation"
)

// redisAppendScript adds a turn to a session's sorted set with a strictly
// increasing score.
// KEYS[1] = session turns key
// ARGV[1] = current unix time in microseconds
// ARGV[2] = turn record (JSON)
var redisAppendScript = redis.NewScript(`
local key = KEYS[1]
local ts = tonumber(ARGV[1])

local last = redis.call("ZRANGE", key, -1, -1, "WITHSCORES")
if #last == 2 then
    local prev = tonumber(last[2])
    if ts <= prev then
        ts = prev + 1
    end
end

redis.call("ZADD", key, ts, ARGV[2])
return ts
`)

type redisTurnRecord struct {
	ID       string            `json:"id"`
	Role     conversation.Role `json:"role"`
	Envelope json.RawMessage   `json:"envelope"`
}

// RedisStore keeps each session in a sorted set scored by creation time in
// microseconds. Timestamps therefore have microsecond resolution.
type RedisStore struct {
	client     *redis.Client
	prefix     string
	ownsClient bool
	now        func() time.Time
}

var _ MessageStore = (*RedisStore)(nil)

type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	// Prefix is prepended to every key, e.g. "blockchat:".
	Prefix string
}

// NewRedisStore connects to Redis. The connection is checked with a PING.
func NewRedisStore(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrapf(err, "redis message store: ping %s", opts.Addr)
	}
	s := NewRedisStoreFromClient(rdb, opts.Prefix)
	s.ownsClient = true
	return s, nil
}

// NewRedisStoreFromClient uses an existing client, which Close leaves open.
func NewRedisStoreFromClient(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix, now: time.Now}
}

func (s *RedisStore) sessionKey(sessionID string) string {
	return fmt.Sprintf("%ssession:%s:turns", s.prefix, sessionID)
}

func (s *RedisStore) Append(ctx context.Context, turn *conversation.Turn) error {
	if err := validateTurn(turn); err != nil {
		return err
	}
	env, err := json.Marshal(turn.Envelope)
	if err != nil {
		return errors.Wrap(err, "marshal envelope")
	}
	id := turn.ID
	if id == "" {
		id = uuid.NewString()
	}
	record, err := json.Marshal(redisTurnRecord{ID: id, Role: turn.Role, Envelope: env})
	if err != nil {
		return errors.Wrap(err, "marshal turn record")
	}

	ts, err := redisAppendScript.Run(ctx, s.client,
		[]string{s.sessionKey(turn.SessionID)},
		s.now().UnixMicro(), string(record),
	).Int64()
	if err != nil {
		return errors.Wrapf(err, "redis append turn %s", id)
	}

	turn.ID = id
	turn.CreatedAt = time.UnixMicro(ts)
	return nil
}

func (s *RedisStore) ListTurns(ctx context.Context, sessionID string) ([]*conversation.Turn, error) {
	zs, err := s.client.ZRangeWithScores(ctx, s.sessionKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, errors.Wrapf(err, "redis list turns of %s", sessionID)
	}

	ret := make([]*conversation.Turn, 0, len(zs))
	for _, z := range zs {
		member, ok := z.Member.(string)
		if !ok {
			return nil, errors.Errorf("unexpected member type %T", z.Member)
		}
		var rec redisTurnRecord
		if err := json.Unmarshal([]byte(member), &rec); err != nil {
			return nil, errors.Wrap(err, "decode turn record")
		}
		env, err := blocks.DecodeEnvelope(rec.Envelope)
		if err != nil {
			return nil, errors.Wrapf(err, "turn %s", rec.ID)
		}
		ret = append(ret, &conversation.Turn{
			ID:        rec.ID,
			SessionID: sessionID,
			Role:      rec.Role,
			Envelope:  env,
			CreatedAt: time.UnixMicro(int64(z.Score)),
		})
	}
	return ret, nil
}

func (s *RedisStore) Close() error {
	if !s.ownsClient {
		return nil
	}
	return s.client.Close()
}
