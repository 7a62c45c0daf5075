package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/go-go-golems/blockchat/pkg/blocks"
	"github.com/go-go-golems/blockchat/pkg/conversation"
)

const sqliteTurnsSchemaV1 = `
CREATE TABLE IF NOT EXISTS turns (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL,
    turn_id TEXT NOT NULL UNIQUE,
    role TEXT NOT NULL,
    created_at_ns INTEGER NOT NULL,
    envelope_json TEXT NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS turns_session_created ON turns (session_id, created_at_ns);
`

// SQLiteStore persists turns in a SQLite database, one row per turn with the
// envelope stored as JSON.
type SQLiteStore struct {
	mu     sync.Mutex
	dsn    string
	db     *sql.DB
	closed bool
	now    func() time.Time
}

var _ MessageStore = (*SQLiteStore)(nil)

func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("sqlite message store: empty dsn")
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}

	s := &SQLiteStore{
		dsn: dsn,
		db:  db,
		now: time.Now,
	}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	if _, err := s.db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		return err
	}
	if _, err := s.db.Exec(sqliteTurnsSchemaV1); err != nil {
		return errors.Wrap(err, "sqlite message store: migrate")
	}
	return nil
}

func (s *SQLiteStore) Append(ctx context.Context, turn *conversation.Turn) error {
	if err := validateTurn(turn); err != nil {
		return err
	}
	payload, err := json.Marshal(turn.Envelope)
	if err != nil {
		return errors.Wrap(err, "marshal envelope")
	}

	// serializes appends of this process, SQLite serializes across processes
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin append")
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var lastNs sql.NullInt64
	if err := tx.QueryRowContext(ctx,
		`SELECT MAX(created_at_ns) FROM turns WHERE session_id = ?`, turn.SessionID,
	).Scan(&lastNs); err != nil {
		return errors.Wrap(err, "read last timestamp")
	}
	var last time.Time
	if lastNs.Valid {
		last = time.Unix(0, lastNs.Int64)
	}
	ts := nextTimestamp(last, s.now())

	id := turn.ID
	if id == "" {
		id = uuid.NewString()
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO turns (session_id, turn_id, role, created_at_ns, envelope_json) VALUES (?, ?, ?, ?, ?)`,
		turn.SessionID, id, string(turn.Role), ts.UnixNano(), string(payload),
	); err != nil {
		return errors.Wrapf(err, "insert turn %s", id)
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "commit append")
	}

	turn.ID = id
	turn.CreatedAt = time.Unix(0, ts.UnixNano())
	return nil
}

func (s *SQLiteStore) ListTurns(ctx context.Context, sessionID string) ([]*conversation.Turn, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, ErrStoreClosed
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT turn_id, role, created_at_ns, envelope_json FROM turns WHERE session_id = ? ORDER BY created_at_ns ASC, seq ASC`,
		sessionID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "list turns")
	}
	defer func() {
		_ = rows.Close()
	}()

	ret := []*conversation.Turn{}
	for rows.Next() {
		var (
			id, role, payload string
			createdNs         int64
		)
		if err := rows.Scan(&id, &role, &createdNs, &payload); err != nil {
			return nil, err
		}
		env, err := blocks.DecodeEnvelope([]byte(payload))
		if err != nil {
			return nil, errors.Wrapf(err, "turn %s", id)
		}
		ret = append(ret, &conversation.Turn{
			ID:        id,
			SessionID: sessionID,
			Role:      conversation.Role(role),
			Envelope:  env,
			CreatedAt: time.Unix(0, createdNs),
		})
	}
	return ret, rows.Err()
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// SQLiteDSNForFile returns the DSN used for a message database at path.
func SQLiteDSNForFile(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("sqlite message store: empty path")
	}
	return fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", path), nil
}
