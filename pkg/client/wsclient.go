package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/blockchat/pkg/conversation"
	"github.com/go-go-golems/blockchat/pkg/protocol"
)

// WSClient is a websocket connection to a session's channel.
type WSClient struct {
	conn *websocket.Conn

	writeMu      sync.Mutex
	writeTimeout time.Duration
}

var _ Sender = (*WSClient)(nil)

// Dial connects to a channel url such as ws://localhost:8080/sessions/abc/ws.
func Dial(ctx context.Context, wsURL string) (*WSClient, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil {
			return nil, errors.Wrapf(err, "dial %s: %s", wsURL, resp.Status)
		}
		return nil, errors.Wrapf(err, "dial %s", wsURL)
	}
	return &WSClient{conn: conn, writeTimeout: 10 * time.Second}, nil
}

func (c *WSClient) Send(ctx context.Context, msg protocol.Inbound) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	deadline := time.Now().Add(c.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(deadline)
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

// Run reads server messages and feeds them to session until the connection
// closes or ctx is done. Undecodable frames are logged and skipped.
func (c *WSClient) Run(ctx context.Context, session *Session) error {
	go func() {
		<-ctx.Done()
		_ = c.conn.Close()
	}()
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return errors.Wrap(err, "read server message")
		}
		msg, err := protocol.DecodeOutbound(data)
		if err != nil {
			log.Warn().Err(err).Int("bytes", len(data)).Msg("ignoring undecodable server message")
			continue
		}
		_ = session.HandleOutbound(msg)
	}
}

func (c *WSClient) Close() error {
	c.writeMu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()
	return c.conn.Close()
}

// HistoryURL derives the history endpoint from a channel url.
func HistoryURL(wsURL string) (string, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	case "http", "https":
	default:
		return "", errors.Errorf("unsupported scheme %q", u.Scheme)
	}
	if !strings.HasSuffix(u.Path, "/ws") {
		return "", errors.Errorf("channel url %s does not end in /ws", wsURL)
	}
	u.Path = strings.TrimSuffix(u.Path, "/ws") + "/turns"
	return u.String(), nil
}

// FetchHistory loads the persisted turns of a session.
func FetchHistory(ctx context.Context, httpClient *http.Client, historyURL string) ([]*conversation.Turn, error) {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, historyURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "fetch history")
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch history: %s", resp.Status)
	}
	var turns []*conversation.Turn
	if err := json.NewDecoder(resp.Body).Decode(&turns); err != nil {
		return nil, errors.Wrap(err, "decode history")
	}
	return turns, nil
}
