package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/go-go-golems/blockchat/pkg/conversation"
	"github.com/go-go-golems/blockchat/pkg/orchestrator"
	"github.com/go-go-golems/blockchat/pkg/protocol"
	"github.com/go-go-golems/blockchat/pkg/store"
)

const (
	DefaultInboundRate  = 5
	DefaultInboundBurst = 10
	DefaultWriteTimeout = 10 * time.Second
	DefaultOutboxSize   = 256

	maxFrameBytes = 1 << 20
)

// ErrSlowClient closes a connection whose outbound frames pile up.
var ErrSlowClient = errors.New("client is not reading its frames")

type Options struct {
	// InboundRate is the number of inbound frames per second a connection may send.
	InboundRate  float64
	InboundBurst int
	WriteTimeout time.Duration
	// OutboxSize is how many session frames may wait for a slow socket
	// before the connection is closed.
	OutboxSize int
	// CheckOrigin is handed to the websocket upgrader. Nil accepts any origin.
	CheckOrigin func(r *http.Request) bool
}

func (o Options) withDefaults() Options {
	if o.InboundRate <= 0 {
		o.InboundRate = DefaultInboundRate
	}
	if o.InboundBurst <= 0 {
		o.InboundBurst = DefaultInboundBurst
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = DefaultWriteTimeout
	}
	if o.OutboxSize <= 0 {
		o.OutboxSize = DefaultOutboxSize
	}
	if o.CheckOrigin == nil {
		o.CheckOrigin = func(*http.Request) bool { return true }
	}
	return o
}

// Server exposes sessions over HTTP:
//
//	GET /sessions/{id}/ws     channel websocket
//	GET /sessions/{id}/turns  stored turns as JSON
//	GET /healthz
type Server struct {
	orchestrator *orchestrator.Orchestrator
	store        store.MessageStore
	subscriber   message.Subscriber
	opts         Options
	upgrader     websocket.Upgrader

	// ctx bounds every open channel connection
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a server. subscriber must receive what the orchestrator's sink
// publishes, see orchestrator.TopicForSession.
func New(o *orchestrator.Orchestrator, s store.MessageStore, subscriber message.Subscriber, opts Options) *Server {
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		ctx:          ctx,
		cancel:       cancel,
		orchestrator: o,
		store:        s,
		subscriber:   subscriber,
		opts:         opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     opts.CheckOrigin,
		},
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /sessions/{id}/turns", s.handleTurns)
	mux.HandleFunc("GET /sessions/{id}/ws", s.handleChannel)
	return mux
}

// ListenAndServe serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		log.Info().Str("addr", addr).Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "listen")
		}
		return nil
	})
	eg.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		log.Info().Msg("Shutting down server")
		s.Close()
		return srv.Shutdown(shutdownCtx)
	})
	return eg.Wait()
}

// Close disconnects all open channel connections. Hijacked websocket
// connections are not tracked by http.Server.Shutdown.
func (s *Server) Close() {
	s.cancel()
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) handleTurns(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	turns, err := s.store.ListTurns(r.Context(), sessionID)
	if err != nil {
		log.Error().Err(err).Str("session_id", sessionID).Msg("could not list turns")
		http.Error(w, "could not load the conversation", http.StatusInternalServerError)
		return
	}
	if turns == nil {
		turns = []*conversation.Turn{}
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(turns); err != nil {
		log.Warn().Err(err).Str("session_id", sessionID).Msg("could not write turns")
	}
}

func (s *Server) handleChannel(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader already replied
		log.Warn().Err(err).Str("session_id", sessionID).Msg("websocket upgrade failed")
		return
	}
	ws.SetReadLimit(maxFrameBytes)

	c := &conn{
		server:    s,
		sessionID: sessionID,
		ws:        ws,
		limiter:   rate.NewLimiter(rate.Limit(s.opts.InboundRate), s.opts.InboundBurst),
		direct:    make(chan protocol.Outbound, 16),
		outbox:    make(chan *message.Message, s.opts.OutboxSize),
	}
	if err := c.serve(s.ctx); err != nil {
		log.Debug().Err(err).Str("session_id", sessionID).Msg("connection closed")
	}
}
