// Package replay is a stand-in match simulator. It accepts a websocket,
// reads the connect payload describing both teams and plays a scripted
// sequence of game events back at a fixed pace.
package replay

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/okian/courtside/internal/domain/match"
	"github.com/okian/courtside/pkg/logger"
)

const writeWait = 10 * time.Second

// Server replays its script to every connection.
type Server struct {
	script    []Step
	interval  time.Duration
	handshake time.Duration
	now       func() time.Time
	logger    logger.Logger
	upgrader  websocket.Upgrader

	active atomic.Int64
}

// New creates a replay server with the built-in script.
func New(opts ...Option) *Server {
	s := &Server{
		script:    DefaultScript(),
		interval:  400 * time.Millisecond,
		handshake: 5 * time.Second,
		now:       time.Now,
		logger:    logger.Get().Named("replay"),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Active returns the number of connections being replayed to.
func (s *Server) Active() int { return int(s.active.Load()) }

// ServeHTTP upgrades the request and runs one replay.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn(r.Context(), "replay upgrade failed", logger.Error(err))
		return
	}
	defer func() { _ = conn.Close() }()

	s.active.Add(1)
	defer s.active.Add(-1)

	id := uuid.NewString()
	l := s.logger.With(logger.String("conn_id", id), logger.String("remote", r.RemoteAddr))

	payload, readable := s.readPayload(conn)
	l.Info(r.Context(), "replay started",
		logger.String("team1", payload.Team1.Name),
		logger.String("team2", payload.Team2.Name),
		logger.Int("steps", len(s.script)),
	)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	if readable {
		go s.drain(conn, cancel)
	}

	if err := s.play(ctx, conn, payload); err != nil {
		l.Info(ctx, "replay ended early", logger.Error(err))
		return
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "game over"))
	l.Info(ctx, "replay finished")
}

// readPayload waits for the client's connect payload. A missing or
// malformed payload falls back to the standalone training teams. After a
// failed read the connection cannot be read again, so readable is false.
func (s *Server) readPayload(conn *websocket.Conn) (p *match.ConnectPayload, readable bool) {
	_ = conn.SetReadDeadline(time.Now().Add(s.handshake))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		return match.DefaultPayload(), false
	}
	_ = conn.SetReadDeadline(time.Time{})

	var got match.ConnectPayload
	if err := json.Unmarshal(raw, &got); err != nil || len(got.Team1.Players) == 0 || len(got.Team2.Players) == 0 {
		return match.DefaultPayload(), true
	}
	return &got, true
}

// drain discards later client frames; a payload resent on an open
// connection is ignored. It cancels the replay when the peer goes away.
func (s *Server) drain(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) play(ctx context.Context, conn *websocket.Conn, p *match.ConnectPayload) error {
	var tick <-chan time.Time
	if s.interval > 0 {
		t := time.NewTicker(s.interval)
		defer t.Stop()
		tick = t.C
	}

	for i, st := range s.script {
		if i > 0 && tick != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-tick:
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}

		frame := match.Envelope{
			Type:      st.Type,
			Data:      st.Resolve(p),
			Timestamp: s.now().UTC().Format(time.RFC3339Nano),
		}
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(frame); err != nil {
			return err
		}
	}
	return nil
}
