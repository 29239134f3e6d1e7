package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	service "github.com/okian/courtside/internal/app"
	"github.com/okian/courtside/pkg/logger"
	"github.com/okian/courtside/pkg/metrics"
)

const (
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxClientFrame = 512
)

type snapshotFrame struct {
	Kind string            `json:"kind"`
	View service.MatchView `json:"view"`
}

type liveClient struct {
	id     string
	outbox chan []byte
	// since is the Seq of the snapshot the client started from.
	since uint64
}

// liveHub fans session updates out to websocket clients. A client that
// falls a full buffer behind is dropped rather than slowing the rest.
type liveHub struct {
	session   Session
	buffer    int
	writeWait time.Duration
	logger    logger.Logger
	upgrader  websocket.Upgrader

	mu      sync.Mutex
	clients map[string]*liveClient
	closed  bool
	unsub   func()
}

func newLiveHub(session Session, buffer int, writeWait time.Duration, l logger.Logger) *liveHub {
	h := &liveHub{
		session:   session,
		buffer:    buffer,
		writeWait: writeWait,
		logger:    l,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients: make(map[string]*liveClient),
	}
	h.unsub = session.SubscribeView(h.broadcast)
	return h
}

func (h *liveHub) broadcast(u service.Update) {
	data, err := json.Marshal(u)
	if err != nil {
		h.logger.Error(context.Background(), "encode live update", logger.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		if u.Seq <= c.since {
			continue
		}
		select {
		case c.outbox <- data:
		default:
			h.logger.Warn(context.Background(), "dropping slow live client", logger.String("client_id", id))
			h.removeLocked(id)
		}
	}
}

// register queues the snapshot and adds c in one step under h.mu, so every
// update is either in the snapshot or delivered after it.
func (h *liveHub) register(c *liveClient) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false, nil
	}
	view := h.session.MatchView()
	snapshot, err := json.Marshal(snapshotFrame{Kind: "snapshot", View: view})
	if err != nil {
		return false, err
	}
	c.since = view.Seq
	c.outbox <- snapshot
	h.clients[c.id] = c
	metrics.UpdateLiveViewClients(len(h.clients))
	return true, nil
}

func (h *liveHub) unregister(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(id)
}

func (h *liveHub) removeLocked(id string) {
	c, ok := h.clients[id]
	if !ok {
		return
	}
	delete(h.clients, id)
	close(c.outbox)
	metrics.UpdateLiveViewClients(len(h.clients))
}

func (h *liveHub) close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	for id := range h.clients {
		h.removeLocked(id)
	}
	unsub := h.unsub
	h.mu.Unlock()
	unsub()
}

// count returns the number of connected clients.
func (h *liveHub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// handle serves GET /api/match/ws. The first frame is a full snapshot; every
// later frame is one session update.
func (h *liveHub) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn(r.Context(), "live view upgrade failed", logger.Error(err))
		return
	}

	c := &liveClient{id: uuid.NewString(), outbox: make(chan []byte, h.buffer)}
	ok, err := h.register(c)
	if err != nil {
		h.logger.Error(r.Context(), "encode live snapshot", logger.Error(err))
		_ = conn.Close()
		return
	}
	if !ok {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		_ = conn.Close()
		return
	}
	h.logger.Info(r.Context(), "live view client connected", logger.String("client_id", c.id))

	done := make(chan struct{})
	go h.writePump(conn, c, done)
	h.readPump(conn)

	h.unregister(c.id)
	<-done
	h.logger.Info(r.Context(), "live view client disconnected", logger.String("client_id", c.id))
}

// readPump discards client frames and returns when the peer goes away.
func (h *liveHub) readPump(conn *websocket.Conn) {
	conn.SetReadLimit(maxClientFrame)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug(context.Background(), "live view read ended", logger.Error(err))
			}
			return
		}
	}
}

func (h *liveHub) writePump(conn *websocket.Conn, c *liveClient, done chan<- struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
		close(done)
	}()

	for {
		select {
		case data, ok := <-c.outbox:
			_ = conn.SetWriteDeadline(time.Now().Add(h.writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(h.writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
