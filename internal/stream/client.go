// Package stream is the client side of the live match feed. A Client owns at
// most one websocket connection to the event source, sends the team payload
// once per connection, and fans decoded events and connection state changes
// out to subscribers.
//
// Callbacks run one at a time on a single goroutine, in the order the
// underlying events happened. A callback may subscribe, unsubscribe, connect
// or disconnect without deadlocking.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/okian/courtside/internal/domain/match"
	"github.com/okian/courtside/pkg/dispatch"
	"github.com/okian/courtside/pkg/logger"
	"github.com/okian/courtside/pkg/metrics"
)

const (
	defaultDialTimeout  = 5 * time.Second
	defaultWriteTimeout = 10 * time.Second
	closeGracePeriod    = time.Second

	closeReason = "User disconnected"
)

type subscriber[F any] struct {
	id     uint64
	fn     F
	active atomic.Bool
}

// Client is safe for concurrent use. Construct it with New; the zero value is
// not usable.
type Client struct {
	url            string
	header         http.Header
	dialer         *websocket.Dialer
	dialTimeout    time.Duration
	writeTimeout   time.Duration
	readTimeout    time.Duration
	policy         ReconnectPolicy
	defaultPayload func() *match.ConnectPayload
	logger         logger.Logger

	dispatch *dispatch.Serial
	writeMu  sync.Mutex

	mu          sync.Mutex
	state       State
	conn        *websocket.Conn
	gen         uint64
	connecting  bool
	cancelDial  context.CancelFunc
	retryTimer  *time.Timer
	retries     int
	pending     *match.ConnectPayload
	last        *match.ConnectPayload
	eventSubs   []*subscriber[func(match.Event)]
	stateSubs   []*subscriber[func(State)]
	nextSubID   uint64
	closed      bool
	connectedAt time.Time
}

// New creates a client for the event source at url. Nothing is dialed until
// Connect.
func New(url string, opts ...Option) *Client {
	c := &Client{
		url:            url,
		dialTimeout:    defaultDialTimeout,
		writeTimeout:   defaultWriteTimeout,
		defaultPayload: match.DefaultPayload,
		logger:         logger.Get().Named("stream"),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.dialer = &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: c.dialTimeout,
	}
	c.dispatch = dispatch.NewSerial(dispatch.WithPanicHandler(func(v any) {
		metrics.RecordSubscriberPanic()
		c.logger.Error(context.Background(), "stream callback panicked", logger.Any("panic", v))
	}))
	metrics.UpdateStreamState(int(Disconnected))
	return c
}

// URL returns the event source address.
func (c *Client) URL() string { return c.url }

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect opens a connection if there is none. payload, or the default
// payload when nil, is sent once the connection opens.
//
// If a connection is already open and payload is non-nil it is sent on that
// connection at once. If an attempt is already in flight payload is kept and
// sent when it opens. Two attempts never run at the same time.
func (c *Client) Connect(payload *match.ConnectPayload) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}

	if c.conn != nil {
		conn, gen := c.conn, c.gen
		c.mu.Unlock()
		if payload == nil {
			return nil
		}
		c.logger.Info(context.Background(), "sending payload on existing connection")
		return c.send(gen, conn, payload)
	}

	if c.connecting {
		if payload != nil {
			c.pending = payload
		}
		c.mu.Unlock()
		c.logger.Debug(context.Background(), "connection attempt already in flight")
		return nil
	}

	if c.retryTimer != nil {
		// A manual connect preempts the scheduled retry.
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
	if payload != nil {
		c.pending = payload
	}
	c.startDialLocked(false)
	c.mu.Unlock()
	return nil
}

// Disconnect closes the connection with a normal closure, cancels any
// attempt in flight and any scheduled retry. Events still queued for the old
// connection are dropped. A later Connect opens a fresh connection.
func (c *Client) Disconnect() {
	c.mu.Lock()
	conn := c.disconnectLocked()
	c.mu.Unlock()

	if conn != nil {
		c.closeConn(conn)
	}
}

func (c *Client) disconnectLocked() *websocket.Conn {
	c.gen++
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
	if c.cancelDial != nil {
		c.cancelDial()
		c.cancelDial = nil
	}
	c.connecting = false
	c.retries = 0
	c.pending = nil
	conn := c.conn
	c.conn = nil
	c.setStateLocked(Disconnected)
	if conn != nil {
		c.logger.Info(context.Background(), "disconnecting", logger.String("url", c.url))
	}
	return conn
}

func (c *Client) closeConn(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, closeReason)
	if err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGracePeriod)); err != nil &&
		!errors.Is(err, websocket.ErrCloseSent) {
		c.logger.Debug(context.Background(), "close frame not sent", logger.Error(err))
	}
	_ = conn.Close()
}

// Close disconnects and stops delivering callbacks. The client cannot be
// reused.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	conn := c.disconnectLocked()
	c.closed = true
	c.mu.Unlock()

	if conn != nil {
		c.closeConn(conn)
	}
	c.dispatch.Close()
	return nil
}

// SubscribeEvents registers fn for every decoded event. The returned function
// unsubscribes; it is idempotent and safe to call from inside fn.
func (c *Client) SubscribeEvents(fn func(match.Event)) (unsubscribe func()) {
	s := &subscriber[func(match.Event)]{fn: fn}
	s.active.Store(true)

	c.mu.Lock()
	s.id = c.nextSubID
	c.nextSubID++
	c.eventSubs = appendSub(c.eventSubs, s)
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.active.Store(false)
			c.mu.Lock()
			c.eventSubs = removeSub(c.eventSubs, s.id)
			c.mu.Unlock()
		})
	}
}

// SubscribeState registers fn for connection state changes. fn is first
// called with the current state.
func (c *Client) SubscribeState(fn func(State)) (unsubscribe func()) {
	s := &subscriber[func(State)]{fn: fn}
	s.active.Store(true)

	c.mu.Lock()
	s.id = c.nextSubID
	c.nextSubID++
	c.stateSubs = appendSub(c.stateSubs, s)
	current := c.state
	c.dispatch.Submit(func() { c.call(func() { deliver(s, current) }) })
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.active.Store(false)
			c.mu.Lock()
			c.stateSubs = removeSub(c.stateSubs, s.id)
			c.mu.Unlock()
		})
	}
}

// Sync waits until every callback queued so far has run. Do not call it from
// inside a callback.
func (c *Client) Sync() { c.dispatch.Sync() }

func deliver[T any](s *subscriber[func(T)], v T) {
	if s.active.Load() {
		s.fn(v)
	}
}

// call runs one callback, containing a panic so siblings still get theirs.
func (c *Client) call(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			metrics.RecordSubscriberPanic()
			c.logger.Error(context.Background(), "stream subscriber panicked", logger.Any("panic", r))
		}
	}()
	fn()
}

func (c *Client) setStateLocked(s State) {
	if c.state == s {
		return
	}
	prev := c.state
	c.state = s
	metrics.UpdateStreamState(int(s))
	c.logger.Info(context.Background(), "connection state changed",
		logger.String("from", prev.String()),
		logger.String("to", s.String()),
	)
	subs := c.stateSubs
	c.dispatch.Submit(func() {
		for _, sub := range subs {
			c.call(func() { deliver(sub, s) })
		}
	})
}

func (c *Client) startDialLocked(auto bool) {
	c.gen++
	gen := c.gen
	c.connecting = true
	if auto {
		c.setStateLocked(Reconnecting)
	} else {
		c.setStateLocked(Connecting)
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.dialTimeout)
	c.cancelDial = cancel
	go c.dial(ctx, cancel, gen, auto)
}

func (c *Client) dial(ctx context.Context, cancel context.CancelFunc, gen uint64, auto bool) {
	defer cancel()
	c.logger.Info(ctx, "connecting", logger.String("url", c.url), logger.Bool("reconnect", auto))
	conn, resp, err := c.dialer.DialContext(ctx, c.url, c.header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	c.mu.Lock()
	if gen != c.gen {
		// Disconnected or closed while dialing.
		c.mu.Unlock()
		metrics.RecordConnectAttempt("cancelled")
		if conn != nil {
			_ = conn.Close()
		}
		return
	}
	c.connecting = false
	c.cancelDial = nil

	if err != nil {
		metrics.RecordConnectAttempt("error")
		c.logger.Warn(ctx, "connect failed", logger.String("url", c.url), logger.Error(err))
		c.droppedLocked()
		c.mu.Unlock()
		return
	}
	metrics.RecordConnectAttempt("ok")

	c.conn = conn
	c.connectedAt = time.Now()
	c.setStateLocked(Connected)

	payload := c.pending
	c.pending = nil
	if payload == nil && auto {
		payload = c.last
	}
	if payload == nil {
		payload = c.defaultPayload()
	}
	c.last = payload
	// Queued behind the Connected notification.
	c.dispatch.Submit(func() {
		if err := c.send(gen, conn, payload); err != nil {
			c.logger.Warn(context.Background(), "initial payload not sent", logger.Error(err))
		}
	})
	c.mu.Unlock()

	go c.readLoop(gen, conn)
}

// send writes payload if conn is still the live connection of generation gen.
func (c *Client) send(gen uint64, conn *websocket.Conn, payload *match.ConnectPayload) error {
	c.mu.Lock()
	live := c.gen == gen && c.conn == conn
	c.mu.Unlock()
	if !live {
		return ErrNotConnected
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("send payload: %w", err)
	}
	metrics.RecordPayloadSent()
	c.logger.Info(context.Background(), "payload sent",
		logger.String("team1", payload.Team1.Name),
		logger.String("team2", payload.Team2.Name),
	)
	return nil
}

func (c *Client) readLoop(gen uint64, conn *websocket.Conn) {
	for {
		if c.readTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(c.readTimeout))
		}
		kind, data, err := conn.ReadMessage()
		if err != nil {
			c.readFailed(gen, conn, err)
			return
		}
		if kind != websocket.TextMessage && kind != websocket.BinaryMessage {
			continue
		}
		metrics.RecordStreamMessage()

		ev, err := match.Decode(data)
		if err != nil {
			metrics.RecordStreamDecodeFailure()
			c.logger.Warn(context.Background(), "dropping undecodable frame",
				logger.Int("bytes", len(data)),
				logger.Error(err),
			)
			continue
		}

		c.mu.Lock()
		if c.gen != gen {
			c.mu.Unlock()
			return
		}
		subs := c.eventSubs
		c.dispatch.Submit(func() {
			if c.generation() != gen {
				return
			}
			metrics.RecordStreamEvent(string(ev.Type()))
			for _, sub := range subs {
				c.call(func() { deliver(sub, ev) })
			}
		})
		c.mu.Unlock()
	}
}

func (c *Client) generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

func (c *Client) readFailed(gen uint64, conn *websocket.Conn, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen || c.conn != conn {
		return
	}
	c.conn = nil
	_ = conn.Close()

	fields := []logger.Field{logger.String("url", c.url), logger.Duration("uptime", time.Since(c.connectedAt))}
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		fields = append(fields, logger.Int("close_code", ce.Code), logger.String("close_text", ce.Text))
	} else {
		fields = append(fields, logger.Error(err))
	}
	c.logger.Info(context.Background(), "connection closed", fields...)
	c.droppedLocked()
}

// droppedLocked decides what follows a failed dial or a lost connection.
func (c *Client) droppedLocked() {
	if c.closed || !c.policy.Enabled() || c.retries >= c.policy.MaxRetries {
		if c.retries > 0 {
			c.logger.Warn(context.Background(), "giving up reconnecting", logger.Int("attempts", c.retries))
		}
		c.retries = 0
		c.setStateLocked(Disconnected)
		return
	}
	c.retries++
	delay := c.policy.Delay(c.retries)
	gen := c.gen
	metrics.RecordReconnect()
	c.setStateLocked(Reconnecting)
	c.logger.Info(context.Background(), "reconnect scheduled",
		logger.Int("attempt", c.retries),
		logger.Duration("delay", delay),
	)
	c.retryTimer = time.AfterFunc(delay, func() { c.retry(gen) })
}

func (c *Client) retry(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen || c.closed || c.conn != nil || c.connecting {
		return
	}
	c.retryTimer = nil
	c.startDialLocked(true)
}

func appendSub[F any](subs []*subscriber[F], s *subscriber[F]) []*subscriber[F] {
	out := make([]*subscriber[F], 0, len(subs)+1)
	out = append(out, subs...)
	return append(out, s)
}

func removeSub[F any](subs []*subscriber[F], id uint64) []*subscriber[F] {
	out := make([]*subscriber[F], 0, len(subs))
	for _, s := range subs {
		if s.id != id {
			out = append(out, s)
		}
	}
	return out
}
