package push

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
)

// wsConn is the write side of a websocket connection. *websocket.Conn
// satisfies it; tests substitute an in-memory fake.
type wsConn interface {
	Write(ctx context.Context, typ websocket.MessageType, p []byte) error
	Ping(ctx context.Context) error
	Close(code websocket.StatusCode, reason string) error
}

// Session is one consumer of a player's reaction stream. Outbound frames go
// through a bounded queue: when a consumer falls more than the buffer size
// (default [sessionBuffer]) behind, the oldest frames are dropped and the
// consumer gets a notice with the drop count once it catches up. A consumer is
// only disconnected when a single write stalls past [writeTimeout] or it stops
// answering pings.
type Session struct {
	conn      wsConn
	log       *slog.Logger
	now       func() time.Time
	heartbeat time.Duration
	onDrop    func(n int64)

	out  chan []byte
	lost atomic.Int64

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// SessionOption configures a [Session].
type SessionOption func(*sessionConfig)

type sessionConfig struct {
	buffer    int
	heartbeat time.Duration
	onDrop    func(n int64)
}

// WithSessionBuffer sets the outbound queue depth. Default [sessionBuffer].
func WithSessionBuffer(n int) SessionOption {
	return func(c *sessionConfig) {
		if n > 0 {
			c.buffer = n
		}
	}
}

// WithHeartbeat sets the keepalive ping interval. Default [pingInterval].
func WithHeartbeat(d time.Duration) SessionOption {
	return func(c *sessionConfig) {
		if d > 0 {
			c.heartbeat = d
		}
	}
}

// WithDropHook registers a callback invoked for every frame discarded on
// overflow. The app wires it to the frames-dropped counter.
func WithDropHook(fn func(n int64)) SessionOption {
	return func(c *sessionConfig) { c.onDrop = fn }
}

// NewSession wraps an accepted connection. Call [Session.Start] to begin
// delivery.
func NewSession(conn wsConn, log *slog.Logger, now func() time.Time, opts ...SessionOption) *Session {
	if log == nil {
		log = slog.Default()
	}
	if now == nil {
		now = time.Now
	}
	cfg := sessionConfig{buffer: sessionBuffer, heartbeat: pingInterval}
	for _, o := range opts {
		o(&cfg)
	}
	return &Session{
		conn:      conn,
		log:       log,
		now:       now,
		heartbeat: cfg.heartbeat,
		onDrop:    cfg.onDrop,
		out:       make(chan []byte, cfg.buffer),
		done:      make(chan struct{}),
	}
}

// Start launches the writer and keepalive loops. They stop when ctx is
// cancelled or the session is closed.
func (s *Session) Start(ctx context.Context) {
	s.wg.Add(2)
	go s.writeLoop(ctx)
	go s.pingLoop(ctx)
}

// Close tears the session down. Safe to call more than once; only the first
// code and reason reach the client.
func (s *Session) Close(code websocket.StatusCode, reason string) {
	s.closeOnce.Do(func() {
		close(s.done)
		_ = s.conn.Close(code, reason)
	})
}

// Wait blocks until the writer and keepalive loops have exited.
func (s *Session) Wait() { s.wg.Wait() }

// Lost reports how many frames have been dropped and not yet acknowledged by
// a notice.
func (s *Session) Lost() int64 { return s.lost.Load() }

// enqueue queues one frame without blocking. On overflow the oldest queued
// frame is discarded and counted.
func (s *Session) enqueue(frame []byte) {
	for {
		select {
		case <-s.done:
			return
		case s.out <- frame:
			return
		default:
		}
		select {
		case <-s.out:
			s.lost.Add(1)
			if s.onDrop != nil {
				s.onDrop(1)
			}
		default:
		}
	}
}

// sendError queues an error frame for the client.
func (s *Session) sendError(reason string) {
	frame, err := json.Marshal(ServerMessage{
		Type:  TypeError,
		Error: reason,
		TS:    s.now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return
	}
	s.enqueue(frame)
}

func (s *Session) writeLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case frame := <-s.out:
			if !s.write(ctx, frame) {
				return
			}
			// Queue drained: tell the client what it missed.
			if len(s.out) == 0 {
				if n := s.lost.Swap(0); n > 0 {
					s.notifyLost(ctx, n)
				}
			}
		}
	}
}

func (s *Session) write(ctx context.Context, frame []byte) bool {
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	err := s.conn.Write(wctx, websocket.MessageText, frame)
	cancel()
	if err != nil {
		s.log.Debug("push: write failed, closing session", "error", err)
		s.Close(websocket.StatusPolicyViolation, "write timeout")
		return false
	}
	return true
}

func (s *Session) notifyLost(ctx context.Context, n int64) {
	frame, err := json.Marshal(ServerMessage{
		Type:      TypeNotice,
		LostCount: n,
		TS:        s.now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return
	}
	s.write(ctx, frame)
}

func (s *Session) pingLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-ticker.C:
			// Two missed pongs end the connection.
			pctx, cancel := context.WithTimeout(ctx, 2*s.heartbeat)
			err := s.conn.Ping(pctx)
			cancel()
			if err != nil {
				s.log.Debug("push: pong timeout, closing session", "error", err)
				s.Close(websocket.StatusGoingAway, "pong timeout")
				return
			}
		}
	}
}
