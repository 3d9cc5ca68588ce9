package gateway

import (
	"context"
	"io"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shubham-shewale/stock-watchlist/cmd/gateway/internal/hub"
)

const (
	maxMessageSize = 4 * 1024 // viewers send nothing but control frames
)

type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	default:
		return "closed"
	}
}

// Registry is the part of the hub a session talks to.
type Registry interface {
	Register(ctx context.Context, s hub.Session) error
	Unregister(s hub.Session)
}

var _ hub.Session = (*ViewerSession)(nil)

// ViewerSession is one connected viewer. Payloads only flow server -> client;
// the read side exists to notice pongs and disconnects.
type ViewerSession struct {
	id       string
	conn     net.Conn
	registry Registry
	send     chan []byte
	logger   *zap.Logger
	state    atomic.Int32

	mu     sync.Mutex // guards send against a concurrent close
	closed bool
	once   sync.Once

	writeWait  time.Duration
	pongWait   time.Duration
	pingPeriod time.Duration
}

func NewViewerSession(conn net.Conn, registry Registry, logger *zap.Logger, sendBuffer int) *ViewerSession {
	id := uuid.NewString()
	return &ViewerSession{
		id:         id,
		conn:       conn,
		registry:   registry,
		send:       make(chan []byte, sendBuffer),
		logger:     logger.With(zap.String("session", id), zap.String("remote", conn.RemoteAddr().String())),
		writeWait:  5 * time.Second,
		pongWait:   60 * time.Second,
		pingPeriod: 50 * time.Second,
	}
}

// Start opens the session: the write pump runs first so the initial snapshot
// queued by Register is delivered without waiting for a tick.
func (c *ViewerSession) Start(ctx context.Context) {
	go c.writePump()
	c.state.Store(int32(StateOpen))
	if err := c.registry.Register(ctx, c); err != nil {
		c.logger.Warn("Initial snapshot failed", zap.Error(err))
	}
	go c.readPump()
}

func (c *ViewerSession) ID() string   { return c.id }
func (c *ViewerSession) State() State { return State(c.state.Load()) }

// SendBytes queues a payload without blocking the broadcaster.
func (c *ViewerSession) SendBytes(b []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return hub.ErrSessionClosed
	}
	select {
	case c.send <- b:
		return nil
	default:
		return hub.ErrSendBufferFull
	}
}

// Close moves the session to Closed, leaves the hub and lets writePump close the conn.
func (c *ViewerSession) Close() {
	c.once.Do(func() {
		c.state.Store(int32(StateClosed))
		c.registry.Unregister(c)

		c.mu.Lock()
		c.closed = true
		close(c.send)
		c.mu.Unlock()

		c.logger.Info("Session closed")
	})
}

func (c *ViewerSession) readPump() {
	defer func() {
		c.Close()
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(c.pongWait))

	for {
		header, err := ws.ReadHeader(c.conn)
		if err != nil {
			return
		}

		if header.Length > int64(maxMessageSize) {
			c.logger.Warn("Msg too big", zap.Int64("size", header.Length))
			return
		}

		payload := make([]byte, header.Length)
		if _, err := io.ReadFull(c.conn, payload); err != nil {
			return
		}

		switch header.OpCode {
		case ws.OpClose:
			return
		case ws.OpPong:
			c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
		default:
			c.logger.Debug("Ignoring viewer frame", zap.String("opcode", opName(header.OpCode)))
		}
	}
}

func (c *ViewerSession) writePump() {
	ticker := time.NewTicker(c.pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
			if !ok {
				c.conn.Write(ws.CompiledClose)
				return
			}
			if err := wsutil.WriteServerText(c.conn, msg); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
			if err := wsutil.WriteServerMessage(c.conn, ws.OpPing, nil); err != nil {
				return
			}
		}
	}
}

func opName(op ws.OpCode) string {
	switch op {
	case ws.OpText:
		return "text"
	case ws.OpBinary:
		return "binary"
	case ws.OpPing:
		return "ping"
	case ws.OpContinuation:
		return "continuation"
	default:
		return "other"
	}
}

// Handler upgrades the request and starts a viewer session.
func Handler(registry Registry, logger *zap.Logger, sendBuffer int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, _, _, err := ws.UpgradeHTTP(r, w)
		if err != nil {
			logger.Debug("Websocket upgrade failed", zap.Error(err))
			return
		}
		NewViewerSession(conn, registry, logger, sendBuffer).Start(r.Context())
	}
}
