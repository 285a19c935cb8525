package websocket

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed for the close frame before the socket is torn down.
	closeWait = time.Second

	// Maximum message size allowed from peer. Tickets are short.
	maxMessageSize = 1024

	defaultPingInterval = 15 * time.Second
	defaultPongWait     = 30 * time.Second
	defaultSendBuffer   = 64
)

var (
	ErrSessionClosed  = errors.New("session closed")
	ErrSendBufferFull = errors.New("session send buffer full")
)

// Frame is one inbound websocket message.
type Frame struct {
	Type int
	Data []byte
}

// Session is a live client connection as seen by the relay.
type Session interface {
	ID() string
	// Send queues a text message for the peer.
	Send(msg string) error
	IsOpen() bool
	// Close marks the session closed and releases it in the background with
	// a close frame carrying code. It never blocks on the peer.
	Close(code int, reason string)
	// Frames yields inbound messages and is closed when the peer goes away.
	Frames() <-chan Frame
}

// ConnConfig holds keepalive and buffering settings.
type ConnConfig struct {
	PingInterval time.Duration
	PongWait     time.Duration
	SendBuffer   int
}

// Conn is a Session over a gorilla websocket connection.
type Conn struct {
	id     string
	ws     *websocket.Conn
	send   chan string
	frames chan Frame
	done   chan struct{}
	cfg    ConnConfig
	logger *slog.Logger

	closed    atomic.Bool
	closeOnce sync.Once
}

var _ Session = (*Conn)(nil)

// NewConn wraps an upgraded connection. Call Start to run its pumps.
func NewConn(ws *websocket.Conn, cfg ConnConfig, logger *slog.Logger) *Conn {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaultPingInterval
	}
	if cfg.PongWait <= cfg.PingInterval {
		cfg.PongWait = cfg.PingInterval + defaultPongWait/2
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = defaultSendBuffer
	}
	if logger == nil {
		logger = slog.Default()
	}

	id := uuid.NewString()
	return &Conn{
		id:     id,
		ws:     ws,
		send:   make(chan string, cfg.SendBuffer),
		frames: make(chan Frame),
		done:   make(chan struct{}),
		cfg:    cfg,
		logger: logger.With("connection_id", id),
	}
}

// Start runs the read and write pumps in their own goroutines.
func (c *Conn) Start() {
	go c.writePump()
	go c.readPump()
}

func (c *Conn) ID() string {
	return c.id
}

func (c *Conn) IsOpen() bool {
	return !c.closed.Load()
}

func (c *Conn) Frames() <-chan Frame {
	return c.frames
}

func (c *Conn) Send(msg string) error {
	if c.closed.Load() {
		return ErrSessionClosed
	}
	select {
	case c.send <- msg:
		return nil
	case <-c.done:
		return ErrSessionClosed
	default:
		return ErrSendBufferFull
	}
}

func (c *Conn) Close(code int, reason string) {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.done)
		go c.sendCloseAndRelease(code, reason)
	})
}

// sendCloseAndRelease writes the close frame and closes the socket. A
// writePump stuck on a peer that stopped reading holds the write lock, so
// the close frame gets at most closeWait before the socket goes away
// underneath it.
func (c *Conn) sendCloseAndRelease(code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	if err := c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWait)); err != nil {
		c.logger.Debug("failed to send close message", "error", err)
	}
	_ = c.ws.Close()
}

// terminate releases the connection without a close handshake.
func (c *Conn) terminate() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.done)
		_ = c.ws.Close()
	})
}

// readPump forwards inbound frames until the peer goes away.
func (c *Conn) readPump() {
	defer func() {
		close(c.frames)
		c.terminate()
	}()

	c.ws.SetReadLimit(maxMessageSize)
	if err := c.ws.SetReadDeadline(time.Now().Add(c.cfg.PongWait)); err != nil {
		c.logger.Error("failed to set read deadline", "error", err)
		return
	}

	c.ws.SetPongHandler(func(string) error {
		if err := c.ws.SetReadDeadline(time.Now().Add(c.cfg.PongWait)); err != nil {
			c.logger.Error("failed to set read deadline in pong handler", "error", err)
		}
		return nil
	})

	for {
		msgType, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.logger.Warn("websocket read error", "error", err)
			}
			return
		}

		select {
		case c.frames <- Frame{Type: msgType, Data: data}:
		case <-c.done:
			return
		}
	}
}

// writePump delivers queued messages and keeps the connection alive with pings.
func (c *Conn) writePump() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.terminate()
	}()

	for {
		select {
		case msg := <-c.send:
			if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.logger.Error("failed to set write deadline", "error", err)
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				c.logger.Debug("failed to write message", "error", err)
				return
			}

		case <-ticker.C:
			if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.logger.Error("failed to set write deadline for ping", "error", err)
				return
			}
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Debug("failed to send ping", "error", err)
				return
			}

		case <-c.done:
			return
		}
	}
}
