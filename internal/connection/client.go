package connection

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Client represents a single WebSocket connection to a WSX channel.
type Client interface {
	// Connect establishes the WebSocket connection.
	Connect(ctx context.Context) error

	// Close gracefully closes the connection with a normal closure.
	Close() error

	// CloseWithReason closes the connection sending the given code and reason.
	CloseWithReason(code int, reason string) error

	// Send writes a text frame to the connection.
	Send(data []byte) error

	// Messages returns a channel of all inbound frames.
	// Each message includes a local timestamp for when it was received.
	Messages() <-chan TimestampedMessage

	// Errors returns a channel of connection errors. A server-side close
	// arrives here as a *websocket.CloseError.
	Errors() <-chan error

	// Done is closed once Close or CloseWithReason has been called.
	Done() <-chan struct{}

	// IsConnected returns current connection state.
	IsConnected() bool
}

// client implements the Client interface.
type client struct {
	cfg    ClientConfig
	logger *slog.Logger

	conn *websocket.Conn

	// Output channels
	messages chan TimestampedMessage
	errors   chan error
	done     chan struct{}

	// Write serialization
	writeMu sync.Mutex

	// State
	mu         sync.RWMutex
	connected  bool
	lastPongAt time.Time
	closed     bool
}

// NewClient creates a new WebSocket client.
func NewClient(cfg ClientConfig, logger *slog.Logger) Client {
	if logger == nil {
		logger = slog.Default()
	}

	return &client{
		cfg:      cfg,
		logger:   logger,
		messages: make(chan TimestampedMessage, cfg.BufferSize),
		errors:   make(chan error, 1),
		done:     make(chan struct{}),
	}
}

// Connect establishes the WebSocket connection.
func (c *client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrAlreadyClosed
	}
	c.mu.Unlock()

	header := http.Header{}
	header.Set("Accept", "application/json")

	dialer := websocket.Dialer{
		HandshakeTimeout: c.cfg.HandshakeTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, c.cfg.URL, header)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.lastPongAt = time.Now()
	c.mu.Unlock()

	// Any pong, or a ping from the server, proves the peer is alive.
	conn.SetPongHandler(func(string) error {
		c.touch()
		return nil
	})
	conn.SetPingHandler(func(data string) error {
		c.touch()

		c.writeMu.Lock()
		defer c.writeMu.Unlock()
		return conn.WriteControl(
			websocket.PongMessage,
			[]byte(data),
			time.Now().Add(time.Second),
		)
	})

	go c.readLoop()
	if c.cfg.PingInterval > 0 {
		go c.heartbeatLoop()
	}

	c.logger.Debug("websocket connected", "url", c.cfg.URL)

	return nil
}

// Close gracefully closes the connection.
func (c *client) Close() error {
	return c.CloseWithReason(websocket.CloseNormalClosure, "")
}

// CloseWithReason sends a close frame with code and reason, then closes.
func (c *client) CloseWithReason(code int, reason string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.connected = false
	conn := c.conn
	c.mu.Unlock()

	// Signal goroutines to stop
	close(c.done)

	if conn == nil {
		return nil
	}

	c.writeMu.Lock()
	err := conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		time.Now().Add(time.Second),
	)
	c.writeMu.Unlock()
	if err != nil {
		c.logger.Debug("failed to send close frame", "error", err)
	}

	return conn.Close()
}

// Send writes a text frame to the connection.
func (c *client) Send(data []byte) error {
	c.mu.RLock()
	if !c.connected {
		c.mu.RUnlock()
		return ErrNotConnected
	}
	conn := c.conn
	c.mu.RUnlock()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.cfg.WriteTimeout > 0 {
		conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

// Messages returns the messages channel.
func (c *client) Messages() <-chan TimestampedMessage {
	return c.messages
}

// Errors returns the errors channel.
func (c *client) Errors() <-chan error {
	return c.errors
}

// Done returns a channel closed by Close.
func (c *client) Done() <-chan struct{} {
	return c.done
}

// IsConnected returns the current connection state.
func (c *client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

func (c *client) touch() {
	c.mu.Lock()
	c.lastPongAt = time.Now()
	c.mu.Unlock()
}

// readLoop reads frames from the WebSocket and sends them to the messages channel.
func (c *client) readLoop() {
	defer func() {
		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		receivedAt := time.Now() // Capture timestamp immediately

		if err != nil {
			// Ignore errors after Close() is called
			select {
			case <-c.done:
				return
			default:
				select {
				case c.errors <- err:
				default:
				}
				return
			}
		}

		msg := TimestampedMessage{
			Data:       data,
			ReceivedAt: receivedAt,
		}

		// Responses must not be dropped, so wait for the consumer.
		select {
		case c.messages <- msg:
		case <-c.done:
			return
		}
	}
}

// heartbeatLoop pings the server and reports stale connections.
func (c *client) heartbeatLoop() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.mu.RLock()
			conn := c.conn
			lastPong := c.lastPongAt
			c.mu.RUnlock()

			c.writeMu.Lock()
			var deadline time.Time // zero = no deadline
			if c.cfg.WriteTimeout > 0 {
				deadline = time.Now().Add(c.cfg.WriteTimeout)
			}
			if err := conn.WriteControl(websocket.PingMessage, []byte("keepalive"), deadline); err != nil {
				c.logger.Debug("failed to send ping", "error", err)
			}
			c.writeMu.Unlock()

			if c.cfg.PingTimeout > 0 && time.Since(lastPong) > c.cfg.PingTimeout {
				c.logger.Warn("no pong received, connection stale",
					"last_pong", lastPong,
					"timeout", c.cfg.PingTimeout,
				)
				select {
				case c.errors <- ErrStaleConnection:
				default:
				}
				// Unblock the read loop; its error is swallowed because
				// errors already holds ErrStaleConnection.
				conn.Close()
				return
			}
		}
	}
}
