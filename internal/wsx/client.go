// Package wsx is a client for Zato WebSocket (WSX) channels.
//
// A Client keeps one connection open, logs in with create-session after
// every open, correlates service responses by meta.in_reply_to and
// reconnects after server-side closes. Pub/sub helpers track topic to
// sub_key mappings across reconnects.
package wsx

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/rickgao/zato-client/internal/connection"
	"github.com/rickgao/zato-client/internal/correlation"
	"github.com/rickgao/zato-client/internal/envelope"
	"github.com/rickgao/zato-client/internal/router"
)

// Client is a WSX client.
type Client struct {
	cfg    Config
	cb     Callbacks
	logger *slog.Logger

	conn       *connection.Manager
	engine     *correlation.Engine
	dispatcher *router.Dispatcher
	subs       *subscriptions

	// Session
	mu       sync.RWMutex
	token    string
	state    State
	ready    chan struct{} // closed while authenticated
	sessions int64         // successful logins
}

// New creates a client. Nothing is dialed until Connect.
func New(cfg Config, cb Callbacks, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ClientID == "" {
		cfg.ClientID = uuid.NewString()
	}
	cfg.applyDefaults()

	c := &Client{
		cfg:    cfg,
		cb:     cb,
		logger: logger.With("client_name", cfg.ClientName),
		subs:   newSubscriptions(),
		token:  InvalidToken,
		state:  StateDisconnected,
		ready:  make(chan struct{}),
	}

	c.conn = connection.NewManager(connection.ManagerConfig{
		Client: connection.ClientConfig{
			URL:              cfg.Address,
			HandshakeTimeout: cfg.HandshakeTimeout,
			PingInterval:     cfg.PingInterval,
			PingTimeout:      cfg.PingTimeout,
			WriteTimeout:     cfg.WriteTimeout,
			BufferSize:       cfg.BufferSize,
		},
		ClientID:             cfg.ClientID,
		ClientName:           cfg.ClientName,
		ReconnectBaseWait:    cfg.ReconnectBaseWait,
		ReconnectMaxWait:     cfg.ReconnectMaxWait,
		MaxReconnectAttempts: cfg.MaxReconnectAttempts,
		SendRate:             cfg.SendRate,
		SendBurst:            cfg.SendBurst,
	}, &events{c: c}, c.logger)

	c.engine = correlation.NewEngine(correlation.Config{
		ClientName:      cfg.ClientName,
		PollInterval:    cfg.PollInterval,
		MaxPollAttempts: cfg.MaxPollAttempts,
	}, c.conn, c.logger)

	c.dispatcher = router.NewDispatcher(router.Config{
		BufferSize: cfg.DispatchBufferSize,
	}, c.logger, router.HandlerFunc(c.handleUnsolicited))

	return c
}

// Config returns the client configuration, with ClientID filled in.
func (c *Client) Config() Config {
	return c.cfg
}

// AddMessageHandler registers an extra consumer of unsolicited messages,
// next to Callbacks.OnMessage.
func (c *Client) AddMessageHandler(h router.Handler) {
	c.dispatcher.AddHandler(h)
}

// Connect dials the server. Login runs in the background once the socket
// is open; use WaitReady or Callbacks.WhenReady to learn when it is done.
// ctx bounds the client's lifetime, including reconnections.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.dispatcher.Start(ctx); err != nil {
		return err
	}
	if err := c.conn.Connect(ctx); err != nil {
		return fmt.Errorf("connect %s: %w", c.cfg.Address, err)
	}
	return nil
}

// Disconnect closes the connection as the client. The close carries
// code 1000 and the client's disconnect reason, so no reconnection follows.
func (c *Client) Disconnect() error {
	err := c.conn.Disconnect()
	c.resetSession()
	return err
}

// Close disconnects and stops background goroutines.
func (c *Client) Close(ctx context.Context) error {
	err := c.conn.Stop(ctx)
	c.resetSession()
	if derr := c.dispatcher.Stop(ctx); err == nil {
		err = derr
	}
	return err
}

// IsConnected reports whether the socket is open.
func (c *Client) IsConnected() bool {
	return c.conn.IsConnected()
}

// Stats returns connection statistics.
func (c *Client) Stats() connection.ManagerStats {
	return c.conn.Stats()
}

// PendingResponses returns the number of requests awaiting a response.
func (c *Client) PendingResponses() int {
	return c.engine.Pending()
}

// NewMessageID returns a fresh message id.
func (c *Client) NewMessageID() string {
	return c.engine.NewMessageID()
}

// service returns the fully qualified name of a built-in service.
func (c *Client) service(name string) string {
	return c.cfg.Namespace + "." + name
}

// handleUnsolicited runs on the dispatcher goroutine.
func (c *Client) handleUnsolicited(d router.Delivery) {
	if c.cb.OnMessage != nil {
		c.cb.OnMessage(c, d.Envelope)
		return
	}
	c.logger.Info("message received", "id", d.Envelope.Meta.ID, "data", string(d.Envelope.Data))
}

// reportError hands err to Callbacks.OnError or logs it.
func (c *Client) reportError(err error) {
	if c.cb.OnError != nil {
		c.cb.OnError(c, err)
		return
	}
	c.logger.Error("client error", "error", err)
}

// events adapts the client to connection.Handler.
type events struct {
	c *Client
}

func (e *events) OnOpen(ctx context.Context) {
	e.c.createSession(ctx)
}

func (e *events) OnMessage(env envelope.Envelope) {
	if e.c.engine.Resolve(env) {
		return
	}
	e.c.dispatcher.Enqueue(env)
}

func (e *events) OnClose(code int, reason string) {
	e.c.resetSession()
	if e.c.cb.OnDisconnected != nil {
		e.c.cb.OnDisconnected(e.c, code, reason)
	}
}

func (e *events) OnGiveUp(err error) {
	e.c.reportError(err)
}
