package connection

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/rickgao/zato-client/internal/envelope"
)

// Manager owns the WSX socket of one client: it dials, decodes inbound
// frames, tells client-initiated closes from server-initiated ones, and
// reconnects after the latter.
type Manager struct {
	cfg     ManagerConfig
	handler Handler
	logger  *slog.Logger
	limiter *rate.Limiter

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// State
	mu         sync.RWMutex
	client     Client
	connCancel context.CancelFunc // ends the open handler of the current connection
	connected  bool
	closing   bool
	ready     chan struct{} // closed while connected

	// Stats
	statsMu sync.Mutex
	stats   ManagerStats
}

// NewManager creates a Connection Manager delivering events to handler.
func NewManager(cfg ManagerConfig, handler Handler, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}

	m := &Manager{
		cfg:     cfg,
		handler: handler,
		logger:  logger,
		ready:   make(chan struct{}),
	}

	if cfg.SendRate > 0 {
		burst := cfg.SendBurst
		if burst < 1 {
			burst = 1
		}
		m.limiter = rate.NewLimiter(rate.Limit(cfg.SendRate), burst)
	}

	return m
}

// Address returns the configured WSX address.
func (m *Manager) Address() string {
	return m.cfg.Client.URL
}

// DisconnectReason returns the reason sent on a client-initiated close.
func (m *Manager) DisconnectReason() string {
	return DisconnectReason(m.cfg.ClientID, m.cfg.ClientName)
}

// Connect opens a new connection. ctx bounds the lifetime of the manager,
// including every later reconnection.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.ctx == nil || m.ctx.Err() != nil {
		m.ctx, m.cancel = context.WithCancel(ctx)
	}
	m.closing = false
	m.mu.Unlock()

	m.logger.Info("connecting", "address", m.cfg.Client.URL)

	return m.dial()
}

// dial creates a fresh client and starts its read loop and the open handler.
func (m *Manager) dial() error {
	m.mu.RLock()
	ctx := m.ctx
	m.mu.RUnlock()

	c := NewClient(m.cfg.Client, m.logger)
	if err := c.Connect(ctx); err != nil {
		return err
	}

	m.mu.Lock()
	if m.closing {
		m.mu.Unlock()
		c.Close()
		return ErrAlreadyClosed
	}
	connCtx, connCancel := context.WithCancel(ctx)
	m.client = c
	m.connCancel = connCancel
	m.setConnectedLocked(true)
	m.mu.Unlock()

	m.statsMu.Lock()
	m.stats.Connects++
	m.statsMu.Unlock()

	m.logger.Info("connected", "address", m.cfg.Client.URL)

	m.wg.Add(2)
	go m.readLoop(ctx, c)
	go func() {
		defer m.wg.Done()
		m.handler.OnOpen(connCtx)
	}()

	return nil
}

// Disconnect closes the connection as the client. No reconnection follows.
func (m *Manager) Disconnect() error {
	m.mu.Lock()
	m.closing = true
	c := m.client
	m.cancelConnLocked()
	m.setConnectedLocked(false)
	m.mu.Unlock()

	if c == nil {
		return nil
	}

	err := c.CloseWithReason(CloseNormal, m.DisconnectReason())
	m.logger.Info("disconnected", "address", m.cfg.Client.URL)
	return err
}

// Stop disconnects and waits for background goroutines.
func (m *Manager) Stop(ctx context.Context) error {
	err := m.Disconnect()

	m.mu.Lock()
	if m.cancel != nil {
		m.cancel()
	}
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		m.logger.Warn("shutdown timeout, forcing close")
	}

	return err
}

// Send writes an encoded envelope to the current connection.
func (m *Manager) Send(data []byte) error {
	m.mu.RLock()
	c := m.client
	connected := m.connected
	ctx := m.ctx
	m.mu.RUnlock()

	if c == nil || !connected {
		return ErrNotConnected
	}

	if m.limiter != nil {
		if err := m.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	if err := c.Send(data); err != nil {
		return err
	}

	m.statsMu.Lock()
	m.stats.FramesOut++
	m.statsMu.Unlock()
	return nil
}

// IsConnected reports whether a connection is open.
func (m *Manager) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected
}

// WaitConnected blocks until a connection is open or ctx ends.
func (m *Manager) WaitConnected(ctx context.Context) error {
	m.mu.RLock()
	ready := m.ready
	m.mu.RUnlock()

	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns current statistics.
func (m *Manager) Stats() ManagerStats {
	m.statsMu.Lock()
	stats := m.stats
	m.statsMu.Unlock()

	stats.Connected = m.IsConnected()
	return stats
}

// setConnectedLocked flips the connected flag. m.mu must be held.
func (m *Manager) setConnectedLocked(connected bool) {
	if connected == m.connected {
		return
	}
	m.connected = connected
	if connected {
		close(m.ready)
	} else {
		m.ready = make(chan struct{})
	}
}

// cancelConnLocked ends the context handed to OnOpen for the current
// connection. m.mu must be held.
func (m *Manager) cancelConnLocked() {
	if m.connCancel != nil {
		m.connCancel()
		m.connCancel = nil
	}
}

// readLoop decodes frames of one client until it closes.
func (m *Manager) readLoop(ctx context.Context, c Client) {
	defer m.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return

		case <-c.Done():
			// Closed by Disconnect or Stop.
			return

		case err := <-c.Errors():
			m.drain(c)
			m.handleClose(ctx, c, err)
			return

		case msg := <-c.Messages():
			m.dispatch(msg)
		}
	}
}

// drain dispatches frames that were buffered before the connection failed.
func (m *Manager) drain(c Client) {
	for {
		select {
		case msg := <-c.Messages():
			m.dispatch(msg)
		default:
			return
		}
	}
}

// dispatch decodes a frame and hands it to the handler.
func (m *Manager) dispatch(msg TimestampedMessage) {
	m.logger.Info("message received", "data", string(msg.Data))

	env, err := envelope.Decode(msg.Data)
	if err != nil {
		m.logger.Warn("dropping undecodable frame", "error", err)
		m.statsMu.Lock()
		m.stats.BadFrames++
		m.statsMu.Unlock()
		return
	}

	m.statsMu.Lock()
	m.stats.FramesIn++
	m.statsMu.Unlock()

	m.handler.OnMessage(env)
}

// isClientClose reports whether a close event was initiated by this client.
func (m *Manager) isClientClose(code int, reason string) bool {
	return code == CloseNormal && reason == m.DisconnectReason()
}

// handleClose classifies a connection failure and reconnects on server-side closes.
func (m *Manager) handleClose(ctx context.Context, c Client, err error) {
	code, reason := closeDetails(err)

	m.mu.Lock()
	if m.client == c {
		m.cancelConnLocked()
	}
	m.setConnectedLocked(false)
	closing := m.closing
	m.mu.Unlock()

	c.Close()

	if closing || m.isClientClose(code, reason) {
		m.logger.Info("connection closed by client", "code", code, "reason", reason)
		return
	}

	m.logger.Error("server closed connection",
		"address", m.cfg.Client.URL,
		"code", code,
		"reason", reason,
		"error", err,
	)

	m.handler.OnClose(code, reason)

	m.wg.Add(1)
	go m.reconnect(ctx)
}

// closeDetails extracts the close code and reason from a read error.
func closeDetails(err error) (int, string) {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code, ce.Text
	}
	return websocket.CloseAbnormalClosure, ""
}

// reconnect dials again with exponential backoff until it succeeds, the
// manager stops, or MaxReconnectAttempts is used up.
func (m *Manager) reconnect(ctx context.Context) {
	defer m.wg.Done()

	wait := m.cfg.ReconnectBaseWait
	maxWait := m.cfg.ReconnectMaxWait

	for attempt := 1; ; attempt++ {
		if m.cfg.MaxReconnectAttempts > 0 && attempt > m.cfg.MaxReconnectAttempts {
			m.logger.Error("giving up reconnection",
				"address", m.cfg.Client.URL,
				"attempts", m.cfg.MaxReconnectAttempts,
			)
			m.handler.OnGiveUp(ErrReconnectExhausted)
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}

		m.mu.RLock()
		closing := m.closing
		m.mu.RUnlock()
		if closing {
			return
		}

		m.logger.Info("attempting reconnection",
			"address", m.cfg.Client.URL,
			"attempt", attempt,
		)

		if err := m.dial(); err != nil {
			m.logger.Warn("reconnection failed",
				"address", m.cfg.Client.URL,
				"attempt", attempt,
				"error", err,
			)

			// Exponential backoff
			wait *= 2
			if wait > maxWait {
				wait = maxWait
			}
			continue
		}

		m.statsMu.Lock()
		m.stats.Reconnects++
		m.statsMu.Unlock()

		m.logger.Info("reconnected", "address", m.cfg.Client.URL)
		return
	}
}
