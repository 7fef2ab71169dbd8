// Package correlation matches asynchronous WSX responses to the requests that
// caused them.
//
// Every outgoing request is registered under its message id before it is
// written to the socket. A response carrying meta.in_reply_to resolves the
// matching entry and wakes the waiter. Waiters are bounded by
// PollInterval × MaxPollAttempts.
package correlation

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/zato-client/internal/envelope"
)

// Errors
var (
	ErrResponseTimeout = errors.New("response timeout")
	ErrNotPending      = errors.New("message is not pending")
	ErrDuplicateID     = errors.New("message id already pending")
)

// Sender transmits an encoded frame.
type Sender interface {
	Send(data []byte) error
}

// Config configures the Engine.
type Config struct {
	ClientName      string        // Prefix of generated message ids
	PollInterval    time.Duration // Reference: 200ms
	MaxPollAttempts int           // Reference: 100
}

// DefaultConfig returns the reference wait budget (about 20s).
func DefaultConfig() Config {
	return Config{
		PollInterval:    200 * time.Millisecond,
		MaxPollAttempts: 100,
	}
}

// Timeout is the full wait budget of one request.
func (c Config) Timeout() time.Duration {
	return c.PollInterval * time.Duration(c.MaxPollAttempts)
}

// entry is a pending request. ready is closed on the first response; resp
// holds the latest one.
type entry struct {
	ready    chan struct{}
	resolved bool
	resp     envelope.Envelope
}

// Engine tracks pending requests.
type Engine struct {
	cfg    Config
	sender Sender
	logger *slog.Logger

	mu      sync.Mutex
	pending map[string]*entry
}

// NewEngine creates an Engine writing through sender.
func NewEngine(cfg Config, sender Sender, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultConfig().PollInterval
	}
	if cfg.MaxPollAttempts <= 0 {
		cfg.MaxPollAttempts = DefaultConfig().MaxPollAttempts
	}

	return &Engine{
		cfg:     cfg,
		sender:  sender,
		logger:  logger,
		pending: make(map[string]*entry),
	}
}

// Timeout returns the default wait budget.
func (e *Engine) Timeout() time.Duration {
	return e.cfg.Timeout()
}

// NewMessageID returns "<client_name>.<16 hex chars>".
func (e *Engine) NewMessageID() string {
	u := uuid.New()
	return e.cfg.ClientName + "." + hex.EncodeToString(u[:8])
}

// Register marks msgID as awaiting a response.
func (e *Engine) Register(msgID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.pending[msgID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateID, msgID)
	}
	e.pending[msgID] = &entry{ready: make(chan struct{})}
	return nil
}

// Forget drops a pending entry without resolving it.
func (e *Engine) Forget(msgID string) {
	e.mu.Lock()
	delete(e.pending, msgID)
	e.mu.Unlock()
}

// Pending returns the number of requests awaiting a response.
func (e *Engine) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}

// Send registers the envelope's id and writes it to the connection.
func (e *Engine) Send(env envelope.Envelope) error {
	data, err := env.Encode()
	if err != nil {
		return fmt.Errorf("encode %s: %w", env.Meta.ID, err)
	}

	if err := e.Register(env.Meta.ID); err != nil {
		return err
	}

	if err := e.sender.Send(data); err != nil {
		e.Forget(env.Meta.ID)
		return fmt.Errorf("send %s: %w", env.Meta.ID, err)
	}
	return nil
}

// Resolve routes an inbound envelope. It returns false when the envelope is
// not a reply; such messages belong to the unsolicited handler.
func (e *Engine) Resolve(env envelope.Envelope) bool {
	if !env.IsReply() {
		return false
	}

	id := env.Meta.InReplyTo

	e.mu.Lock()
	ent, ok := e.pending[id]
	if ok {
		// Last write wins while the waiter has not consumed the entry.
		ent.resp = env
		if !ent.resolved {
			ent.resolved = true
			close(ent.ready)
		}
	}
	e.mu.Unlock()

	if !ok {
		e.logger.Warn("response to unknown message", "in_reply_to", id, "id", env.Meta.ID)
	}
	return true
}

// Await blocks until msgID is resolved, the context ends, or the wait budget
// runs out. timeout <= 0 selects the configured budget. The entry is discarded
// in every case.
func (e *Engine) Await(ctx context.Context, msgID string, timeout time.Duration) (envelope.Envelope, error) {
	e.mu.Lock()
	ent, ok := e.pending[msgID]
	e.mu.Unlock()
	if !ok {
		return envelope.Envelope{}, fmt.Errorf("%w: %s", ErrNotPending, msgID)
	}

	if timeout <= 0 {
		timeout = e.cfg.Timeout()
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ent.ready:
		e.mu.Lock()
		resp := ent.resp
		delete(e.pending, msgID)
		e.mu.Unlock()
		return resp, nil

	case <-timer.C:
		e.Forget(msgID)
		e.logger.Error("could not obtain response",
			"msg_id", msgID,
			"timeout", timeout,
		)
		return envelope.Envelope{}, fmt.Errorf("%w: %s after %s", ErrResponseTimeout, msgID, timeout)

	case <-ctx.Done():
		e.Forget(msgID)
		return envelope.Envelope{}, ctx.Err()
	}
}

// Call sends env and waits for its response.
func (e *Engine) Call(ctx context.Context, env envelope.Envelope, timeout time.Duration) (envelope.Envelope, error) {
	if err := e.Send(env); err != nil {
		return envelope.Envelope{}, err
	}
	return e.Await(ctx, env.Meta.ID, timeout)
}
