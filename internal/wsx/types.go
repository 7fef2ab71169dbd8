package wsx

import (
	"errors"
	"time"

	"github.com/rickgao/zato-client/internal/envelope"
)

// InvalidToken is the token value before login and after every disconnect.
const InvalidToken = "<invalid>"

// DefaultNamespace prefixes the built-in pub/sub service names.
const DefaultNamespace = "zato"

// Errors
var (
	ErrNoSession     = errors.New("no session token")
	ErrMissingToken  = errors.New("create-session response has no token")
	ErrMissingSubKey = errors.New("subscribe response has no sub_key")
)

// State is the session lifecycle state.
type State int

const (
	StateDisconnected State = iota
	StateConnected
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnected:
		return "connected"
	case StateAuthenticated:
		return "authenticated"
	}
	return "unknown"
}

// Result is the outcome of an asynchronous invocation.
type Result struct {
	MsgID    string
	Service  string
	Response envelope.Envelope
	Err      error
}

// OK reports whether the invocation received a response.
func (r Result) OK() bool {
	return r.Err == nil
}

// Config configures a Client. Zero durations and sizes take the values of
// DefaultConfig.
type Config struct {
	Address    string // e.g. ws://localhost:17010/zato/wsx/api
	ClientID   string // Random UUID when empty
	ClientName string
	Username   string
	Secret     string
	Namespace  string // Service namespace, default "zato"

	PollInterval    time.Duration // Response wait budget = PollInterval × MaxPollAttempts
	MaxPollAttempts int

	HandshakeTimeout time.Duration
	PingInterval     time.Duration
	PingTimeout      time.Duration
	WriteTimeout     time.Duration
	BufferSize       int

	ReconnectBaseWait    time.Duration
	ReconnectMaxWait     time.Duration
	MaxReconnectAttempts int // 0 = retry forever

	SendRate  float64
	SendBurst int

	DispatchBufferSize int

	// ResumeOnReconnect resumes every known subscription after a fresh
	// session has been created on a reconnected socket.
	ResumeOnReconnect bool
}

// DefaultConfig returns the reference settings.
func DefaultConfig() Config {
	return Config{
		Namespace:          DefaultNamespace,
		PollInterval:       200 * time.Millisecond,
		MaxPollAttempts:    100,
		HandshakeTimeout:   10 * time.Second,
		PingInterval:       30 * time.Second,
		PingTimeout:        60 * time.Second,
		WriteTimeout:       5 * time.Second,
		BufferSize:         1000,
		ReconnectBaseWait:  1 * time.Second,
		ReconnectMaxWait:   60 * time.Second,
		DispatchBufferSize: 1000,
	}
}

// applyDefaults fills zero-valued settings from DefaultConfig.
func (cfg *Config) applyDefaults() {
	d := DefaultConfig()
	if cfg.Namespace == "" {
		cfg.Namespace = d.Namespace
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = d.PollInterval
	}
	if cfg.MaxPollAttempts <= 0 {
		cfg.MaxPollAttempts = d.MaxPollAttempts
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = d.HandshakeTimeout
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = d.PingInterval
	}
	if cfg.PingTimeout <= 0 {
		cfg.PingTimeout = d.PingTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = d.WriteTimeout
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = d.BufferSize
	}
	if cfg.ReconnectBaseWait <= 0 {
		cfg.ReconnectBaseWait = d.ReconnectBaseWait
	}
	if cfg.ReconnectMaxWait <= 0 {
		cfg.ReconnectMaxWait = d.ReconnectMaxWait
	}
	if cfg.ReconnectMaxWait < cfg.ReconnectBaseWait {
		cfg.ReconnectMaxWait = cfg.ReconnectBaseWait
	}
	if cfg.DispatchBufferSize <= 0 {
		cfg.DispatchBufferSize = d.DispatchBufferSize
	}
}

// Callbacks are invoked on client events. All are optional; nil callbacks
// fall back to logging.
type Callbacks struct {
	// WhenReady is called after each successful create-session round-trip.
	WhenReady func(c *Client)

	// OnMessage is called for every message that is not a response.
	OnMessage func(c *Client, env envelope.Envelope)

	// OnResponse is the default completion handler of InvokeAsync.
	OnResponse func(c *Client, r Result)

	// OnDisconnected is called when the server closes the connection.
	OnDisconnected func(c *Client, code int, reason string)

	// OnError is called for failures no caller is waiting on, such as a
	// failed login or exhausted reconnection.
	OnError func(c *Client, err error)
}
