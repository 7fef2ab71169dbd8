package connection

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rickgao/zato-client/internal/envelope"
)

// Errors
var (
	ErrNotConnected       = errors.New("not connected")
	ErrStaleConnection    = errors.New("connection stale (no pong)")
	ErrAlreadyClosed      = errors.New("already closed")
	ErrReconnectExhausted = errors.New("reconnect attempts exhausted")
)

// CloseNormal is the close code sent with a client-initiated disconnect.
const CloseNormal = 1000

// DisconnectReason is the close reason a client sends when it hangs up itself.
// A close carrying CloseNormal and exactly this reason is never answered with
// a reconnect.
func DisconnectReason(clientID, clientName string) string {
	return fmt.Sprintf("Client disconnecting id:'%s' name:'%s'", clientID, clientName)
}

// TimestampedMessage wraps raw message data with receive timestamp.
type TimestampedMessage struct {
	Data       []byte    // Raw message bytes from WebSocket
	ReceivedAt time.Time // Local timestamp when ReadMessage() returned
}

// Handler receives connection events from the Manager.
//
// OnOpen runs on its own goroutine so it may block on round-trips. Its
// context ends when the connection it was opened for closes.
// OnMessage runs on the read loop and must not block.
type Handler interface {
	OnOpen(ctx context.Context)
	OnMessage(env envelope.Envelope)
	OnClose(code int, reason string)
	OnGiveUp(err error)
}

// ClientConfig configures a WebSocket client.
type ClientConfig struct {
	URL              string        // WSX address, e.g. ws://localhost:17010/zato/wsx/api
	HandshakeTimeout time.Duration // Dial handshake deadline
	PingInterval     time.Duration // How often to ping the server
	PingTimeout      time.Duration // Max time without pong before considering connection stale
	WriteTimeout     time.Duration // Write deadline for sends
	BufferSize       int           // Message channel buffer size
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		HandshakeTimeout: 10 * time.Second,
		PingInterval:     30 * time.Second,
		PingTimeout:      60 * time.Second,
		WriteTimeout:     5 * time.Second,
		BufferSize:       1000,
	}
}

// ManagerConfig configures the Connection Manager.
type ManagerConfig struct {
	Client     ClientConfig
	ClientID   string // Used in the disconnect reason
	ClientName string // Used in the disconnect reason

	ReconnectBaseWait    time.Duration // First wait before reconnecting
	ReconnectMaxWait     time.Duration // Cap for exponential backoff
	MaxReconnectAttempts int           // 0 = retry forever

	SendRate  float64 // Outgoing frames per second, 0 = unlimited
	SendBurst int     // Burst for SendRate
}

// DefaultManagerConfig returns sensible defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		Client:            DefaultClientConfig(),
		ReconnectBaseWait: 1 * time.Second,
		ReconnectMaxWait:  60 * time.Second,
		SendBurst:         1,
	}
}

// ManagerStats provides statistics about the connection manager.
type ManagerStats struct {
	Connected  bool
	Connects   int64
	Reconnects int64
	FramesIn   int64
	FramesOut  int64
	BadFrames  int64
}
