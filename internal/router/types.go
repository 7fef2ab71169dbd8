package router

import (
	"time"

	"github.com/rickgao/zato-client/internal/envelope"
)

// Config holds configuration for the Dispatcher.
type Config struct {
	BufferSize int // Initial capacity of the delivery buffer. Default: 1000
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{
		BufferSize: 1000,
	}
}

// Delivery is an unsolicited message queued for application handlers.
type Delivery struct {
	Envelope   envelope.Envelope
	ReceivedAt time.Time
}

// Handler consumes deliveries. Handlers run on the dispatcher goroutine,
// one delivery at a time, in arrival order.
type Handler interface {
	HandleDelivery(d Delivery)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(d Delivery)

// HandleDelivery calls f(d).
func (f HandlerFunc) HandleDelivery(d Delivery) {
	f(d)
}

// BufferHandler forwards every delivery into buf, for consumers that batch
// on their own goroutine.
func BufferHandler(buf *GrowableBuffer[Delivery]) Handler {
	return HandlerFunc(func(d Delivery) {
		buf.Send(d)
	})
}

// Stats contains runtime statistics.
type Stats struct {
	Enqueued   int64
	Dispatched int64
	Rejected   int64 // Enqueue after Stop
	Panics     int64
	Buffer     BufferStats
}
