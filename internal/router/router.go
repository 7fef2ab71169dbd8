package router

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rickgao/zato-client/internal/envelope"
)

// Dispatcher moves unsolicited messages off the connection read loop and
// hands them to handlers on a goroutine of its own, so handlers may call
// back into the client and wait for responses.
type Dispatcher struct {
	cfg    Config
	logger *slog.Logger
	buf    *GrowableBuffer[Delivery]

	handlersMu sync.RWMutex
	handlers   []Handler

	// Lifecycle
	startOnce sync.Once
	stopOnce  sync.Once
	wg        sync.WaitGroup

	// Stats
	mu         sync.Mutex
	enqueued   int64
	dispatched int64
	rejected   int64
	panics     int64
}

// NewDispatcher creates a Dispatcher delivering to handlers.
func NewDispatcher(cfg Config, logger *slog.Logger, handlers ...Handler) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}

	return &Dispatcher{
		cfg:      cfg,
		logger:   logger,
		buf:      NewGrowableBuffer[Delivery](cfg.BufferSize),
		handlers: handlers,
	}
}

// AddHandler registers another handler.
func (d *Dispatcher) AddHandler(h Handler) {
	d.handlersMu.Lock()
	d.handlers = append(d.handlers, h)
	d.handlersMu.Unlock()
}

// Start begins dispatching. Calling Start more than once has no effect.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.startOnce.Do(func() {
		d.wg.Add(1)
		go d.dispatchLoop()

		d.logger.Info("message dispatcher started", "buffer", d.cfg.BufferSize)
	})
	return nil
}

// Stop closes the buffer and waits until queued deliveries are handled or
// ctx ends.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.stopOnce.Do(func() {
		d.logger.Info("stopping message dispatcher")
		d.buf.Close()
	})

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.logger.Info("message dispatcher stopped")
		return nil
	case <-ctx.Done():
		d.logger.Warn("message dispatcher stop timed out", "pending", d.buf.Len())
		return ctx.Err()
	}
}

// Enqueue queues env for the handlers. It never blocks and returns false
// once the dispatcher is stopped.
func (d *Dispatcher) Enqueue(env envelope.Envelope) bool {
	ok := d.buf.Send(Delivery{Envelope: env, ReceivedAt: time.Now()})

	d.mu.Lock()
	if ok {
		d.enqueued++
	} else {
		d.rejected++
	}
	d.mu.Unlock()

	if !ok {
		d.logger.Debug("dispatcher stopped, dropping message", "id", env.Meta.ID)
	}
	return ok
}

// Stats returns current statistics.
func (d *Dispatcher) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()

	return Stats{
		Enqueued:   d.enqueued,
		Dispatched: d.dispatched,
		Rejected:   d.rejected,
		Panics:     d.panics,
		Buffer:     d.buf.Stats(),
	}
}

// dispatchLoop is the main dispatching goroutine.
func (d *Dispatcher) dispatchLoop() {
	defer d.wg.Done()

	for {
		item, ok := d.buf.Receive()
		if !ok {
			return
		}

		d.handlersMu.RLock()
		handlers := d.handlers
		d.handlersMu.RUnlock()

		for _, h := range handlers {
			d.deliver(h, item)
		}

		d.mu.Lock()
		d.dispatched++
		d.mu.Unlock()
	}
}

// deliver runs one handler, recovering from panics so one bad handler does
// not stop delivery.
func (d *Dispatcher) deliver(h Handler, item Delivery) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("message handler panicked",
				"id", item.Envelope.Meta.ID,
				"panic", r,
			)
			d.mu.Lock()
			d.panics++
			d.mu.Unlock()
		}
	}()

	h.HandleDelivery(item)
}
