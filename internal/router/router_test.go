package router

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rickgao/zato-client/internal/envelope"
)

// recorder collects deliveries in arrival order.
type recorder struct {
	mu  sync.Mutex
	ids []string
}

func (r *recorder) HandleDelivery(d Delivery) {
	r.mu.Lock()
	r.ids = append(r.ids, d.Envelope.Meta.ID)
	r.mu.Unlock()
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.ids...)
}

func TestDispatcher_DeliversInOrder(t *testing.T) {
	rec := &recorder{}
	d := NewDispatcher(Config{BufferSize: 2}, nil, rec)
	d.Start(context.Background())

	for _, id := range []string{"a", "b", "c", "d"} {
		if !d.Enqueue(envelope.Base(id)) {
			t.Fatalf("Enqueue(%s) returned false", id)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := d.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	got := rec.snapshot()
	want := []string{"a", "b", "c", "d"}
	if len(got) != len(want) {
		t.Fatalf("delivered %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("delivery %d = %s, want %s", i, got[i], want[i])
		}
	}

	stats := d.Stats()
	if stats.Enqueued != 4 || stats.Dispatched != 4 {
		t.Errorf("Stats = %+v, want 4 enqueued and dispatched", stats)
	}
}

func TestDispatcher_EnqueueAfterStop(t *testing.T) {
	d := NewDispatcher(DefaultConfig(), nil)
	d.Start(context.Background())
	d.Stop(context.Background())

	if d.Enqueue(envelope.Base("late")) {
		t.Error("Enqueue() after Stop should return false")
	}
	if d.Stats().Rejected != 1 {
		t.Errorf("Rejected = %d, want 1", d.Stats().Rejected)
	}
}

func TestDispatcher_HandlerPanicDoesNotStopDelivery(t *testing.T) {
	rec := &recorder{}
	boom := HandlerFunc(func(d Delivery) {
		if d.Envelope.Meta.ID == "bad" {
			panic("boom")
		}
	})
	d := NewDispatcher(DefaultConfig(), nil, boom, rec)
	d.Start(context.Background())

	d.Enqueue(envelope.Base("bad"))
	d.Enqueue(envelope.Base("good"))
	d.Stop(context.Background())

	if got := rec.snapshot(); len(got) != 2 {
		t.Errorf("delivered %v, want both messages", got)
	}
	if d.Stats().Panics != 1 {
		t.Errorf("Panics = %d, want 1", d.Stats().Panics)
	}
}

func TestDispatcher_HandlerMayBlock(t *testing.T) {
	release := make(chan struct{})
	handled := make(chan string, 2)
	d := NewDispatcher(DefaultConfig(), nil, HandlerFunc(func(d Delivery) {
		<-release
		handled <- d.Envelope.Meta.ID
	}))
	d.Start(context.Background())

	// Enqueue never waits on a busy handler.
	done := make(chan struct{})
	go func() {
		d.Enqueue(envelope.Base("1"))
		d.Enqueue(envelope.Base("2"))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Enqueue blocked on a busy handler")
	}

	close(release)
	for _, want := range []string{"1", "2"} {
		select {
		case got := <-handled:
			if got != want {
				t.Errorf("handled %s, want %s", got, want)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for %s", want)
		}
	}
	d.Stop(context.Background())
}

func TestBufferHandler(t *testing.T) {
	buf := NewGrowableBuffer[Delivery](4)
	d := NewDispatcher(DefaultConfig(), nil)
	d.AddHandler(BufferHandler(buf))
	d.Start(context.Background())

	d.Enqueue(envelope.Base("x"))
	d.Stop(context.Background())

	got := buf.DrainTo(0)
	if len(got) != 1 || got[0].Envelope.Meta.ID != "x" {
		t.Errorf("buffer holds %v, want one delivery x", got)
	}
	if got[0].ReceivedAt.IsZero() {
		t.Error("ReceivedAt not set")
	}
}
