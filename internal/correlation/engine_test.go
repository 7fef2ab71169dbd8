package correlation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rickgao/zato-client/internal/envelope"
)

// mockSender records frames and optionally fails.
type mockSender struct {
	mu     sync.Mutex
	frames [][]byte
	err    error
}

func (s *mockSender) Send(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.frames = append(s.frames, data)
	return nil
}

func (s *mockSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

func reply(to, id, data string) envelope.Envelope {
	return envelope.Envelope{
		Meta: envelope.Meta{ID: id, InReplyTo: to},
		Data: []byte(data),
	}
}

func testConfig() Config {
	return Config{
		ClientName:      "api",
		PollInterval:    10 * time.Millisecond,
		MaxPollAttempts: 5,
	}
}

func TestEngine_NewMessageID(t *testing.T) {
	e := NewEngine(testConfig(), &mockSender{}, nil)

	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := e.NewMessageID()
		if !strings.HasPrefix(id, "api.") {
			t.Fatalf("id %q should start with client name", id)
		}
		if len(id) != len("api.")+16 {
			t.Fatalf("id %q has unexpected length", id)
		}
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}

func TestEngine_SendAndResolve(t *testing.T) {
	sender := &mockSender{}
	e := NewEngine(testConfig(), sender, nil)

	req := envelope.Base("api.1")
	if err := e.Send(req); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if sender.count() != 1 {
		t.Fatalf("frames sent = %d, want 1", sender.count())
	}
	if e.Pending() != 1 {
		t.Fatalf("Pending() = %d, want 1", e.Pending())
	}

	go func() {
		time.Sleep(5 * time.Millisecond)
		e.Resolve(reply("api.1", "srv.1", `{"ok":true}`))
	}()

	resp, err := e.Await(context.Background(), "api.1", time.Second)
	if err != nil {
		t.Fatalf("Await() error = %v", err)
	}
	if resp.Meta.InReplyTo != req.Meta.ID {
		t.Errorf("InReplyTo = %q, want %q", resp.Meta.InReplyTo, req.Meta.ID)
	}
	if e.Pending() != 0 {
		t.Errorf("Pending() after Await = %d, want 0", e.Pending())
	}
}

func TestEngine_ResolveBeforeAwait(t *testing.T) {
	e := NewEngine(testConfig(), &mockSender{}, nil)

	if err := e.Register("api.1"); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	e.Resolve(reply("api.1", "srv.1", `{"n":1}`))

	resp, err := e.Await(context.Background(), "api.1", 0)
	if err != nil {
		t.Fatalf("Await() error = %v", err)
	}
	if resp.Meta.ID != "srv.1" {
		t.Errorf("ID = %q, want srv.1", resp.Meta.ID)
	}
}

func TestEngine_LastWriteWins(t *testing.T) {
	e := NewEngine(testConfig(), &mockSender{}, nil)
	e.Register("api.1")

	e.Resolve(reply("api.1", "srv.1", `{"n":1}`))
	e.Resolve(reply("api.1", "srv.2", `{"n":2}`))

	resp, err := e.Await(context.Background(), "api.1", 0)
	if err != nil {
		t.Fatalf("Await() error = %v", err)
	}
	if resp.Meta.ID != "srv.2" {
		t.Errorf("ID = %q, want srv.2 (last write)", resp.Meta.ID)
	}
}

func TestEngine_ResolveUnsolicited(t *testing.T) {
	e := NewEngine(testConfig(), &mockSender{}, nil)

	unsolicited := envelope.Base("srv.9")
	if e.Resolve(unsolicited) {
		t.Error("Resolve() = true for a message without in_reply_to")
	}

	// Replies to unknown ids are consumed but not stored.
	if !e.Resolve(reply("nobody", "srv.10", `{}`)) {
		t.Error("Resolve() = false for a reply")
	}
	if e.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", e.Pending())
	}
}

func TestEngine_AwaitTimeout(t *testing.T) {
	cfg := testConfig()
	e := NewEngine(cfg, &mockSender{}, nil)
	e.Register("api.1")

	start := time.Now()
	_, err := e.Await(context.Background(), "api.1", 0)
	elapsed := time.Since(start)

	if !errors.Is(err, ErrResponseTimeout) {
		t.Fatalf("Await() error = %v, want ErrResponseTimeout", err)
	}
	if elapsed < cfg.Timeout() {
		t.Errorf("Await returned after %v, want at least %v", elapsed, cfg.Timeout())
	}
	if e.Pending() != 0 {
		t.Errorf("Pending() after timeout = %d, want 0", e.Pending())
	}

	// A late response is dropped.
	e.Resolve(reply("api.1", "srv.1", `{}`))
	if e.Pending() != 0 {
		t.Errorf("late response should not create an entry")
	}
}

func TestEngine_AwaitContextCanceled(t *testing.T) {
	e := NewEngine(testConfig(), &mockSender{}, nil)
	e.Register("api.1")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Await(ctx, "api.1", time.Second)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Await() error = %v, want context.Canceled", err)
	}
}

func TestEngine_AwaitNotPending(t *testing.T) {
	e := NewEngine(testConfig(), &mockSender{}, nil)

	_, err := e.Await(context.Background(), "api.404", 0)
	if !errors.Is(err, ErrNotPending) {
		t.Errorf("Await() error = %v, want ErrNotPending", err)
	}
}

func TestEngine_SendFailureForgets(t *testing.T) {
	sendErr := errors.New("socket gone")
	e := NewEngine(testConfig(), &mockSender{err: sendErr}, nil)

	err := e.Send(envelope.Base("api.1"))
	if !errors.Is(err, sendErr) {
		t.Fatalf("Send() error = %v, want wrapped %v", err, sendErr)
	}
	if e.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0 after failed send", e.Pending())
	}
}

func TestEngine_DuplicateRegister(t *testing.T) {
	e := NewEngine(testConfig(), &mockSender{}, nil)

	if err := e.Register("api.1"); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := e.Register("api.1"); !errors.Is(err, ErrDuplicateID) {
		t.Errorf("second Register() error = %v, want ErrDuplicateID", err)
	}
}

func TestEngine_ConcurrentCalls(t *testing.T) {
	sender := &mockSender{}
	e := NewEngine(testConfig(), sender, nil)

	const n = 50
	ids := make([]string, n)
	for i := range ids {
		ids[i] = e.NewMessageID()
	}

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			resp, err := e.Call(context.Background(), envelope.Base(id), time.Second)
			if err != nil {
				errs <- err
				return
			}
			if resp.Meta.InReplyTo != id {
				errs <- errors.New("mismatched reply " + resp.Meta.InReplyTo + " for " + id)
			}
		}(id)
	}

	// Resolve in reverse order once everything is registered.
	deadline := time.Now().Add(time.Second)
	for e.Pending() < n && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	for i := n - 1; i >= 0; i-- {
		e.Resolve(reply(ids[i], "srv", `{}`))
	}

	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}
