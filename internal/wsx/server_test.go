package wsx

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rickgao/zato-client/internal/envelope"
)

// zatoServer is a minimal WSX channel. It answers create-session with a
// new token per connection and invoke-service through reply.
type zatoServer struct {
	t      *testing.T
	server *httptest.Server

	mu       sync.Mutex
	conns    []*websocket.Conn
	sessions int
	requests []envelope.Envelope // every invoke-service received
	reply    func(service string, req map[string]any) (data any, ok bool)

	// closeAfterLogin makes the server hang up right after answering
	// create-session.
	closeAfterLogin bool
}

func newZatoServer(t *testing.T) *zatoServer {
	s := &zatoServer{t: t}
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

	s.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var writeMu sync.Mutex
		s.mu.Lock()
		s.conns = append(s.conns, conn)
		s.mu.Unlock()

		for {
			_, frame, err := conn.ReadMessage()
			if err != nil {
				return
			}
			env, err := envelope.Decode(frame)
			if err != nil {
				continue
			}

			data, ok := s.handle(env)
			if !ok {
				continue
			}
			resp := envelope.Base("srv." + env.Meta.ID)
			resp.Meta.InReplyTo = env.Meta.ID
			resp.Data, _ = json.Marshal(data)
			out, _ := resp.Encode()

			writeMu.Lock()
			conn.WriteMessage(websocket.TextMessage, out)
			writeMu.Unlock()

			if env.Meta.Action == envelope.ActionCreateSession && s.hangsUpAfterLogin() {
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "restart"),
					time.Now().Add(time.Second))
				return
			}
		}
	}))
	return s
}

func (s *zatoServer) handle(env envelope.Envelope) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch env.Meta.Action {
	case envelope.ActionCreateSession:
		s.sessions++
		return map[string]string{"token": fmt.Sprintf("T%d", s.sessions)}, true

	case envelope.ActionInvokeService:
		s.requests = append(s.requests, env)

		var inv struct {
			Service string         `json:"service"`
			Request map[string]any `json:"request"`
		}
		json.Unmarshal(env.Data, &inv)
		if s.reply != nil {
			return s.reply(inv.Service, inv.Request)
		}
		return map[string]any{}, true
	}
	return nil, false
}

func (s *zatoServer) hangsUpAfterLogin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeAfterLogin
}

func (s *zatoServer) url() string {
	return "ws" + strings.TrimPrefix(s.server.URL, "http")
}

// dropAll closes every live connection from the server side.
func (s *zatoServer) dropAll() {
	s.mu.Lock()
	conns := s.conns
	s.conns = nil
	s.mu.Unlock()

	for _, c := range conns {
		c.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "restart"),
			time.Now().Add(time.Second))
		c.Close()
	}
}

// invoked returns the services invoked so far.
func (s *zatoServer) invoked() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.requests))
	for _, r := range s.requests {
		var inv envelope.InvokeData
		json.Unmarshal(r.Data, &inv)
		out = append(out, inv.Service)
	}
	return out
}

func (s *zatoServer) lastRequest() envelope.Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[len(s.requests)-1]
}

func (s *zatoServer) close() {
	s.server.CloseClientConnections()
	s.server.Close()
}
