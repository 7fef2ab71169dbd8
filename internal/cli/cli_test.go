package cli

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rickgao/zato-client/internal/config"
	"github.com/rickgao/zato-client/internal/envelope"
)

// echoServer is a WSX channel that logs every client in and answers
// invoke-service with the service name and request it received.
func echoServer(t *testing.T) *httptest.Server {
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for {
			_, frame, err := conn.ReadMessage()
			if err != nil {
				return
			}
			env, err := envelope.Decode(frame)
			if err != nil {
				continue
			}

			var data any
			switch env.Meta.Action {
			case envelope.ActionCreateSession:
				data = map[string]string{"token": "T1"}
			case envelope.ActionInvokeService:
				var inv envelope.InvokeData
				json.Unmarshal(env.Data, &inv)
				data = map[string]any{"service": inv.Service, "request": inv.Request}
			default:
				continue
			}

			resp := envelope.Base("srv." + env.Meta.ID)
			resp.Meta.InReplyTo = env.Meta.ID
			resp.Data, _ = json.Marshal(data)
			out, _ := resp.Encode()
			conn.WriteMessage(websocket.TextMessage, out)
		}
	}))
	t.Cleanup(func() {
		server.CloseClientConnections()
		server.Close()
	})
	return server
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := Execute(ctx, append([]string{"--no-color"}, args...), &stdout, &stderr)
	return stdout.String(), err
}

func TestInvokeCommand(t *testing.T) {
	server := echoServer(t)
	address := "ws" + strings.TrimPrefix(server.URL, "http")

	out, err := run(t, "--address", address, "--username", "u1", "--secret", "s1",
		"invoke", "demo.echo", `{"customer_id": 123}`)
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}

	if !strings.Contains(out, "<< demo.echo") {
		t.Errorf("output missing header:\n%s", out)
	}
	if !strings.Contains(out, `"customer_id": 123`) {
		t.Errorf("output missing echoed request:\n%s", out)
	}
}

func TestPublishCommand(t *testing.T) {
	server := echoServer(t)
	address := "ws" + strings.TrimPrefix(server.URL, "http")

	out, err := run(t, "--address", address, "publish", "/customer/new", "hello", "--priority", "7")
	if err != nil {
		t.Fatalf("publish: %v", err)
	}

	if !strings.Contains(out, `"service": "zato.pubsub.pubapi.publish-message"`) {
		t.Errorf("output missing publish service:\n%s", out)
	}
	if !strings.Contains(out, `"priority": 7`) {
		t.Errorf("output missing priority:\n%s", out)
	}
	if !strings.Contains(out, `"data": "hello"`) {
		t.Errorf("output missing data:\n%s", out)
	}
}

func TestInvokeCommandInvalidJSON(t *testing.T) {
	_, err := run(t, "--address", "ws://127.0.0.1:1/", "invoke", "demo.echo", "{not json")
	if err == nil || !strings.Contains(err.Error(), "not valid JSON") {
		t.Errorf("err = %v, want invalid JSON error", err)
	}
}

func TestInvokeCommandRequiresAddress(t *testing.T) {
	_, err := run(t, "invoke", "demo.echo")
	if err == nil || !strings.Contains(err.Error(), "wsx.address is required") {
		t.Errorf("err = %v, want missing address error", err)
	}
}

func TestRESTInvokeCommand(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if user, pass, ok := r.BasicAuth(); !ok || user != "api" || pass != "pw" {
			t.Errorf("basic auth = %q %q %v", user, pass, ok)
		}
		if r.URL.Path != "/api" {
			t.Errorf("path = %s, want /api", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"zato_env": map[string]string{"result": "ZATO_OK", "cid": "cid-7"},
			"zato_service_invoke_response": map[string]string{
				"response": base64.StdEncoding.EncodeToString([]byte(`{"pong":true}`)),
			},
		})
	}))
	defer server.Close()

	out, err := run(t, "rest", "--rest-address", server.URL, "--rest-username", "api", "--rest-password", "pw",
		"invoke", "zato.ping")
	if err != nil {
		t.Fatalf("rest invoke: %v", err)
	}
	if !strings.Contains(out, "cid=cid-7") {
		t.Errorf("output missing cid:\n%s", out)
	}
	if !strings.Contains(out, `"pong": true`) {
		t.Errorf("output missing response:\n%s", out)
	}
}

func TestRESTInvokeRequiresAddress(t *testing.T) {
	_, err := run(t, "rest", "invoke", "zato.ping")
	if err == nil || !strings.Contains(err.Error(), "rest address is required") {
		t.Errorf("err = %v, want missing address error", err)
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.HasPrefix(out, "wsxctl ") {
		t.Errorf("output = %q, want wsxctl prefix", out)
	}
}

func TestApplyFlags(t *testing.T) {
	a := &app{
		cfg:      config.Default(),
		address:  "ws://zato:17010/zato/wsx/api",
		username: "u1",
		logLevel: "debug",
		jsonLogs: true,
	}
	a.cfg.Client.Username = "from-file"
	a.cfg.Client.Secret = "keep"

	a.applyFlags()

	if a.cfg.WSX.Address != "ws://zato:17010/zato/wsx/api" {
		t.Errorf("WSX.Address = %q", a.cfg.WSX.Address)
	}
	if a.cfg.Client.Username != "u1" {
		t.Errorf("Client.Username = %q, want u1", a.cfg.Client.Username)
	}
	if a.cfg.Client.Secret != "keep" {
		t.Errorf("Client.Secret = %q, want keep", a.cfg.Client.Secret)
	}
	if a.cfg.Client.Name != defaultClientName {
		t.Errorf("Client.Name = %q, want %q", a.cfg.Client.Name, defaultClientName)
	}
	if a.cfg.Log.Level != "debug" || !a.cfg.Log.JSON {
		t.Errorf("Log = %+v, want debug JSON", a.cfg.Log)
	}
}

func TestWSXConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Client = config.ClientConfig{ID: "id-1", Name: "n", Username: "u", Secret: "s"}
	cfg.WSX.Address = "ws://zato/wsx"
	cfg.WSX.Namespace = "custom"
	cfg.WSX.ReconnectBaseDelay = 2 * time.Second
	cfg.WSX.MaxReconnectAttempts = 4
	cfg.WSX.ResumeOnReconnect = true

	w := wsxConfig(cfg)

	if w.Address != "ws://zato/wsx" || w.ClientID != "id-1" || w.ClientName != "n" {
		t.Errorf("identity = %q %q %q", w.Address, w.ClientID, w.ClientName)
	}
	if w.Username != "u" || w.Secret != "s" {
		t.Errorf("credentials = %q %q", w.Username, w.Secret)
	}
	if w.Namespace != "custom" {
		t.Errorf("Namespace = %q, want custom", w.Namespace)
	}
	if w.ReconnectBaseWait != 2*time.Second || w.MaxReconnectAttempts != 4 {
		t.Errorf("reconnect = %v %d", w.ReconnectBaseWait, w.MaxReconnectAttempts)
	}
	if !w.ResumeOnReconnect {
		t.Error("ResumeOnReconnect = false, want true")
	}
	if got, want := w.PollInterval*time.Duration(w.MaxPollAttempts), cfg.WSX.ResponseTimeout(); got != want {
		t.Errorf("response budget = %v, want %v", got, want)
	}
}

func TestArchiveConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Client.Name = "listener"
	cfg.Archive.BatchSize = 50
	cfg.Archive.FlushInterval = 250 * time.Millisecond

	ac := archiveConfig(cfg)
	if ac.ClientName != "listener" {
		t.Errorf("ClientName = %q, want listener", ac.ClientName)
	}
	if ac.BatchSize != 50 || ac.FlushInterval != 250*time.Millisecond {
		t.Errorf("batch = %d %v", ac.BatchSize, ac.FlushInterval)
	}
	if ac.BufferSize <= 0 {
		t.Errorf("BufferSize = %d, want > 0", ac.BufferSize)
	}
}

func TestDataArg(t *testing.T) {
	if _, ok := dataArg(`{"a":1}`).(json.RawMessage); !ok {
		t.Error("JSON object should be sent as raw JSON")
	}
	if s, ok := dataArg("hello world").(string); !ok || s != "hello world" {
		t.Errorf("dataArg(plain) = %v, want string", s)
	}
}

func TestJSONArg(t *testing.T) {
	v, err := jsonArg([]string{"svc"}, 1)
	if err != nil || v != nil {
		t.Errorf("jsonArg(absent) = %v, %v, want nil, nil", v, err)
	}
	v, err = jsonArg([]string{"svc", `[1,2]`}, 1)
	if err != nil {
		t.Fatalf("jsonArg: %v", err)
	}
	if string(v.(json.RawMessage)) != "[1,2]" {
		t.Errorf("jsonArg = %s, want [1,2]", v)
	}
}
