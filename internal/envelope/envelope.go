// Package envelope defines the JSON wrapper exchanged over a WSX connection
// and the builders for every outgoing message kind.
//
// Every frame is {"meta": {...}, "data": {...}}. meta.id is the message's own
// id; meta.in_reply_to is set only on responses and is the sole correlation key.
package envelope

import (
	"encoding/json"
	"fmt"
	"time"
)

// Actions understood by the server.
const (
	ActionCreateSession = "create-session"
	ActionInvokeService = "invoke-service"
)

// TimestampFormat matches JavaScript's Date.toISOString().
const TimestampFormat = "2006-01-02T15:04:05.000Z"

// Meta is the envelope header.
type Meta struct {
	ID         string `json:"id"`
	Timestamp  string `json:"timestamp"`
	Action     string `json:"action,omitempty"`
	ClientID   string `json:"client_id,omitempty"`
	ClientName string `json:"client_name,omitempty"`
	Username   string `json:"username,omitempty"`
	Secret     string `json:"secret,omitempty"`
	Token      string `json:"token,omitempty"`
	InReplyTo  string `json:"in_reply_to,omitempty"`
}

// Envelope is a single WSX message.
type Envelope struct {
	Meta Meta            `json:"meta"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Identity carries the client fields copied into outgoing headers.
type Identity struct {
	ClientID   string
	ClientName string
	Username   string
	Secret     string
}

// InvokeData is the payload of an invoke-service message.
type InvokeData struct {
	Service string `json:"service"`
	Request any    `json:"request"`
}

// now is swapped in tests.
var now = time.Now

// Base returns an envelope carrying only id and timestamp.
func Base(msgID string) Envelope {
	return Envelope{
		Meta: Meta{
			ID:        msgID,
			Timestamp: now().UTC().Format(TimestampFormat),
		},
	}
}

// CreateSession builds the login message sent right after a connection opens.
func CreateSession(msgID string, id Identity) Envelope {
	env := Base(msgID)
	env.Meta.Action = ActionCreateSession
	env.Meta.ClientID = id.ClientID
	env.Meta.ClientName = id.ClientName
	env.Meta.Username = id.Username
	env.Meta.Secret = id.Secret
	return env
}

// InvokeService builds a service invocation carrying the session token.
func InvokeService(msgID, token, service string, request any) (Envelope, error) {
	env := Base(msgID)
	env.Meta.Action = ActionInvokeService
	env.Meta.Token = token

	data, err := json.Marshal(InvokeData{Service: service, Request: request})
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal request for %s: %w", service, err)
	}
	env.Data = data
	return env, nil
}

// Decode parses a raw frame.
func Decode(frame []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	return env, nil
}

// Encode serializes the envelope to a text frame.
func (e Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// IsReply reports whether the envelope answers an earlier request.
func (e Envelope) IsReply() bool {
	return e.Meta.InReplyTo != ""
}

// DecodeData unmarshals the data section into v.
func (e Envelope) DecodeData(v any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("envelope %s has no data", e.Meta.ID)
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("decode data of %s: %w", e.Meta.ID, err)
	}
	return nil
}

// StringField returns data[key] when it is a non-empty string.
func (e Envelope) StringField(key string) (string, bool) {
	if len(e.Data) == 0 {
		return "", false
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(e.Data, &fields); err != nil {
		return "", false
	}
	raw, ok := fields[key]
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil || s == "" {
		return "", false
	}
	return s, true
}

// String renders the envelope for logs.
func (e Envelope) String() string {
	data, err := e.Encode()
	if err != nil {
		return fmt.Sprintf("<envelope %s: %v>", e.Meta.ID, err)
	}
	return string(data)
}
