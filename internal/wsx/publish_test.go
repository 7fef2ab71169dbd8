package wsx

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

func TestNewPublishRequest_Defaults(t *testing.T) {
	req := newPublishRequest("/topic/x", nil, "api.1", PublishOptions{})

	data, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var got map[string]any
	json.Unmarshal(data, &got)

	want := map[string]any{
		"topic_name":    "/topic/x",
		"data":          "",
		"msg_id":        "api.1",
		"has_gd":        false,
		"priority":      float64(5),
		"expiration":    nil,
		"mime_type":     "text/plain",
		"correl_id":     nil,
		"in_reply_to":   nil,
		"ext_client_id": nil,
		"ext_pub_time":  nil,
	}
	if len(got) != len(want) {
		t.Fatalf("fields = %v, want %v", got, want)
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %v, want %v", k, got[k], v)
		}
	}
}

func TestNewPublishRequest_Options(t *testing.T) {
	pubTime := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	req := newPublishRequest("/topic/x", map[string]int{"n": 1}, "api.2", PublishOptions{
		HasGuaranteedDelivery: true,
		Priority:              9,
		Expiration:            90 * time.Second,
		MimeType:              "application/json",
		CorrelationID:         "corr",
		InReplyTo:             "api.0",
		ExternalClientID:      "ext",
		ExternalPublishTime:   pubTime,
	})

	if !req.HasGD || req.Priority != 9 || req.MimeType != "application/json" {
		t.Errorf("req = %+v", req)
	}
	if req.Expiration == nil || *req.Expiration != 90000 {
		t.Errorf("Expiration = %v, want 90000", req.Expiration)
	}
	if req.CorrelID == nil || *req.CorrelID != "corr" {
		t.Errorf("CorrelID = %v, want corr", req.CorrelID)
	}
	if req.InReplyTo == nil || *req.InReplyTo != "api.0" {
		t.Errorf("InReplyTo = %v, want api.0", req.InReplyTo)
	}
	if req.ExtClientID == nil || *req.ExtClientID != "ext" {
		t.Errorf("ExtClientID = %v, want ext", req.ExtClientID)
	}
	if req.ExtPubTime == nil || *req.ExtPubTime != "2024-01-15T12:00:00.000Z" {
		t.Errorf("ExtPubTime = %v", req.ExtPubTime)
	}
}

func TestClient_Publish(t *testing.T) {
	srv := newZatoServer(t)
	defer srv.close()

	c := connectClient(t, srv, testConfig(srv.url()), Callbacks{})
	c.WaitReady(context.Background())

	resp, err := c.Publish(context.Background(), "/topic/x", "hello", PublishOptions{MsgID: "pub.1"})
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if resp.Meta.InReplyTo != "pub.1" {
		t.Errorf("InReplyTo = %q, want pub.1", resp.Meta.InReplyTo)
	}

	req := srv.lastRequest()
	if req.Meta.ID != "pub.1" {
		t.Errorf("envelope id = %q, want pub.1", req.Meta.ID)
	}

	var inv struct {
		Service string         `json:"service"`
		Request publishRequest `json:"request"`
	}
	if err := json.Unmarshal(req.Data, &inv); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if inv.Service != "zato.pubsub.pubapi.publish-message" {
		t.Errorf("service = %q", inv.Service)
	}
	if inv.Request.MsgID != "pub.1" || inv.Request.Data != "hello" {
		t.Errorf("request = %+v", inv.Request)
	}
}
