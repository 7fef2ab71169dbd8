package wsx

import (
	"context"
	"time"

	"github.com/rickgao/zato-client/internal/envelope"
)

// Publish defaults.
const (
	DefaultPriority = 5
	DefaultMimeType = "text/plain"
)

// PublishOptions are the optional fields of a published message. Zero
// values select the defaults.
type PublishOptions struct {
	MsgID                 string // Also used as the envelope id
	HasGuaranteedDelivery bool
	Priority              int           // Default 5
	Expiration            time.Duration // Sent in milliseconds, null when zero
	MimeType              string        // Default text/plain
	CorrelationID         string
	InReplyTo             string
	ExternalClientID      string
	ExternalPublishTime   time.Time
}

// publishRequest is the request of the publish-message service. Unset
// optional fields are sent as null.
type publishRequest struct {
	TopicName   string  `json:"topic_name"`
	Data        any     `json:"data"`
	MsgID       string  `json:"msg_id"`
	HasGD       bool    `json:"has_gd"`
	Priority    int     `json:"priority"`
	Expiration  *int64  `json:"expiration"`
	MimeType    string  `json:"mime_type"`
	CorrelID    *string `json:"correl_id"`
	InReplyTo   *string `json:"in_reply_to"`
	ExtClientID *string `json:"ext_client_id"`
	ExtPubTime  *string `json:"ext_pub_time"`
}

func optString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// newPublishRequest applies defaults to opts.
func newPublishRequest(topic string, data any, msgID string, opts PublishOptions) publishRequest {
	if data == nil {
		data = ""
	}

	req := publishRequest{
		TopicName:   topic,
		Data:        data,
		MsgID:       msgID,
		HasGD:       opts.HasGuaranteedDelivery,
		Priority:    opts.Priority,
		MimeType:    opts.MimeType,
		CorrelID:    optString(opts.CorrelationID),
		InReplyTo:   optString(opts.InReplyTo),
		ExtClientID: optString(opts.ExternalClientID),
	}
	if req.Priority == 0 {
		req.Priority = DefaultPriority
	}
	if req.MimeType == "" {
		req.MimeType = DefaultMimeType
	}
	if opts.Expiration > 0 {
		ms := opts.Expiration.Milliseconds()
		req.Expiration = &ms
	}
	if !opts.ExternalPublishTime.IsZero() {
		req.ExtPubTime = optString(opts.ExternalPublishTime.UTC().Format(envelope.TimestampFormat))
	}
	return req
}

// Publish sends data to topic through the publish-message service and
// waits for the server's acknowledgement.
func (c *Client) Publish(ctx context.Context, topic string, data any, opts PublishOptions) (envelope.Envelope, error) {
	o := c.invokeOptions([]InvokeOption{WithMessageID(opts.MsgID)})
	req := newPublishRequest(topic, data, o.msgID, opts)

	c.logger.Debug("publishing", "topic", topic, "msg_id", o.msgID)
	return c.invoke(ctx, c.service("pubsub.pubapi.publish-message"), req, o)
}
