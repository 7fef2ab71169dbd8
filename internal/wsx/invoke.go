package wsx

import (
	"context"
	"fmt"
	"time"

	"github.com/rickgao/zato-client/internal/envelope"
)

// InvokeOption customizes one invocation.
type InvokeOption func(*invokeOptions)

type invokeOptions struct {
	msgID   string
	timeout time.Duration
}

// WithMessageID sets the request's message id instead of generating one.
func WithMessageID(id string) InvokeOption {
	return func(o *invokeOptions) {
		o.msgID = id
	}
}

// WithTimeout overrides the response wait budget.
func WithTimeout(d time.Duration) InvokeOption {
	return func(o *invokeOptions) {
		o.timeout = d
	}
}

func (c *Client) invokeOptions(opts []InvokeOption) invokeOptions {
	var o invokeOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.msgID == "" {
		o.msgID = c.engine.NewMessageID()
	}
	return o
}

// Invoke calls service with request and waits for the response. It fails
// with ErrNoSession unless the client holds a session token.
func (c *Client) Invoke(ctx context.Context, service string, request any, opts ...InvokeOption) (envelope.Envelope, error) {
	return c.invoke(ctx, service, request, c.invokeOptions(opts))
}

func (c *Client) invoke(ctx context.Context, service string, request any, o invokeOptions) (envelope.Envelope, error) {
	token, err := c.sessionToken()
	if err != nil {
		return envelope.Envelope{}, fmt.Errorf("invoke %s: %w", service, err)
	}

	env, err := envelope.InvokeService(o.msgID, token, service, request)
	if err != nil {
		return envelope.Envelope{}, err
	}

	c.logger.Info("invoking service", "service", service, "msg_id", o.msgID)

	resp, err := c.engine.Call(ctx, env, o.timeout)
	if err != nil {
		return envelope.Envelope{}, fmt.Errorf("invoke %s: %w", service, err)
	}

	c.logger.Info("response received", "service", service, "msg_id", o.msgID, "response", resp.String())
	return resp, nil
}

// InvokeAsync calls service without blocking and hands the outcome to done,
// or to Callbacks.OnResponse when done is nil. It returns the request's
// message id.
func (c *Client) InvokeAsync(ctx context.Context, service string, request any, done func(*Client, Result), opts ...InvokeOption) string {
	o := c.invokeOptions(opts)
	if done == nil {
		done = c.cb.OnResponse
	}
	if done == nil {
		done = logResult
	}

	go func() {
		resp, err := c.invoke(ctx, service, request, o)
		done(c, Result{
			MsgID:    o.msgID,
			Service:  service,
			Response: resp,
			Err:      err,
		})
	}()

	return o.msgID
}

// logResult is the completion handler used when none is configured.
func logResult(c *Client, r Result) {
	if r.Err != nil {
		c.logger.Error("invocation failed", "service", r.Service, "msg_id", r.MsgID, "error", r.Err)
		return
	}
	c.logger.Info("callback received a response", "service", r.Service, "msg_id", r.MsgID, "response", r.Response.String())
}
