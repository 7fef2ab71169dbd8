package rest

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"
)

// Invoke calls service with request and returns its decoded response.
func (c *Client) Invoke(ctx context.Context, service string, request any) (Response, error) {
	payload, err := json.Marshal(request)
	if err != nil {
		return Response{}, fmt.Errorf("marshal request for %s: %w", service, err)
	}

	body, err := json.Marshal(invokeRequest{
		Name:       service,
		DataFormat: "json",
		Payload:    base64.StdEncoding.EncodeToString(payload),
	})
	if err != nil {
		return Response{}, fmt.Errorf("marshal invoke body: %w", err)
	}

	c.logger.Debug("invoking service", "service", service, "url", c.URL())

	raw, err := c.doWithRetry(ctx, service, body)
	if err != nil {
		return Response{}, err
	}

	resp, err := decodeResponse(service, raw)
	if err != nil {
		return Response{}, err
	}

	c.logger.Debug("response received", "service", service, "cid", resp.CID, "response", string(resp.Data))
	return resp, nil
}

// InvokeInto calls service and unmarshals its response into out.
func (c *Client) InvokeInto(ctx context.Context, service string, request, out any) error {
	resp, err := c.Invoke(ctx, service, request)
	if err != nil {
		return err
	}
	return resp.Decode(out)
}

// decodeResponse checks the Zato result and unwraps the base64 response.
func decodeResponse(service string, raw []byte) (Response, error) {
	var wire invokeResponse
	if err := json.Unmarshal(raw, &wire); err != nil {
		return Response{}, &InvocationError{
			Service:    service,
			StatusCode: http.StatusOK,
			Message:    "response is not JSON",
			Body:       raw,
		}
	}

	if wire.Env.Result != ResultOK {
		return Response{}, &InvocationError{
			Service:    service,
			StatusCode: http.StatusOK,
			Result:     wire.Env.Result,
			Message:    "zato result != " + ResultOK,
			Body:       raw,
		}
	}

	data, err := base64.StdEncoding.DecodeString(wire.Response.Response)
	if err != nil {
		return Response{}, fmt.Errorf("decode response of %s: %w", service, err)
	}

	return Response{CID: wire.Env.CID, Data: data}, nil
}

// doRequest POSTs body to the channel.
func (c *Client) doRequest(ctx context.Context, service string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &InvocationError{
			Service:    service,
			StatusCode: resp.StatusCode,
			Message:    "HTTP status != 200: " + http.StatusText(resp.StatusCode),
			Body:       raw,
		}
	}

	return raw, nil
}

// doWithRetry performs a request with exponential backoff retry.
func (c *Client) doWithRetry(ctx context.Context, service string, body []byte) ([]byte, error) {
	var lastErr error
	backoff := c.retryBackoff

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			// Jitter: backoff * (0.5 to 1.5)
			wait := backoff
			if backoff > 0 {
				wait = backoff/2 + time.Duration(rand.Int63n(int64(backoff)))
			}
			c.logger.Debug("retrying request",
				"attempt", attempt,
				"backoff", wait,
				"service", service,
			)

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}

			backoff *= 2
		}

		raw, err := c.doRequest(ctx, service, body)
		if err == nil {
			return raw, nil
		}

		lastErr = err

		var invErr *InvocationError
		if !errors.As(err, &invErr) || !invErr.IsRetryable() {
			return nil, err
		}
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}
