package rest

import (
	"encoding/json"
	"fmt"
)

// ResultOK is the zato_env.result of a successful invocation.
const ResultOK = "ZATO_OK"

// invokeRequest is the body POSTed to the channel.
type invokeRequest struct {
	Name       string `json:"name"`
	DataFormat string `json:"data_format"`
	Payload    string `json:"payload"` // base64 of the JSON request
}

// invokeResponse is the envelope returned by the channel.
type invokeResponse struct {
	Env struct {
		Result  string `json:"result"`
		CID     string `json:"cid,omitempty"`
		Details string `json:"details,omitempty"`
	} `json:"zato_env"`
	Response struct {
		Response string `json:"response"` // base64 of the JSON response
	} `json:"zato_service_invoke_response"`
}

// Response is a decoded service response.
type Response struct {
	CID  string
	Data json.RawMessage
}

// Decode unmarshals the service response into v.
func (r Response) Decode(v any) error {
	if len(r.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Data, v); err != nil {
		return fmt.Errorf("unmarshal service response: %w", err)
	}
	return nil
}

// InvocationError is returned when the channel answers with a status other
// than 200 or a result other than ZATO_OK.
type InvocationError struct {
	Service    string
	StatusCode int
	Result     string // zato_env.result, empty when the body was not parsed
	Message    string
	Body       []byte
}

func (e *InvocationError) Error() string {
	if e.Result != "" {
		return fmt.Sprintf("zato invoke %s: %s (status %d, result %s)", e.Service, e.Message, e.StatusCode, e.Result)
	}
	return fmt.Sprintf("zato invoke %s: %s (status %d)", e.Service, e.Message, e.StatusCode)
}

// IsRetryable returns true if the error should trigger a retry.
func (e *InvocationError) IsRetryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == 429
}
