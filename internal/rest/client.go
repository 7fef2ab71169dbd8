// Package rest invokes Zato services over the synchronous REST channel.
package rest

import (
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// DefaultPath is the default invocation path of a REST channel.
const DefaultPath = "/api"

// Client invokes Zato services through one REST channel.
type Client struct {
	address    string
	path       string
	username   string
	password   string
	httpClient *http.Client
	logger     *slog.Logger

	maxRetries   int
	retryBackoff time.Duration
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// Config holds the settings NewFromConfig needs.
type Config struct {
	Address    string        // e.g. http://localhost:11223
	Path       string        // Default /api
	Username   string
	Password   string
	Timeout    time.Duration // Default 30s
	MaxRetries int
}

// NewClient creates a client for the channel at address+path, authenticating
// with HTTP basic auth.
func NewClient(address, path, username, password string, opts ...ClientOption) *Client {
	if path == "" {
		path = DefaultPath
	}

	c := &Client{
		address:  strings.TrimRight(address, "/"),
		path:     path,
		username: username,
		password: password,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger:       slog.Default(),
		maxRetries:   3,
		retryBackoff: time.Second,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// NewFromConfig creates a client from cfg. Options are applied after cfg.
func NewFromConfig(cfg Config, opts ...ClientOption) *Client {
	base := []ClientOption{WithRetries(cfg.MaxRetries, time.Second)}
	if cfg.Timeout > 0 {
		base = append(base, WithTimeout(cfg.Timeout))
	}
	return NewClient(cfg.Address, cfg.Path, cfg.Username, cfg.Password, append(base, opts...)...)
}

// URL returns the invocation endpoint.
func (c *Client) URL() string {
	return c.address + c.path
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithRetries sets the retry configuration.
func WithRetries(max int, backoff time.Duration) ClientOption {
	return func(c *Client) {
		c.maxRetries = max
		c.retryBackoff = backoff
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}
