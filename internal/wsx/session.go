package wsx

import (
	"context"
	"fmt"

	"github.com/rickgao/zato-client/internal/envelope"
)

// Token returns the session token, InvalidToken when there is none.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// State returns the session state.
func (c *Client) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// IsReady reports whether a session token is held.
func (c *Client) IsReady() bool {
	return c.State() == StateAuthenticated
}

// WaitReady blocks until the client holds a session token or ctx ends.
func (c *Client) WaitReady(ctx context.Context) error {
	c.mu.RLock()
	ready := c.ready
	c.mu.RUnlock()

	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// identity returns the fields sent with create-session.
func (c *Client) identity() envelope.Identity {
	return envelope.Identity{
		ClientID:   c.cfg.ClientID,
		ClientName: c.cfg.ClientName,
		Username:   c.cfg.Username,
		Secret:     c.cfg.Secret,
	}
}

// createSession logs in on a freshly opened socket. ctx ends when that
// socket closes; a session is only committed while it is still open.
func (c *Client) createSession(ctx context.Context) {
	c.mu.Lock()
	if ctx.Err() != nil {
		c.mu.Unlock()
		return
	}
	if c.state == StateAuthenticated {
		c.ready = make(chan struct{})
	}
	c.token = InvalidToken
	c.state = StateConnected
	c.mu.Unlock()

	env := envelope.CreateSession(c.engine.NewMessageID(), c.identity())
	c.logger.Debug("creating session", "msg_id", env.Meta.ID, "username", c.cfg.Username)

	resp, err := c.engine.Call(ctx, env, 0)
	if err != nil {
		if ctx.Err() != nil {
			c.logger.Warn("connection closed during login", "msg_id", env.Meta.ID)
			return
		}
		c.logger.Error("could not create session", "msg_id", env.Meta.ID, "error", err)
		c.reportError(fmt.Errorf("create session: %w", err))
		return
	}

	token, ok := resp.StringField("token")
	if !ok {
		c.logger.Warn("no token in create-session response", "response", resp.String())
		c.reportError(fmt.Errorf("create session: %w", ErrMissingToken))
		return
	}

	c.mu.Lock()
	// A token from a socket that has since closed is discarded.
	if ctx.Err() != nil || c.state != StateConnected {
		c.mu.Unlock()
		c.logger.Warn("connection closed during login, discarding token", "msg_id", env.Meta.ID)
		return
	}
	c.token = token
	c.state = StateAuthenticated
	c.sessions++
	resumed := c.sessions > 1
	close(c.ready)
	c.mu.Unlock()

	c.logger.Info("session created", "client_id", c.cfg.ClientID)

	if resumed && c.cfg.ResumeOnReconnect {
		c.resumeAll(ctx)
	}

	if c.cb.WhenReady != nil {
		c.cb.WhenReady(c)
		return
	}
	c.logger.Info("client ready", "address", c.cfg.Address)
}

// resetSession drops the token. Subscription mappings are kept.
func (c *Client) resetSession() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateAuthenticated {
		c.ready = make(chan struct{})
	}
	c.token = InvalidToken
	c.state = StateDisconnected
}

// sessionToken returns the token or ErrNoSession.
func (c *Client) sessionToken() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.state != StateAuthenticated || c.token == InvalidToken {
		return "", ErrNoSession
	}
	return c.token, nil
}
