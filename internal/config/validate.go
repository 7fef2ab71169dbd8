package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate checks the settings every command needs.
func (c *Config) Validate() error {
	if c.Client.Name == "" {
		return errors.New("client.name is required")
	}

	if err := c.WSX.validate(); err != nil {
		return err
	}

	if c.REST.Address != "" {
		if err := validateURL("rest.address", c.REST.Address, "http", "https"); err != nil {
			return err
		}
		if !strings.HasPrefix(c.REST.Path, "/") {
			return errors.New("rest.path must start with /")
		}
	}
	if c.REST.MaxRetries < 0 {
		return errors.New("rest.max_retries must be >= 0")
	}

	if c.Archive.Enabled {
		if err := c.Archive.Database.validate("archive.database"); err != nil {
			return err
		}
		if c.Archive.BatchSize < 1 {
			return errors.New("archive.batch_size must be >= 1")
		}
	}

	switch strings.ToLower(c.Log.Level) {
	case "error", "warn", "warning", "info", "debug":
	default:
		return fmt.Errorf("log.level %q is not one of error, warn, info, debug", c.Log.Level)
	}

	return nil
}

func (w *WSXConfig) validate() error {
	if w.Address == "" {
		return errors.New("wsx.address is required")
	}
	if err := validateURL("wsx.address", w.Address, "ws", "wss"); err != nil {
		return err
	}
	if w.PollInterval <= 0 {
		return errors.New("wsx.poll_interval must be > 0")
	}
	if w.MaxPollAttempts < 1 {
		return errors.New("wsx.max_poll_attempts must be >= 1")
	}
	if w.MaxReconnectAttempts < 0 {
		return errors.New("wsx.max_reconnect_attempts must be >= 0")
	}
	if w.ReconnectBaseDelay < 0 {
		return errors.New("wsx.reconnect_base_delay must be >= 0")
	}
	if w.ReconnectMaxDelay < w.ReconnectBaseDelay {
		return fmt.Errorf("wsx.reconnect_max_delay (%s) cannot be below reconnect_base_delay (%s)",
			w.ReconnectMaxDelay, w.ReconnectBaseDelay)
	}
	if w.SendRate < 0 {
		return errors.New("wsx.send_rate must be >= 0")
	}
	return nil
}

func validateURL(field, raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	for _, s := range schemes {
		if u.Scheme == s {
			return nil
		}
	}
	return fmt.Errorf("%s scheme must be one of %s", field, strings.Join(schemes, ", "))
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
