package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultNamespace          = "zato"
	DefaultPollInterval       = 200 * time.Millisecond
	DefaultMaxPollAttempts    = 100
	DefaultWriteTimeout       = 5 * time.Second
	DefaultPingInterval       = 30 * time.Second
	DefaultPingTimeout        = 60 * time.Second
	DefaultBufferSize         = 1000
	DefaultReconnectBaseDelay = 1 * time.Second
	DefaultReconnectMaxDelay  = 60 * time.Second
	DefaultSendBurst          = 1
	DefaultRESTPath           = "/api"
	DefaultRESTTimeout        = 30 * time.Second
	DefaultMaxRetries         = 3
	DefaultDBPort             = 5432
	DefaultDBSSLMode          = "prefer"
	DefaultMaxConns           = 10
	DefaultMinConns           = 2
	DefaultBatchSize          = 500
	DefaultFlushInterval      = 1 * time.Second
	DefaultLogLevel           = "error"
	DefaultLogMaxSizeMB       = 10
	DefaultLogMaxBackups      = 3
)

// ApplyDefaults fills unset optional fields.
func (c *Config) ApplyDefaults() {
	// WSX defaults
	w := &c.WSX
	if w.Namespace == "" {
		w.Namespace = DefaultNamespace
	}
	if w.PollInterval == 0 {
		w.PollInterval = DefaultPollInterval
	}
	if w.MaxPollAttempts == 0 {
		w.MaxPollAttempts = DefaultMaxPollAttempts
	}
	if w.WriteTimeout == 0 {
		w.WriteTimeout = DefaultWriteTimeout
	}
	if w.PingInterval == 0 {
		w.PingInterval = DefaultPingInterval
	}
	if w.PingTimeout == 0 {
		w.PingTimeout = DefaultPingTimeout
	}
	if w.BufferSize == 0 {
		w.BufferSize = DefaultBufferSize
	}
	if w.ReconnectBaseDelay == 0 {
		w.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if w.ReconnectMaxDelay == 0 {
		w.ReconnectMaxDelay = DefaultReconnectMaxDelay
	}
	if w.SendBurst == 0 {
		w.SendBurst = DefaultSendBurst
	}

	// REST defaults
	if c.REST.Path == "" {
		c.REST.Path = DefaultRESTPath
	}
	if c.REST.Timeout == 0 {
		c.REST.Timeout = DefaultRESTTimeout
	}
	if c.REST.MaxRetries == 0 {
		c.REST.MaxRetries = DefaultMaxRetries
	}

	// Archive defaults
	applyDBDefaults(&c.Archive.Database)
	if c.Archive.BatchSize == 0 {
		c.Archive.BatchSize = DefaultBatchSize
	}
	if c.Archive.FlushInterval == 0 {
		c.Archive.FlushInterval = DefaultFlushInterval
	}

	// Log defaults
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.MaxSizeMB == 0 {
		c.Log.MaxSizeMB = DefaultLogMaxSizeMB
	}
	if c.Log.MaxBackups == 0 {
		c.Log.MaxBackups = DefaultLogMaxBackups
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
