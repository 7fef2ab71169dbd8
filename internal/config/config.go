package config

import "time"

// Config is the root configuration of a client process.
type Config struct {
	Client  ClientConfig  `yaml:"client" toml:"client"`
	WSX     WSXConfig     `yaml:"wsx" toml:"wsx"`
	REST    RESTConfig    `yaml:"rest" toml:"rest"`
	Archive ArchiveConfig `yaml:"archive" toml:"archive"`
	Log     LogConfig     `yaml:"log" toml:"log"`
}

// ClientConfig identifies the client and carries its WSX credentials.
type ClientConfig struct {
	ID       string `yaml:"id" toml:"id"` // Random UUID when empty
	Name     string `yaml:"name" toml:"name"`
	Username string `yaml:"username" toml:"username"`
	Secret   string `yaml:"secret" toml:"secret"`
}

// WSXConfig holds WebSocket channel settings.
type WSXConfig struct {
	Address              string        `yaml:"address" toml:"address"`
	Namespace            string        `yaml:"namespace" toml:"namespace"`
	PollInterval         time.Duration `yaml:"poll_interval" toml:"poll_interval"`
	MaxPollAttempts      int           `yaml:"max_poll_attempts" toml:"max_poll_attempts"`
	WriteTimeout         time.Duration `yaml:"write_timeout" toml:"write_timeout"`
	PingInterval         time.Duration `yaml:"ping_interval" toml:"ping_interval"`
	PingTimeout          time.Duration `yaml:"ping_timeout" toml:"ping_timeout"`
	BufferSize           int           `yaml:"buffer_size" toml:"buffer_size"`
	ReconnectBaseDelay   time.Duration `yaml:"reconnect_base_delay" toml:"reconnect_base_delay"`
	ReconnectMaxDelay    time.Duration `yaml:"reconnect_max_delay" toml:"reconnect_max_delay"`
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts" toml:"max_reconnect_attempts"` // 0 = unbounded
	SendRate             float64       `yaml:"send_rate" toml:"send_rate"`                           // Frames per second, 0 = unlimited
	SendBurst            int           `yaml:"send_burst" toml:"send_burst"`
	ResumeOnReconnect    bool          `yaml:"resume_on_reconnect" toml:"resume_on_reconnect"`
}

// ResponseTimeout is the wait budget of one request.
func (w WSXConfig) ResponseTimeout() time.Duration {
	return w.PollInterval * time.Duration(w.MaxPollAttempts)
}

// RESTConfig holds REST channel settings.
type RESTConfig struct {
	Address    string        `yaml:"address" toml:"address"`
	Path       string        `yaml:"path" toml:"path"`
	Username   string        `yaml:"username" toml:"username"`
	Password   string        `yaml:"password" toml:"password"`
	Timeout    time.Duration `yaml:"timeout" toml:"timeout"`
	MaxRetries int           `yaml:"max_retries" toml:"max_retries"`
}

// ArchiveConfig controls persistence of unsolicited messages.
type ArchiveConfig struct {
	Enabled       bool          `yaml:"enabled" toml:"enabled"`
	Database      DBConfig      `yaml:"database" toml:"database"`
	BatchSize     int           `yaml:"batch_size" toml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval" toml:"flush_interval"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host" toml:"host"`
	Port     int    `yaml:"port" toml:"port"`
	Name     string `yaml:"name" toml:"name"`
	User     string `yaml:"user" toml:"user"`
	Password string `yaml:"password" toml:"password"`
	SSLMode  string `yaml:"ssl_mode" toml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns" toml:"max_conns"`
	MinConns int    `yaml:"min_conns" toml:"min_conns"`
}

// LogConfig controls process logging.
type LogConfig struct {
	Level      string `yaml:"level" toml:"level"` // error, warn, info, debug
	JSON       bool   `yaml:"json" toml:"json"`
	File       string `yaml:"file" toml:"file"` // Empty = stderr
	MaxSizeMB  int    `yaml:"max_size_mb" toml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" toml:"max_backups"`
}
