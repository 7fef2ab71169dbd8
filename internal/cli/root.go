// Package cli implements the wsxctl command tree.
package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/rickgao/zato-client/internal/config"
	"github.com/rickgao/zato-client/internal/logging"
	"github.com/rickgao/zato-client/internal/rest"
	"github.com/rickgao/zato-client/internal/wsx"
)

const defaultClientName = "wsxctl"

// app holds flags and state shared by all commands.
type app struct {
	stdout io.Writer
	stderr io.Writer

	// Flags
	configPath string
	address    string
	name       string
	username   string
	secret     string
	logLevel   string
	logFile    string
	jsonLogs   bool
	noColor    bool
	timeout    time.Duration

	// Loaded in PersistentPreRunE
	cfg    *config.Config
	logger *logging.Logger
	out    *printer
}

// NewRootCommand builds the wsxctl command tree.
func NewRootCommand(stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:   "wsxctl",
		Short: "wsxctl - invoke Zato services over WebSockets and REST",
		Long: `wsxctl talks to a Zato server through a WSX channel or a REST channel.

It logs in, invokes services, publishes to topics and listens for
messages delivered to subscriptions.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if a.logger != nil {
				return a.logger.Close()
			}
			return nil
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	flags := root.PersistentFlags()
	flags.StringVarP(&a.configPath, "config", "c", "", "Configuration file (YAML, or TOML when ending in .toml)")
	flags.StringVar(&a.address, "address", "", "WSX channel address, e.g. ws://localhost:17010/zato/wsx/api")
	flags.StringVar(&a.name, "name", "", "Client name")
	flags.StringVar(&a.username, "username", "", "WSX channel username")
	flags.StringVar(&a.secret, "secret", "", "WSX channel secret")
	flags.StringVar(&a.logLevel, "log-level", "", "Log level: error, warn, info, debug (default: error)")
	flags.StringVar(&a.logFile, "log-file", "", "Also write logs to this file, with rotation")
	flags.BoolVar(&a.jsonLogs, "json-logs", false, "Log in JSON")
	flags.BoolVar(&a.noColor, "no-color", false, "Disable colored output")
	flags.DurationVar(&a.timeout, "timeout", 30*time.Second, "Time allowed for connecting and logging in")

	root.AddCommand(
		a.newInvokeCommand(),
		a.newPublishCommand(),
		a.newListenCommand(),
		a.newRESTCommand(),
		newVersionCommand(),
	)

	return root
}

// Execute runs the command tree with args.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	root := NewRootCommand(stdout, stderr)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

// setup loads configuration, applies flag overrides and builds the logger.
func (a *app) setup(cmd *cobra.Command, args []string) error {
	if cmd.Name() == "help" || cmd.Name() == "version" {
		return nil
	}

	if a.configPath != "" {
		cfg, err := config.LoadWithDefaults(a.configPath)
		if err != nil {
			return fmt.Errorf("load configuration from %s: %w", a.configPath, err)
		}
		a.cfg = cfg
	} else {
		a.cfg = config.Default()
	}
	a.applyFlags()

	a.logger = logging.New(a.cfg.Log, a.stderr)
	a.out = newPrinter(a.stdout, a.noColor)
	return nil
}

// applyFlags overrides file settings with explicitly given flags.
func (a *app) applyFlags() {
	if a.address != "" {
		a.cfg.WSX.Address = a.address
	}
	if a.name != "" {
		a.cfg.Client.Name = a.name
	}
	if a.username != "" {
		a.cfg.Client.Username = a.username
	}
	if a.secret != "" {
		a.cfg.Client.Secret = a.secret
	}
	if a.logLevel != "" {
		a.cfg.Log.Level = a.logLevel
	}
	if a.logFile != "" {
		a.cfg.Log.File = a.logFile
	}
	if a.jsonLogs {
		a.cfg.Log.JSON = true
	}
	if a.cfg.Client.Name == "" {
		a.cfg.Client.Name = defaultClientName
	}
}

// wsxConfig maps file configuration onto the client's settings.
func wsxConfig(cfg *config.Config) wsx.Config {
	w := cfg.WSX
	return wsx.Config{
		Address:              w.Address,
		ClientID:             cfg.Client.ID,
		ClientName:           cfg.Client.Name,
		Username:             cfg.Client.Username,
		Secret:               cfg.Client.Secret,
		Namespace:            w.Namespace,
		PollInterval:         w.PollInterval,
		MaxPollAttempts:      w.MaxPollAttempts,
		HandshakeTimeout:     wsx.DefaultConfig().HandshakeTimeout,
		PingInterval:         w.PingInterval,
		PingTimeout:          w.PingTimeout,
		WriteTimeout:         w.WriteTimeout,
		BufferSize:           w.BufferSize,
		ReconnectBaseWait:    w.ReconnectBaseDelay,
		ReconnectMaxWait:     w.ReconnectMaxDelay,
		MaxReconnectAttempts: w.MaxReconnectAttempts,
		SendRate:             w.SendRate,
		SendBurst:            w.SendBurst,
		DispatchBufferSize:   w.BufferSize,
		ResumeOnReconnect:    w.ResumeOnReconnect,
	}
}

// restConfig maps file configuration onto the REST client's settings.
func restConfig(cfg *config.Config) rest.Config {
	return rest.Config{
		Address:    cfg.REST.Address,
		Path:       cfg.REST.Path,
		Username:   cfg.REST.Username,
		Password:   cfg.REST.Password,
		Timeout:    cfg.REST.Timeout,
		MaxRetries: cfg.REST.MaxRetries,
	}
}
