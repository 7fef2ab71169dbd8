package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/zato-client/internal/archive"
	"github.com/rickgao/zato-client/internal/config"
	"github.com/rickgao/zato-client/internal/connection"
	"github.com/rickgao/zato-client/internal/database"
	"github.com/rickgao/zato-client/internal/envelope"
	"github.com/rickgao/zato-client/internal/logging"
	"github.com/rickgao/zato-client/internal/router"
	"github.com/rickgao/zato-client/internal/wsx"
)

type listenOptions struct {
	topics        []string
	archive       bool
	statsInterval time.Duration
}

func (a *app) newListenCommand() *cobra.Command {
	var opts listenOptions

	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Subscribe to topics and print delivered messages",
		Long: `Stay connected, subscribe to the given topics and print every message
the server sends. Subscriptions are resumed after each reconnection.

With --archive, messages are also stored in PostgreSQL using the
archive.database settings.`,
		Example: `  wsxctl -c wsxctl.yaml listen --topic /customer/new --topic /customer/updated`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runListen(cmd.Context(), opts)
		},
	}

	f := cmd.Flags()
	f.StringArrayVarP(&opts.topics, "topic", "t", nil, "Topic to subscribe to (repeatable)")
	f.BoolVar(&opts.archive, "archive", false, "Store messages in PostgreSQL")
	f.DurationVar(&opts.statsInterval, "stats-interval", time.Minute, "How often to log connection statistics, 0 to disable")
	return cmd
}

func (a *app) runListen(ctx context.Context, opts listenOptions) error {
	if opts.archive {
		a.cfg.Archive.Enabled = true
	}
	// Subscriptions are resumed from WhenReady.
	a.cfg.WSX.ResumeOnReconnect = false
	if err := a.cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var handlers []router.Handler
	var writer *archive.Writer
	if a.cfg.Archive.Enabled {
		pool, err := database.Connect(ctx, a.cfg.Archive.Database)
		if err != nil {
			return fmt.Errorf("connect archive database: %w", err)
		}
		defer pool.Close()

		writer = archive.NewWriter(archiveConfig(a.cfg), pool, logging.WithComponent(a.logger.Logger, "archive"))
		if err := writer.EnsureSchema(ctx); err != nil {
			return err
		}
		handlers = append(handlers, writer.Handler())
	}

	g, gctx := errgroup.WithContext(ctx)
	fatal := make(chan error, 1)

	cb := wsx.Callbacks{
		WhenReady: func(c *wsx.Client) {
			a.subscribeAll(gctx, c, opts.topics)
		},
		OnMessage: func(c *wsx.Client, env envelope.Envelope) {
			a.out.message(env, time.Now())
		},
		OnDisconnected: func(c *wsx.Client, code int, reason string) {
			a.out.failure("disconnected (%d %s), reconnecting", code, reason)
		},
		OnError: func(c *wsx.Client, err error) {
			if errors.Is(err, connection.ErrReconnectExhausted) {
				select {
				case fatal <- err:
				default:
				}
				return
			}
			a.out.failure("error: %v", err)
		},
	}

	if writer != nil {
		if err := writer.Start(gctx); err != nil {
			return err
		}
	}

	client, err := a.connect(gctx, cb, handlers...)
	if err != nil {
		if writer != nil {
			a.stopWriter(writer)
		}
		return err
	}

	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case err := <-fatal:
			return err
		}
	})

	if opts.statsInterval > 0 {
		g.Go(func() error {
			a.logStats(gctx, client, writer, opts.statsInterval)
			return nil
		})
	}

	err = g.Wait()
	a.close(client)
	if writer != nil {
		a.stopWriter(writer)
	}
	return err
}

// subscribeAll subscribes to or resumes every topic.
func (a *app) subscribeAll(ctx context.Context, c *wsx.Client, topics []string) {
	for _, topic := range topics {
		subKey, err := c.SubscribeOrResume(ctx, topic)
		if err != nil {
			a.out.failure("subscribe %s: %v", topic, err)
			continue
		}
		a.logger.Info("subscribed", "topic", topic, "sub_key", subKey)
	}
}

func (a *app) stopWriter(w *archive.Writer) {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	if err := w.Stop(ctx); err != nil {
		a.logger.Warn("stop archive writer", "error", err)
	}
}

func (a *app) logStats(ctx context.Context, c *wsx.Client, w *archive.Writer, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s := c.Stats()
			args := []any{
				"connected", s.Connected,
				"reconnects", s.Reconnects,
				"frames_in", s.FramesIn,
				"frames_out", s.FramesOut,
				"pending", c.PendingResponses(),
			}
			if w != nil {
				m := w.Stats()
				args = append(args, "archived", m.Inserts, "archive_errors", m.Errors)
			}
			a.logger.Info("stats", args...)
		}
	}
}

// archiveConfig maps file configuration onto the archive writer's settings.
func archiveConfig(cfg *config.Config) archive.Config {
	ac := archive.DefaultConfig()
	ac.ClientName = cfg.Client.Name
	if cfg.Archive.BatchSize > 0 {
		ac.BatchSize = cfg.Archive.BatchSize
	}
	if cfg.Archive.FlushInterval > 0 {
		ac.FlushInterval = cfg.Archive.FlushInterval
	}
	return ac
}
