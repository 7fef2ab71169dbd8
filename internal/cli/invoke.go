package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rickgao/zato-client/internal/logging"
	"github.com/rickgao/zato-client/internal/router"
	"github.com/rickgao/zato-client/internal/wsx"
)

const closeTimeout = 5 * time.Second

// connect validates configuration, dials and waits for the first session.
// handlers receive unsolicited messages next to cb.OnMessage.
func (a *app) connect(ctx context.Context, cb wsx.Callbacks, handlers ...router.Handler) (*wsx.Client, error) {
	if err := a.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	client := wsx.New(wsxConfig(a.cfg), cb, logging.WithComponent(a.logger.Logger, "wsx"))
	for _, h := range handlers {
		client.AddMessageHandler(h)
	}
	if err := client.Connect(ctx); err != nil {
		return nil, err
	}

	readyCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	if err := client.WaitReady(readyCtx); err != nil {
		a.close(client)
		return nil, fmt.Errorf("wait for session: %w", err)
	}
	return client, nil
}

func (a *app) close(client *wsx.Client) {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	if err := client.Close(ctx); err != nil {
		a.logger.Warn("close client", "error", err)
	}
}

// jsonArg returns args[i] as raw JSON, or nil when absent.
func jsonArg(args []string, i int) (any, error) {
	if len(args) <= i || args[i] == "" {
		return nil, nil
	}
	if !json.Valid([]byte(args[i])) {
		return nil, errors.New("request is not valid JSON")
	}
	return json.RawMessage(args[i]), nil
}

// dataArg returns s as raw JSON when it parses, otherwise as a string.
func dataArg(s string) any {
	if json.Valid([]byte(s)) {
		return json.RawMessage(s)
	}
	return s
}

func (a *app) newInvokeCommand() *cobra.Command {
	var msgID string

	cmd := &cobra.Command{
		Use:   "invoke <service> [json-request]",
		Short: "Invoke a service over the WSX channel",
		Example: `  wsxctl invoke --address ws://localhost:17010/zato/wsx/api zato.ping
  wsxctl -c wsxctl.yaml invoke my.service '{"customer_id": 123}'`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			service := args[0]
			request, err := jsonArg(args, 1)
			if err != nil {
				return err
			}

			client, err := a.connect(cmd.Context(), wsx.Callbacks{})
			if err != nil {
				return err
			}
			defer a.close(client)

			var opts []wsx.InvokeOption
			if msgID != "" {
				opts = append(opts, wsx.WithMessageID(msgID))
			}
			resp, err := client.Invoke(cmd.Context(), service, request, opts...)
			if err != nil {
				return err
			}
			a.out.response(service, resp)
			return nil
		},
	}

	cmd.Flags().StringVar(&msgID, "msg-id", "", "Message id of the request (default: generated)")
	return cmd
}

func (a *app) newPublishCommand() *cobra.Command {
	var opts wsx.PublishOptions

	cmd := &cobra.Command{
		Use:   "publish <topic> <data>",
		Short: "Publish a message to a topic",
		Long: `Publish a message to a topic through the WSX channel.

Data that parses as JSON is sent as JSON, anything else as a string.`,
		Example: `  wsxctl publish /customer/new '{"name": "Alice"}' --priority 7`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			topic := args[0]

			client, err := a.connect(cmd.Context(), wsx.Callbacks{})
			if err != nil {
				return err
			}
			defer a.close(client)

			resp, err := client.Publish(cmd.Context(), topic, dataArg(args[1]), opts)
			if err != nil {
				return err
			}
			a.out.response("publish "+topic, resp)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.MsgID, "msg-id", "", "Message id (default: generated)")
	f.BoolVar(&opts.HasGuaranteedDelivery, "gd", false, "Request guaranteed delivery")
	f.IntVar(&opts.Priority, "priority", wsx.DefaultPriority, "Priority, 1-9")
	f.DurationVar(&opts.Expiration, "expiration", 0, "Time until the message expires (default: never)")
	f.StringVar(&opts.MimeType, "mime-type", wsx.DefaultMimeType, "MIME type of the data")
	f.StringVar(&opts.CorrelationID, "correl-id", "", "Correlation id")
	f.StringVar(&opts.InReplyTo, "in-reply-to", "", "Id of the message this one replies to")
	f.StringVar(&opts.ExternalClientID, "ext-client-id", "", "External client id")
	return cmd
}
