package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rickgao/zato-client/internal/logging"
	"github.com/rickgao/zato-client/internal/rest"
)

type restFlags struct {
	address  string
	path     string
	username string
	password string
}

func (a *app) newRESTCommand() *cobra.Command {
	var rf restFlags

	cmd := &cobra.Command{
		Use:   "rest",
		Short: "Invoke services over a REST channel",
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&rf.address, "rest-address", "", "REST channel address, e.g. http://localhost:11223")
	pf.StringVar(&rf.path, "rest-path", "", "REST channel path (default: "+rest.DefaultPath+")")
	pf.StringVar(&rf.username, "rest-username", "", "REST channel username")
	pf.StringVar(&rf.password, "rest-password", "", "REST channel password")

	invoke := &cobra.Command{
		Use:     "invoke <service> [json-request]",
		Short:   "Invoke a service and print its response",
		Example: `  wsxctl rest invoke --rest-address http://localhost:11223 zato.ping`,
		Args:    cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.restClient(rf)
			if err != nil {
				return err
			}

			request, err := jsonArg(args, 1)
			if err != nil {
				return err
			}

			resp, err := client.Invoke(cmd.Context(), args[0], request)
			if err != nil {
				return err
			}
			a.out.header.Fprintf(a.out.w, "<< %s", args[0])
			a.out.key.Fprintf(a.out.w, " cid=%s\n", resp.CID)
			a.out.data(resp.Data)
			return nil
		},
	}

	cmd.AddCommand(invoke)
	return cmd
}

// restClient builds a REST client from configuration and flags.
func (a *app) restClient(rf restFlags) (*rest.Client, error) {
	cfg := restConfig(a.cfg)
	if rf.address != "" {
		cfg.Address = rf.address
	}
	if rf.path != "" {
		cfg.Path = rf.path
	}
	if rf.username != "" {
		cfg.Username = rf.username
	}
	if rf.password != "" {
		cfg.Password = rf.password
	}
	if cfg.Address == "" {
		return nil, errors.New("rest address is required, set rest.address or --rest-address")
	}
	if cfg.MaxRetries < 0 {
		return nil, fmt.Errorf("rest.max_retries must be >= 0, got %d", cfg.MaxRetries)
	}

	return rest.NewFromConfig(cfg, rest.WithLogger(logging.WithComponent(a.logger.Logger, "rest"))), nil
}
