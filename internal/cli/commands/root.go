package commands

import (
	"errors"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/socialeye/internal/api/client"
	"github.com/socialeye/internal/config"
	"github.com/socialeye/internal/logging"
)

type rootOptions struct {
	configPath string
	server     string
	token      string
	cfg        *config.Config
	log        *logrus.Logger
}

// apiClient connects to the daemon named by --server or client.server.
func (o *rootOptions) apiClient() (*client.Client, error) {
	server, token := o.server, o.token
	if server == "" {
		server = o.cfg.Client.Server
	}
	if token == "" {
		token = o.cfg.Client.Token
	}
	if server == "" {
		return nil, errNoServer
	}
	return client.NewClient(server, token, nil)
}

func (o *rootOptions) remote() bool {
	return o.server != "" || o.cfg.Client.Server != ""
}

var errNoServer = errors.New("no daemon configured, set --server or client.server")

func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "socialeye",
		Short: "SocialEye alerting daemon",
		Long: `SocialEye evaluates alert rules against platform metrics on a fixed
interval and fans triggered alerts out to webhook, email, Slack and SMS channels.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			opts.cfg = cfg
			opts.log = logging.New(logging.Config{
				Level:  cfg.Log.Level,
				Format: cfg.Log.Format,
				Output: cmd.ErrOrStderr(),
			})
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to config file (default ./config.yaml)")
	cmd.PersistentFlags().StringVar(&opts.server, "server", "", "Admin API URL of a running daemon (default client.server)")
	cmd.PersistentFlags().StringVar(&opts.token, "token", "", "Admin API token (default client.token)")

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newRulesCommand(opts))
	cmd.AddCommand(newAlertsCommand(opts))
	cmd.AddCommand(newTokenCommand(opts))

	return cmd
}
