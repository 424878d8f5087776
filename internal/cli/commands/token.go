package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/socialeye/internal/auth"
)

func newTokenCommand(opts *rootOptions) *cobra.Command {
	var (
		role    string
		subject string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an admin API token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := auth.GenerateToken(opts.cfg.Server.JWTSecret, subject, auth.Role(role), ttl)
			if err != nil {
				return fmt.Errorf("failed to generate token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&role, "role", string(auth.RoleViewer), "Token role (admin/viewer)")
	cmd.Flags().StringVar(&subject, "subject", "cli", "Token subject, recorded as resolved_by")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	return cmd
}
