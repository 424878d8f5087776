package commands

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/socialeye/internal/alert"
	"github.com/socialeye/internal/database"
	"github.com/socialeye/internal/models"
)

func newAlertsCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "alerts",
		Short:   "Alert history commands",
		Aliases: []string{"alert", "a"},
	}

	cmd.AddCommand(newAlertsActiveCommand(opts))
	cmd.AddCommand(newAlertsHistoryCommand(opts))
	cmd.AddCommand(newAlertsResolveCommand(opts))
	return cmd
}

func openStore(opts *rootOptions) (*alert.Store, func(), error) {
	db, err := database.Open(opts.cfg.Database.Path, opts.log)
	if err != nil {
		return nil, nil, err
	}
	store := alert.NewStore(alert.NewGormStorage(db), alert.NewActiveIndex(), opts.log, nil)
	return store, func() { _ = database.Close(db) }, nil
}

func printAlerts(out io.Writer, alerts []models.Alert) error {
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ID\tRULE\tSEVERITY\tTITLE\tSTATUS\tTIME")
	for _, a := range alerts {
		status := "active"
		if a.Resolved {
			status = "resolved"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			a.ID,
			a.RuleID,
			a.Severity,
			a.Title,
			status,
			a.Timestamp.Format(time.RFC3339),
		)
	}
	return w.Flush()
}

// The active set lives in the daemon's memory, so this always goes remote.
func newAlertsActiveCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "active",
		Short: "List unresolved alerts of a running daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.apiClient()
			if err != nil {
				return err
			}
			alerts, err := c.ActiveAlerts(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to list active alerts: %w", err)
			}
			return printAlerts(cmd.OutOrStdout(), alerts)
		},
	}
}

func newAlertsHistoryCommand(opts *rootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:     "history",
		Short:   "List recent alerts",
		Aliases: []string{"ls"},
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				alerts []models.Alert
				err    error
			)
			if opts.remote() {
				c, cerr := opts.apiClient()
				if cerr != nil {
					return cerr
				}
				alerts, err = c.History(cmd.Context(), limit)
			} else {
				store, closeDB, oerr := openStore(opts)
				if oerr != nil {
					return oerr
				}
				defer closeDB()
				alerts, err = store.History(cmd.Context(), limit)
			}
			if err != nil {
				return fmt.Errorf("failed to list alerts: %w", err)
			}
			return printAlerts(cmd.OutOrStdout(), alerts)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "Number of alerts to show")
	return cmd
}

func newAlertsResolveCommand(opts *rootOptions) *cobra.Command {
	var by string

	cmd := &cobra.Command{
		Use:   "resolve [alert_id]",
		Short: "Resolve an alert",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if opts.remote() {
				c, cerr := opts.apiClient()
				if cerr != nil {
					return cerr
				}
				err = c.ResolveAlert(cmd.Context(), args[0], by)
			} else {
				store, closeDB, oerr := openStore(opts)
				if oerr != nil {
					return oerr
				}
				defer closeDB()
				if by == "" {
					by = "cli"
				}
				err = store.Resolve(cmd.Context(), args[0], by)
			}
			if err != nil {
				return fmt.Errorf("failed to resolve alert: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Alert %s resolved\n", args[0])
			return nil
		},
	}

	cmd.Flags().StringVar(&by, "by", "", "Recorded as resolved_by (default: cli locally, the token subject remotely)")
	return cmd
}
