package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"text/tabwriter"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/socialeye/internal/alert"
	"github.com/socialeye/internal/database"
	"github.com/socialeye/internal/models"
)

func newRulesCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "rules",
		Short:   "Alert rule commands",
		Aliases: []string{"rule"},
	}

	cmd.AddCommand(newRulesValidateCommand())
	cmd.AddCommand(newRulesExportCommand(opts))
	cmd.AddCommand(newRulesListCommand(opts))
	cmd.AddCommand(newRulesToggleCommand(opts, true))
	cmd.AddCommand(newRulesToggleCommand(opts, false))
	cmd.AddCommand(newRulesDeleteCommand(opts))
	cmd.AddCommand(newRulesCheckCommand(opts))
	return cmd
}

func printRules(out io.Writer, rules []*models.AlertRule) error {
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ID\tKIND\tCONDITION\tSEVERITY\tTHROTTLE\tENABLED")
	for _, r := range rules {
		c := r.Condition
		fmt.Fprintf(w, "%s\t%s\t%s %s %g (%dm)\t%s\t%dm\t%t\n",
			r.ID, c.Kind, c.Metric, c.Operator.Symbol(), c.Value, c.WindowMinutes,
			r.Severity, r.ThrottleMinutes, r.Enabled)
	}
	return w.Flush()
}

func newRulesListCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Short:   "List the rules of a running daemon",
		Aliases: []string{"ls"},
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.apiClient()
			if err != nil {
				return err
			}
			rules, err := c.ListRules(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to list rules: %w", err)
			}
			ptrs := make([]*models.AlertRule, len(rules))
			for i := range rules {
				ptrs[i] = &rules[i]
			}
			return printRules(cmd.OutOrStdout(), ptrs)
		},
	}
}

func newRulesToggleCommand(opts *rootOptions, enable bool) *cobra.Command {
	use, short := "disable [rule_id]", "Disable a rule on a running daemon"
	if enable {
		use, short = "enable [rule_id]", "Enable a rule on a running daemon"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.apiClient()
			if err != nil {
				return err
			}
			rule, err := c.SetRuleEnabled(cmd.Context(), args[0], enable)
			if err != nil {
				return fmt.Errorf("failed to update rule: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Rule %s enabled=%t\n", rule.ID, rule.Enabled)
			return nil
		},
	}
}

func newRulesDeleteCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "delete [rule_id]",
		Short:   "Delete a rule on a running daemon",
		Aliases: []string{"rm"},
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.apiClient()
			if err != nil {
				return err
			}
			if err := c.DeleteRule(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("failed to delete rule: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Rule %s deleted\n", args[0])
			return nil
		},
	}
}

func newRulesCheckCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check [rule_id]",
		Short: "Evaluate a rule now on a running daemon",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.apiClient()
			if err != nil {
				return err
			}
			res, err := c.CheckRule(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("failed to check rule: %w", err)
			}
			if !res.Triggered {
				fmt.Fprintf(cmd.OutOrStdout(), "Rule %s did not trigger\n", args[0])
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Rule %s triggered alert %s: %s\n", args[0], res.Alert.ID, res.Alert.Title)
			return nil
		},
	}
}

func newRulesValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [file]",
		Short: "Validate a rule file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rules, err := alert.LoadRuleFile(args[0])
			if err != nil {
				return err
			}
			return printRules(cmd.OutOrStdout(), rules)
		},
	}
}

func newRulesExportCommand(opts *rootOptions) *cobra.Command {
	var defaults bool

	cmd := &cobra.Command{
		Use:   "export [file]",
		Short: "Write the effective rule set to a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var rules []*models.AlertRule
			if defaults {
				rules = alert.DefaultRules()
			} else {
				db, err := database.Open(opts.cfg.Database.Path, opts.log)
				if err != nil {
					return err
				}
				defer database.Close(db)

				rules, err = loadRules(cmd.Context(), opts.cfg.Rules.File, alert.NewRuleRepository(db), opts.log)
				if err != nil {
					return err
				}
			}

			if err := alert.ExportRuleFile(args[0], rules); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d rules to %s\n", len(rules), args[0])
			return nil
		},
	}

	cmd.Flags().BoolVar(&defaults, "defaults", false, "Export the built-in default rules")
	return cmd
}

// ruleLister is the read side of the rule repository.
type ruleLister interface {
	List(ctx context.Context) ([]models.AlertRule, error)
	Tombstones(ctx context.Context) ([]string, error)
}

// loadRules reads the rule file, falling back to the default rules when it
// yields nothing, then applies the repository on top.
func loadRules(ctx context.Context, file string, repo ruleLister, log logrus.FieldLogger) ([]*models.AlertRule, error) {
	var fileRules []*models.AlertRule
	if file != "" {
		rules, err := alert.LoadRuleFile(file)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			log.WithField("path", file).Warn("rule file not found")
		case err != nil:
			return nil, err
		}
		fileRules = rules
	}
	return effectiveRules(ctx, seedRules(fileRules, log), repo)
}

func seedRules(fileRules []*models.AlertRule, log logrus.FieldLogger) []*models.AlertRule {
	if len(fileRules) > 0 {
		return fileRules
	}
	log.Info("no file rules configured, using default rules")
	return alert.DefaultRules()
}

// effectiveRules overlays the stored rules on base and drops ids deleted
// through the admin API.
func effectiveRules(ctx context.Context, base []*models.AlertRule, repo ruleLister) ([]*models.AlertRule, error) {
	stored, err := repo.List(ctx)
	if err != nil {
		return nil, err
	}
	deleted, err := repo.Tombstones(ctx)
	if err != nil {
		return nil, err
	}
	return mergeRules(base, stored, deleted), nil
}

// mergeRules keeps base order, replaces base rules by stored ones with the
// same id and appends the remaining stored rules. Base rules named in
// deleted are dropped; stored rules never carry a tombstone.
func mergeRules(base []*models.AlertRule, stored []models.AlertRule, deleted []string) []*models.AlertRule {
	gone := make(map[string]bool, len(deleted))
	for _, id := range deleted {
		gone[id] = true
	}

	byID := make(map[string]int, len(base)+len(stored))
	out := make([]*models.AlertRule, 0, len(base)+len(stored))

	for _, r := range base {
		if gone[r.ID] {
			continue
		}
		byID[r.ID] = len(out)
		out = append(out, r)
	}
	for i := range stored {
		r := &stored[i]
		if idx, ok := byID[r.ID]; ok {
			out[idx] = r
			continue
		}
		byID[r.ID] = len(out)
		out = append(out, r)
	}
	return out
}
