package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/paperscope/paperscope/internal/ailink"
	"github.com/paperscope/paperscope/internal/config"
	"github.com/paperscope/paperscope/internal/observability"
	"github.com/paperscope/paperscope/internal/output"
)

var rateLimitCmd = &cobra.Command{
	Use:   "rate-limit",
	Short: "Inspect and manage request governance state",
}

var rateLimitStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show window occupancy, daily quota usage and tier",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), appOptions{})
		if err != nil {
			return err
		}
		defer a.close()

		governor := a.buildGovernor(cmd.Context())
		endpoint := ailink.NewClient(a.cfg.AILink, nil).Name()
		backoff, err := a.db.ActiveBackoff(cmd.Context(), endpoint, time.Now().UTC())
		if err != nil {
			a.logger.Warn("Failed to read throttle state", zap.Error(err))
		} else if backoff > 0 {
			governor.Throttled(backoff)
		}

		status := governor.Status()
		doc := output.GovernanceDocument(status)
		if backoff > 0 {
			doc.Notes = append(doc.Notes, fmt.Sprintf("%s is backing off for another %s", endpoint, backoff.Round(time.Second)))
		}
		return writeDocument(cmd, "rate-limit.status", doc, status)
	},
}

var rateLimitSetTierCmd = &cobra.Command{
	Use:       "set-tier paid|free",
	Short:     "Persist the daily quota tier to the config file",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"paid", "free"},
	RunE: func(cmd *cobra.Command, args []string) error {
		var paid bool
		switch strings.ToLower(strings.TrimSpace(args[0])) {
		case "paid":
			paid = true
		case "free":
		default:
			return fmt.Errorf("%w: tier must be paid or free, got %q", ErrConfig, args[0])
		}

		path := configFilePath()
		if err := config.PersistSetting(path, "governance.paid_tier", paid); err != nil {
			return err
		}
		if settings != nil {
			settings.Set("governance.paid_tier", paid)
		}
		observability.CLI().Debug("Persisted quota tier", zap.String("path", path), zap.Bool("paid", paid))
		_, err := fmt.Fprintf(cmd.OutOrStdout(), "Daily quota tier set to %s in %s\n", args[0], path)
		return err
	},
}

func init() {
	rateLimitCmd.AddCommand(rateLimitStatusCmd)
	rateLimitCmd.AddCommand(rateLimitSetTierCmd)
	rateLimitCmd.AddCommand(rateLimitListCmd)
	rateLimitCmd.AddCommand(rateLimitResetCmd)
	rootCmd.AddCommand(rateLimitCmd)

	addOutputFlags(rateLimitStatusCmd)
}
